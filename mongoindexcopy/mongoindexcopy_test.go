// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongoindexcopy

import (
	"bytes"
	"context"
	"math"
	"os"
	"testing"

	"github.com/fortdb/mongo-maint-tools/common/db"
	"github.com/fortdb/mongo-maint-tools/common/idx"
	"github.com/fortdb/mongo-maint-tools/common/log"
	"github.com/fortdb/mongo-maint-tools/common/options"
	"github.com/fortdb/mongo-maint-tools/common/testtype"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type createCall struct {
	collection string
	spec       bson.D
}

// fakeDatabase is an in-memory IndexSource and IndexTarget.
type fakeDatabase struct {
	collections []string
	indexes     map[string][]*idx.IndexDocument
	version     db.Version

	listCollectionsErr error
	listIndexesErr     map[string]error
	createErr          map[string]error

	created []createCall
}

func newFakeDatabase(version db.Version) *fakeDatabase {
	return &fakeDatabase{
		indexes:        map[string][]*idx.IndexDocument{},
		version:        version,
		listIndexesErr: map[string]error{},
		createErr:      map[string]error{},
	}
}

func (f *fakeDatabase) withCollection(name string, indexes ...*idx.IndexDocument) *fakeDatabase {
	f.collections = append(f.collections, name)
	f.indexes[name] = indexes
	return f
}

func (f *fakeDatabase) CollectionNames(context.Context) ([]string, error) {
	return f.collections, f.listCollectionsErr
}

func (f *fakeDatabase) Indexes(_ context.Context, collection string) ([]*idx.IndexDocument, error) {
	if err := f.listIndexesErr[collection]; err != nil {
		return nil, err
	}
	return f.indexes[collection], nil
}

func (f *fakeDatabase) CreateIndex(_ context.Context, collection string, spec bson.D) error {
	f.created = append(f.created, createCall{collection, spec})
	doc, err := idx.NewIndexDocumentFromD(spec)
	if err != nil {
		return err
	}
	if err := f.createErr[doc.Name()]; err != nil {
		return err
	}
	f.indexes[collection] = append(f.indexes[collection], doc)
	return nil
}

func (f *fakeDatabase) ServerVersion(context.Context) (db.Version, error) {
	return f.version, nil
}

func index(t *testing.T, name string, key bson.D, opts ...bson.E) *idx.IndexDocument {
	doc, err := idx.NewIndexDocumentFromD(append(bson.D{{"v", int32(2)}, {"key", key}, {"name", name}}, opts...))
	require.NoError(t, err)
	return doc
}

func idIndex(t *testing.T) *idx.IndexDocument {
	return index(t, "_id_", bson.D{{"_id", int32(1)}})
}

func newTestIndexCopy(copyOpts CopyOptions) *MongoIndexCopy {
	if copyOpts.From == "" {
		copyOpts.From = "fort"
	}
	if copyOpts.To == "" {
		copyOpts.To = "fort-secondary"
	}
	return &MongoIndexCopy{
		ToolOptions: &options.ToolOptions{},
		CopyOpts:    &copyOpts,
	}
}

var modernServer = db.Version{7, 0, 2}

func TestCopyIndexes(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)
	ctx := context.Background()

	t.Run("unique email index is copied to an empty target", func(t *testing.T) {
		source := newFakeDatabase(modernServer).withCollection("users",
			idIndex(t),
			index(t, "email_1", bson.D{{"email", int32(1)}}, bson.E{"unique", true}),
		)
		target := newFakeDatabase(modernServer)

		result, err := newTestIndexCopy(CopyOptions{}).CopyIndexes(ctx, source, target)
		require.NoError(t, err)
		assert.Equal(t, Result{Created: 1}, result)

		require.Len(t, target.created, 1)
		assert.Equal(t, "users", target.created[0].collection)
		want := bson.D{{"key", bson.D{{"email", int32(1)}}}, {"name", "email_1"}, {"unique", true}}
		if diff := cmp.Diff(want, target.created[0].spec); diff != "" {
			t.Errorf("spec mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("running twice creates nothing the second time", func(t *testing.T) {
		source := newFakeDatabase(modernServer).
			withCollection("users", idIndex(t), index(t, "email_1", bson.D{{"email", int32(1)}})).
			withCollection("sessions", idIndex(t), index(t, "user_1", bson.D{{"user", int32(1)}}))
		target := newFakeDatabase(modernServer)
		ic := newTestIndexCopy(CopyOptions{})

		first, err := ic.CopyIndexes(ctx, source, target)
		require.NoError(t, err)
		assert.Equal(t, 2, first.Created)

		target.created = nil
		second, err := ic.CopyIndexes(ctx, source, target)
		require.NoError(t, err)
		assert.Empty(t, target.created)
		assert.Equal(t, Result{Skipped: 2}, second)
	})

	t.Run("the default id index is never proposed", func(t *testing.T) {
		unnamedID, err := idx.NewIndexDocumentFromD(bson.D{{"key", bson.D{{"_id", 1.0}}}})
		require.NoError(t, err)
		source := newFakeDatabase(modernServer).
			withCollection("a", idIndex(t)).
			withCollection("b", unnamedID, idIndex(t))
		target := newFakeDatabase(modernServer)

		for _, dryRun := range []bool{false, true} {
			result, err := newTestIndexCopy(CopyOptions{DryRun: dryRun}).CopyIndexes(ctx, source, target)
			require.NoError(t, err)
			assert.Equal(t, Result{}, result)
			assert.Empty(t, target.created)
		}
	})

	t.Run("a failed creation does not stop the others", func(t *testing.T) {
		source := newFakeDatabase(modernServer).
			withCollection("accounts",
				index(t, "owner_1", bson.D{{"owner", int32(1)}}),
				index(t, "created_-1", bson.D{{"created", int32(-1)}})).
			withCollection("users",
				index(t, "email_1", bson.D{{"email", int32(1)}}, bson.E{"unique", true}))
		target := newFakeDatabase(modernServer)
		target.createErr["owner_1"] = mongo.CommandError{Code: 13, Name: "Unauthorized"}

		result, err := newTestIndexCopy(CopyOptions{}).CopyIndexes(ctx, source, target)
		require.NoError(t, err)
		assert.Equal(t, Result{Created: 2, Failed: 1}, result)

		var attempted []string
		for _, call := range target.created {
			attempted = append(attempted, call.collection+"/"+call.spec[1].Value.(string))
		}
		assert.Equal(t, []string{"accounts/owner_1", "accounts/created_-1", "users/email_1"}, attempted)
	})

	t.Run("a badly typed option is left off its index", func(t *testing.T) {
		source := newFakeDatabase(modernServer).withCollection("users",
			index(t, "email_1", bson.D{{"email", int32(1)}}, bson.E{"unique", true}, bson.E{"sparse", "yes"}),
			index(t, "ttl_1", bson.D{{"lastSeen", int32(1)}}, bson.E{"expireAfterSeconds", math.NaN()}),
			index(t, "bg_1", bson.D{{"b", int32(1)}}, bson.E{"background", true}))
		target := newFakeDatabase(modernServer)

		result, err := newTestIndexCopy(CopyOptions{}).CopyIndexes(ctx, source, target)
		require.NoError(t, err)
		assert.Equal(t, Result{Created: 3, Dropped: 2}, result)

		want := []createCall{
			{"users", bson.D{{"key", bson.D{{"email", int32(1)}}}, {"name", "email_1"}, {"unique", true}}},
			{"users", bson.D{{"key", bson.D{{"lastSeen", int32(1)}}}, {"name", "ttl_1"}}},
			{"users", bson.D{{"key", bson.D{{"b", int32(1)}}}, {"name", "bg_1"}, {"background", true}}},
		}
		if diff := cmp.Diff(want, target.created, cmp.AllowUnexported(createCall{})); diff != "" {
			t.Errorf("created indexes mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("an existing name is kept even with another key", func(t *testing.T) {
		source := newFakeDatabase(modernServer).withCollection("users",
			index(t, "email_1", bson.D{{"email", int32(1)}}))
		target := newFakeDatabase(modernServer).withCollection("users",
			idIndex(t),
			index(t, "email_1", bson.D{{"email", int32(-1)}}))

		result, err := newTestIndexCopy(CopyOptions{}).CopyIndexes(ctx, source, target)
		require.NoError(t, err)
		assert.Equal(t, Result{Skipped: 1}, result)
		assert.Empty(t, target.created)
	})

	t.Run("listing failures end the copy", func(t *testing.T) {
		source := newFakeDatabase(modernServer).
			withCollection("a", index(t, "x_1", bson.D{{"x", int32(1)}})).
			withCollection("b", index(t, "y_1", bson.D{{"y", int32(1)}})).
			withCollection("c", index(t, "z_1", bson.D{{"z", int32(1)}}))
		source.listIndexesErr["b"] = errors.New("connection reset")
		target := newFakeDatabase(modernServer)

		result, err := newTestIndexCopy(CopyOptions{}).CopyIndexes(ctx, source, target)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fort.b")
		assert.Equal(t, Result{Created: 1}, result)
		assert.Len(t, target.created, 1)

		source.listCollectionsErr = errors.New("not authorized")
		_, err = newTestIndexCopy(CopyOptions{}).CopyIndexes(ctx, source, target)
		assert.ErrorContains(t, err, "not authorized")
	})

	t.Run("dry run creates nothing", func(t *testing.T) {
		source := newFakeDatabase(modernServer).withCollection("users",
			idIndex(t), index(t, "email_1", bson.D{{"email", int32(1)}}))
		target := newFakeDatabase(modernServer)

		result, err := newTestIndexCopy(CopyOptions{DryRun: true}).CopyIndexes(ctx, source, target)
		require.NoError(t, err)
		assert.Equal(t, Result{Created: 1}, result)
		assert.Empty(t, target.created)
	})

	t.Run("only the requested collections are copied", func(t *testing.T) {
		source := newFakeDatabase(modernServer).
			withCollection("accounts", index(t, "owner_1", bson.D{{"owner", int32(1)}})).
			withCollection("users", index(t, "email_1", bson.D{{"email", int32(1)}}))
		target := newFakeDatabase(modernServer)

		result, err := newTestIndexCopy(CopyOptions{Collections: []string{"users", "missing"}}).CopyIndexes(ctx, source, target)
		require.NoError(t, err)
		assert.Equal(t, Result{Created: 1}, result)
		require.Len(t, target.created, 1)
		assert.Equal(t, "users", target.created[0].collection)
	})
}

func TestCopyIndexOptions(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)
	ctx := context.Background()

	copyOne := func(t *testing.T, copyOpts CopyOptions, version db.Version, doc *idx.IndexDocument) (Result, bson.D) {
		source := newFakeDatabase(version).withCollection("users", doc)
		target := newFakeDatabase(version)
		result, err := newTestIndexCopy(copyOpts).CopyIndexes(ctx, source, target)
		require.NoError(t, err)
		require.Len(t, target.created, 1)
		return result, target.created[0].spec
	}

	t.Run("recognized options keep their values", func(t *testing.T) {
		_, spec := copyOne(t, CopyOptions{}, db.Version{4, 0, 28}, index(t, "lastSeen_1", bson.D{{"lastSeen", int32(1)}},
			bson.E{"expireAfterSeconds", int32(3600)},
			bson.E{"sparse", true},
			bson.E{"background", true}))
		want := bson.D{
			{"key", bson.D{{"lastSeen", int32(1)}}},
			{"name", "lastSeen_1"},
			{"sparse", true},
			{"background", true},
			{"expireAfterSeconds", int64(3600)},
		}
		if diff := cmp.Diff(want, spec); diff != "" {
			t.Errorf("spec mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("background is kept on servers that no longer honor it", func(t *testing.T) {
		_, spec := copyOne(t, CopyOptions{}, modernServer, index(t, "email_1", bson.D{{"email", int32(1)}},
			bson.E{"background", true}))
		assert.Equal(t, bson.D{{"key", bson.D{{"email", int32(1)}}}, {"name", "email_1"}, {"background", true}}, spec)
	})

	partial := func(t *testing.T) *idx.IndexDocument {
		return index(t, "email_1", bson.D{{"email", int32(1)}},
			bson.E{"unique", true},
			bson.E{"partialFilterExpression", bson.D{{"deleted", false}}},
			bson.E{"collation", bson.D{{"locale", "en"}, {"strength", int32(2)}}})
	}

	t.Run("other options are reported as not copied", func(t *testing.T) {
		result, spec := copyOne(t, CopyOptions{}, modernServer, partial(t))
		assert.Equal(t, Result{Created: 1, Dropped: 2}, result)
		assert.Equal(t, bson.D{{"key", bson.D{{"email", int32(1)}}}, {"name", "email_1"}, {"unique", true}}, spec)
	})

	t.Run("all options copies recognized options", func(t *testing.T) {
		result, spec := copyOne(t, CopyOptions{AllOptions: true}, modernServer, partial(t))
		assert.Equal(t, Result{Created: 1}, result)
		want := bson.D{
			{"key", bson.D{{"email", int32(1)}}},
			{"name", "email_1"},
			{"unique", true},
			{"collation", bson.D{{"locale", "en"}, {"strength", int32(2)}}},
			{"partialFilterExpression", bson.D{{"deleted", false}}},
		}
		if diff := cmp.Diff(want, spec); diff != "" {
			t.Errorf("spec mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("unversioned text indexes get version 1", func(t *testing.T) {
		_, spec := copyOne(t, CopyOptions{AllOptions: true}, modernServer,
			index(t, "bio_text", bson.D{{"bio", "text"}}, bson.E{"weights", bson.D{{"bio", int32(1)}}}))
		assert.Contains(t, spec, bson.E{"textIndexVersion", int32(1)})
	})

	t.Run("legacy key values are converted on request", func(t *testing.T) {
		_, spec := copyOne(t, CopyOptions{ConvertLegacyIndexes: true}, modernServer,
			index(t, "email_0", bson.D{{"email", int32(0)}}, bson.E{"safe", true}))
		assert.Equal(t, bson.D{{"key", bson.D{{"email", int32(1)}}}, {"name", "email_0"}}, spec)
	})
}

func TestCheckServerVersions(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)
	ctx := context.Background()

	var logged bytes.Buffer
	log.SetWriter(&logged)
	defer log.SetWriter(os.Stderr)

	ic := newTestIndexCopy(CopyOptions{})
	ic.checkServerVersions(ctx, newFakeDatabase(modernServer), newFakeDatabase(db.Version{4, 4, 29}))
	assert.Contains(t, logged.String(), "older than the source server (7.0.2)")

	logged.Reset()
	ic.checkServerVersions(ctx, newFakeDatabase(db.Version{4, 4, 29}), newFakeDatabase(modernServer))
	assert.NotContains(t, logged.String(), "older")
}

func TestValidateSettings(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	require.NoError(t, newTestIndexCopy(CopyOptions{}).validateSettings())
	require.NoError(t, newTestIndexCopy(CopyOptions{From: "fort", To: "fort", ToURI: "mongodb://replica:27017"}).validateSettings())

	cases := map[string]*MongoIndexCopy{
		"same database":      newTestIndexCopy(CopyOptions{From: "fort", To: "fort"}),
		"invalid source":     newTestIndexCopy(CopyOptions{From: "fo.rt"}),
		"invalid target":     newTestIndexCopy(CopyOptions{To: "fort secondary"}),
		"invalid collection": newTestIndexCopy(CopyOptions{Collections: []string{"users", "us$ers"}}),
	}
	for name, ic := range cases {
		assert.Error(t, ic.validateSettings(), name)
	}

	missing := newTestIndexCopy(CopyOptions{})
	missing.CopyOpts.From = ""
	assert.Error(t, missing.validateSettings())
	missing = newTestIndexCopy(CopyOptions{})
	missing.CopyOpts.To = ""
	assert.Error(t, missing.validateSettings())
}

func TestTargetToolOptions(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	source := &options.ToolOptions{
		AppName:    "mongoindexcopy",
		Connection: &options.Connection{Host: "primary", Port: "27017", Timeout: 7},
	}

	same, err := targetToolOptions(source, "")
	require.NoError(t, err)
	assert.Same(t, source, same)

	target, err := targetToolOptions(source, "mongodb://backup1:27017,backup2:27017/?replicaSet=rs1")
	require.NoError(t, err)
	assert.NotSame(t, source, target)
	assert.Equal(t, []string{"backup1:27017", "backup2:27017"}, target.ConnString.Hosts)
	assert.Equal(t, "rs1", target.ReplicaSetName)
	assert.Equal(t, 7, target.Timeout)
	assert.Equal(t, "mongoindexcopy", target.AppName)

	_, err = targetToolOptions(source, "postgres://elsewhere")
	assert.Error(t, err)
}
