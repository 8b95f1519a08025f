// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package idx

import (
	"math"
	"testing"

	"github.com/fortdb/mongo-maint-tools/common/testtype"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func ttlIndex() *IndexDocument {
	return &IndexDocument{
		Options: bson.M{
			"v":                  int32(2),
			"name":               "lastSeen_1",
			"expireAfterSeconds": float64(3600),
			"sparse":             true,
			"background":         int32(1),
			"collation":          bson.M{"locale": "en"},
		},
		Key:                     bson.D{{"lastSeen", int32(1)}},
		PartialFilterExpression: bson.D{{"active", true}},
	}
}

func TestParseIndexOptions(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	t.Run("recognized flags only", func(t *testing.T) {
		opts := ParseIndexOptions(ttlIndex(), false)

		assert.Nil(t, opts.Unique)
		require.NotNil(t, opts.Sparse)
		assert.True(t, *opts.Sparse)
		require.NotNil(t, opts.Background)
		assert.True(t, *opts.Background)
		require.NotNil(t, opts.ExpireAfterSeconds)
		assert.Equal(t, int64(3600), *opts.ExpireAfterSeconds)
		assert.Empty(t, opts.Extra)
		assert.Equal(t, []string{"collation", "partialFilterExpression"}, opts.Dropped)
	})

	t.Run("all options", func(t *testing.T) {
		doc := ttlIndex()
		doc.Options["dropDups"] = true
		opts := ParseIndexOptions(doc, true)

		assert.Equal(t, bson.D{
			{"collation", bson.M{"locale": "en"}},
			{"partialFilterExpression", bson.D{{"active", true}}},
		}, opts.Extra)
		assert.Equal(t, []string{"dropDups"}, opts.Dropped)
	})

	t.Run("badly typed values are dropped, not fatal", func(t *testing.T) {
		cases := map[string]interface{}{
			"unique":             "yes",
			"sparse":             bson.D{{"on", true}},
			"background":         nil,
			"expireAfterSeconds": math.NaN(),
		}
		for option, value := range cases {
			doc := &IndexDocument{
				Options: bson.M{"name": "a_1", option: value},
				Key:     bson.D{{"a", 1}},
			}
			opts := ParseIndexOptions(doc, false)
			assert.Equal(t, []string{option}, opts.Dropped, option)
			require.Contains(t, opts.Invalid, option)
			assert.Error(t, opts.Invalid[option])

			spec := opts.Spec(doc)
			_, present := bsonLookup(spec, option)
			assert.False(t, present, "%v should not be in %v", option, spec)
			assert.Equal(t, "a_1", spec[1].Value)
		}
	})

	t.Run("negative and infinite TTLs are dropped", func(t *testing.T) {
		for _, value := range []interface{}{int32(-5), math.Inf(1), "soon"} {
			doc := &IndexDocument{
				Options: bson.M{"name": "a_1", "expireAfterSeconds": value},
				Key:     bson.D{{"a", 1}},
			}
			opts := ParseIndexOptions(doc, true)
			assert.Nil(t, opts.ExpireAfterSeconds, "%v", value)
			assert.Equal(t, []string{"expireAfterSeconds"}, opts.Dropped, "%v", value)
		}
	})
}

func TestIndexOptionsSpec(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	doc := &IndexDocument{
		Options: bson.M{"v": int32(2), "name": "email_1", "unique": true},
		Key:     bson.D{{"email", int32(1)}},
	}
	opts := ParseIndexOptions(doc, false)
	assert.Empty(t, opts.Dropped)
	assert.Empty(t, opts.Invalid)

	expected := bson.D{
		{"key", bson.D{{"email", int32(1)}}},
		{"name", "email_1"},
		{"unique", true},
	}
	if diff := cmp.Diff(expected, opts.Spec(doc)); diff != "" {
		t.Errorf("unexpected spec (-want +got):\n%s", diff)
	}

	ttl := ttlIndex()
	opts = ParseIndexOptions(ttl, true)
	expected = bson.D{
		{"key", bson.D{{"lastSeen", int32(1)}}},
		{"name", "lastSeen_1"},
		{"sparse", true},
		{"background", true},
		{"expireAfterSeconds", int64(3600)},
		{"collation", bson.M{"locale": "en"}},
		{"partialFilterExpression", bson.D{{"active", true}}},
	}
	if diff := cmp.Diff(expected, opts.Spec(ttl)); diff != "" {
		t.Errorf("unexpected spec (-want +got):\n%s", diff)
	}
}

func bsonLookup(doc bson.D, key string) (interface{}, bool) {
	for _, e := range doc {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}
