// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package mongoindexcopy creates the indexes of one database on another.
package mongoindexcopy

import (
	"context"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/fortdb/mongo-maint-tools/common/bsonutil"
	"github.com/fortdb/mongo-maint-tools/common/db"
	"github.com/fortdb/mongo-maint-tools/common/idx"
	"github.com/fortdb/mongo-maint-tools/common/log"
	"github.com/fortdb/mongo-maint-tools/common/options"
	"github.com/fortdb/mongo-maint-tools/common/util"
	"github.com/fortdb/mongo-maint-tools/common/wcwrapper"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/exp/slices"
)

// IndexSource lists the collections and indexes to copy.
type IndexSource interface {
	CollectionNames(ctx context.Context) ([]string, error)
	Indexes(ctx context.Context, collection string) ([]*idx.IndexDocument, error)
	ServerVersion(ctx context.Context) (db.Version, error)
}

// IndexTarget is where the copied indexes are created.
type IndexTarget interface {
	Indexes(ctx context.Context, collection string) ([]*idx.IndexDocument, error)
	CreateIndex(ctx context.Context, collection string, spec bson.D) error
	ServerVersion(ctx context.Context) (db.Version, error)
}

// Result counts what a copy did. In a dry run Created counts the indexes
// that would have been created.
type Result struct {
	Created int
	Skipped int
	Failed  int

	// Dropped counts index options left off the created indexes.
	Dropped int
}

func (r Result) String() string {
	return fmt.Sprintf("%v created, %v skipped, %v failed, %v options not copied",
		r.Created, r.Skipped, r.Failed, r.Dropped)
}

// MongoIndexCopy is a container for the user-specified options and the
// connections used for running mongoindexcopy.
type MongoIndexCopy struct {
	ToolOptions *options.ToolOptions
	CopyOpts    *CopyOptions

	SourceProvider *db.SessionProvider
	TargetProvider *db.SessionProvider

	// WriteConcern applies to every createIndexes run on the target.
	WriteConcern *wcwrapper.WriteConcern
}

// New constructs a new MongoIndexCopy from the provided options and connects
// to the source and target deployments.
func New(opts Options) (*MongoIndexCopy, error) {
	ic := &MongoIndexCopy{
		ToolOptions: opts.ToolOptions,
		CopyOpts:    opts.CopyOptions,
	}
	if err := ic.validateSettings(); err != nil {
		return nil, util.SetupError{Err: err, Code: util.ExitBadOptions}
	}

	targetOpts, err := targetToolOptions(opts.ToolOptions, opts.ToURI)
	if err != nil {
		return nil, util.SetupError{Err: err, Code: util.ExitBadOptions}
	}
	ic.WriteConcern, err = db.NewMongoWriteConcern(opts.CopyOptions.WriteConcern, &targetOpts.ConnString)
	if err != nil {
		return nil, util.SetupError{Err: errors.Wrap(err, "invalid --writeConcern"), Code: util.ExitBadOptions}
	}

	ctx, cancel := opts.RunContext()
	defer cancel()

	ic.SourceProvider, err = db.NewSessionProvider(ctx, *opts.ToolOptions)
	if err != nil {
		return nil, util.SetupError{Err: errors.Wrap(err, "error connecting to source"), Code: util.ExitError}
	}
	if targetOpts == opts.ToolOptions {
		ic.TargetProvider = ic.SourceProvider
		return ic, nil
	}
	log.Logvf(log.DebugLow, "connecting to target %v", util.SanitizeURI(targetOpts.URI.ConnectionString))
	ic.TargetProvider, err = db.NewSessionProvider(ctx, *targetOpts)
	if err != nil {
		ic.SourceProvider.Close()
		return nil, util.SetupError{Err: errors.Wrap(err, "error connecting to target"), Code: util.ExitError}
	}
	return ic, nil
}

// targetToolOptions returns the options to reach the target deployment.
// Without a target URI the source connection is reused.
func targetToolOptions(source *options.ToolOptions, toURI string) (*options.ToolOptions, error) {
	if toURI == "" {
		return source, nil
	}
	target := options.New(source.AppName, source.VersionStr, source.GitCommit, "", false,
		options.EnabledOptions{Auth: true, URI: true})
	target.URI.ConnectionString = toURI
	if source.Connection != nil {
		target.Timeout = source.Timeout
		target.SocketTimeout = source.SocketTimeout
		target.ServerSelectionTimeout = source.ServerSelectionTimeout
	}
	if err := target.NormalizeOptionsAndURI(); err != nil {
		return nil, errors.Wrap(err, "invalid --toUri")
	}
	return target, nil
}

// Close releases the source and target connections.
func (ic *MongoIndexCopy) Close() {
	if ic.TargetProvider != nil && ic.TargetProvider != ic.SourceProvider {
		ic.TargetProvider.Close()
	}
	if ic.SourceProvider != nil {
		ic.SourceProvider.Close()
	}
}

func (ic *MongoIndexCopy) validateSettings() error {
	if ic.CopyOpts.From == "" {
		return fmt.Errorf("must specify a source database with --from")
	}
	if err := util.ValidateDBName(ic.CopyOpts.From); err != nil {
		return errors.Wrap(err, "invalid --from")
	}
	if ic.CopyOpts.To == "" {
		return fmt.Errorf("must specify a target database with --to")
	}
	if err := util.ValidateDBName(ic.CopyOpts.To); err != nil {
		return errors.Wrap(err, "invalid --to")
	}
	if ic.CopyOpts.ToURI == "" && ic.CopyOpts.From == ic.CopyOpts.To {
		return fmt.Errorf("--from and --to name the same database; use --toUri to copy to another deployment")
	}
	for _, name := range ic.CopyOpts.Collections {
		if err := util.ValidateCollectionName(name); err != nil {
			return errors.Wrap(err, "invalid --collection")
		}
	}
	return nil
}

// Run copies the indexes between the configured databases.
func (ic *MongoIndexCopy) Run(ctx context.Context) (Result, error) {
	source := &databaseHandle{provider: ic.SourceProvider, db: ic.SourceProvider.DB(ic.CopyOpts.From)}
	target := &databaseHandle{
		provider:     ic.TargetProvider,
		db:           ic.TargetProvider.DB(ic.CopyOpts.To),
		writeConcern: ic.WriteConcern,
	}
	return ic.CopyIndexes(ctx, source, target)
}

// CopyIndexes creates on target every index of source that target lacks by
// name. A failed creation is logged and counted and the copy goes on. A
// failure to list collections or indexes ends the copy.
func (ic *MongoIndexCopy) CopyIndexes(ctx context.Context, source IndexSource, target IndexTarget) (Result, error) {
	var result Result

	collections, err := source.CollectionNames(ctx)
	if err != nil {
		return result, errors.Wrapf(err, "error listing collections of %v", ic.CopyOpts.From)
	}
	collections = ic.filterCollections(collections)

	ic.checkServerVersions(ctx, source, target)

	catalog := idx.NewIndexCatalog()
	for _, collection := range collections {
		if err := ic.copyCollection(ctx, collection, source, target, catalog, &result); err != nil {
			return result, err
		}
	}

	log.Logvf(log.DebugHigh, "target indexes after the copy: %v", catalog)
	if ic.CopyOpts.DryRun {
		log.Logvf(log.Always, "dry run finished: %v", result)
	} else {
		log.Logvf(log.Always, "index copy finished: %v", result)
	}
	return result, nil
}

func (ic *MongoIndexCopy) filterCollections(collections []string) []string {
	if len(ic.CopyOpts.Collections) == 0 {
		return collections
	}
	requested := mapset.NewThreadUnsafeSet(ic.CopyOpts.Collections...)
	missing := requested.Difference(mapset.NewThreadUnsafeSet(collections...)).ToSlice()
	slices.Sort(missing)
	for _, name := range missing {
		log.Logvf(log.Always, "collection %v does not exist in %v, nothing to copy", name, ic.CopyOpts.From)
	}
	return lo.Filter(collections, func(name string, _ int) bool {
		return requested.Contains(name)
	})
}

func (ic *MongoIndexCopy) copyCollection(
	ctx context.Context,
	collection string,
	source IndexSource,
	target IndexTarget,
	catalog *idx.IndexCatalog,
	result *Result,
) error {
	sourceNS := ic.CopyOpts.From + "." + collection
	targetNS := ic.CopyOpts.To + "." + collection

	sourceIndexes, err := source.Indexes(ctx, collection)
	if err != nil {
		return errors.Wrapf(err, "error listing indexes of %v", sourceNS)
	}
	targetIndexes, err := target.Indexes(ctx, collection)
	if err != nil {
		return errors.Wrapf(err, "error listing indexes of %v", targetNS)
	}
	catalog.AddIndexes(collection, targetIndexes)
	sourceNames := lo.FilterMap(sourceIndexes, func(index *idx.IndexDocument, _ int) (string, bool) {
		return index.Name(), index.Name() != ""
	})
	log.Logvf(log.DebugLow, "%v has %v indexes, %v has %v; missing on target: %v",
		sourceNS, len(sourceIndexes), targetNS, len(targetIndexes), catalog.Missing(collection, sourceNames))

	for _, index := range sourceIndexes {
		if index.IsDefaultIdIndex() {
			continue
		}
		name := index.Name()
		if name == "" {
			log.Logvf(log.Always, "skipping an index without a name on %v: %v", sourceNS, bsonutil.CreateExtJSONString(index.Key))
			result.Skipped++
			continue
		}

		if catalog.HasIndex(collection, name) {
			result.Skipped++
			if key, _ := catalog.GetKey(collection, name); !bsonutil.IsIndexKeysEqual(key, index.Key) {
				log.Logvf(log.Always, "index %v already exists on %v with key %v instead of %v; leaving it unchanged",
					name, targetNS, bsonutil.CreateExtJSONString(key), bsonutil.CreateExtJSONString(index.Key))
			} else {
				log.Logvf(log.Info, "index %v already exists on %v, skipping", name, targetNS)
			}
			continue
		}

		spec, dropped := ic.buildSpec(index, sourceNS)
		result.Dropped += len(dropped)

		if ic.CopyOpts.DryRun {
			log.Logvf(log.Always, "would create index %v on %v: %v", name, targetNS, bsonutil.CreateExtJSONString(spec))
			result.Created++
			continue
		}

		if err := target.CreateIndex(ctx, collection, spec); err != nil {
			if db.IsIndexConflict(err) {
				log.Logvf(log.Always, "failed to create index %v on %v, it conflicts with an existing index: %v", name, targetNS, err)
			} else {
				log.Logvf(log.Always, "failed to create index %v on %v: %v", name, targetNS, err)
			}
			result.Failed++
			continue
		}
		catalog.AddIndex(collection, index)
		log.Logvf(log.Always, "created index %v on %v", name, targetNS)
		result.Created++
	}
	return nil
}

// buildSpec turns a source index into the createIndexes entry for the
// target. It also returns the option names left out of the entry.
func (ic *MongoIndexCopy) buildSpec(index *idx.IndexDocument, sourceNS string) (bson.D, []string) {
	name := index.Name()

	if ic.CopyOpts.ConvertLegacyIndexes {
		bsonutil.ConvertLegacyIndexKeys(index.Key, sourceNS)
		bsonutil.ConvertLegacyIndexOptions(index.Options)
	}

	if err := index.FindInconsistency(); err != nil {
		if ic.CopyOpts.AllOptions {
			inferred := index.EnsureIndexVersions()
			log.Logvf(log.Always, "%v: %v; copying it with %v", sourceNS, err, bsonutil.CreateExtJSONString(inferred))
		} else {
			log.Logvf(log.Info, "%v: %v", sourceNS, err)
		}
	}

	opts := idx.ParseIndexOptions(index, ic.CopyOpts.AllOptions)
	for _, option := range opts.Dropped {
		if err, invalid := opts.Invalid[option]; invalid {
			log.Logvf(log.Always, "index %v of %v: not copying option %v: %v", name, sourceNS, option, err)
		}
	}
	if len(opts.Dropped) > len(opts.Invalid) {
		log.Logvf(log.Always, "index %v of %v: not copying options %v (use --allOptions to copy the ones the server recognizes)",
			name, sourceNS, lo.Without(opts.Dropped, lo.Keys(opts.Invalid)...))
	}
	return opts.Spec(index), opts.Dropped
}

// checkServerVersions warns when the target runs an older server than the
// source, whose createIndexes may reject options the source accepted.
func (ic *MongoIndexCopy) checkServerVersions(ctx context.Context, source IndexSource, target IndexTarget) {
	sourceVersion, err := source.ServerVersion(ctx)
	if err != nil {
		log.Logvf(log.DebugLow, "could not determine the source server version: %v", err)
		return
	}
	targetVersion, err := target.ServerVersion(ctx)
	if err != nil {
		log.Logvf(log.DebugLow, "could not determine the target server version: %v", err)
		return
	}
	log.Logvf(log.DebugLow, "source server version %v, target server version %v", sourceVersion, targetVersion)
	if targetVersion.LT(sourceVersion) {
		log.Logvf(log.Always, "the target server (%v) is older than the source server (%v); "+
			"indexes using newer options may fail to create", targetVersion, sourceVersion)
	}
}
