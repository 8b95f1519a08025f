// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/fortdb/mongo-maint-tools/common/idx"
	"github.com/fortdb/mongo-maint-tools/common/log"
	"github.com/fortdb/mongo-maint-tools/common/wcwrapper"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/exp/slices"
)

// CollectionNames returns the sorted names of the regular collections of
// database. Views and system collections are left out.
func CollectionNames(ctx context.Context, database *mongo.Database) ([]string, error) {
	names, err := database.ListCollectionNames(ctx, bson.D{{"type", "collection"}})
	if err != nil {
		return nil, fmt.Errorf("error listing collections in %v: %v", database.Name(), err)
	}
	names = slices.DeleteFunc(names, func(name string) bool {
		return strings.HasPrefix(name, "system.")
	})
	slices.Sort(names)
	return names, nil
}

// GetIndexes returns the index definitions of coll in the order the server
// lists them. A collection that does not exist has no indexes.
func GetIndexes(ctx context.Context, coll *mongo.Collection) ([]*idx.IndexDocument, error) {
	cursor, err := coll.Indexes().List(ctx)
	if err != nil {
		if IsNamespaceNotFound(err) {
			log.Logvf(log.DebugLow, "%v.%v does not exist; treating it as having no indexes", coll.Database().Name(), coll.Name())
			return nil, nil
		}
		return nil, err
	}
	defer cursor.Close(ctx)

	var indexes []*idx.IndexDocument
	for cursor.Next(ctx) {
		var index idx.IndexDocument
		if err := cursor.Decode(&index); err != nil {
			return nil, fmt.Errorf("error decoding index of %v: %v", coll.Name(), err)
		}
		indexes = append(indexes, &index)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return indexes, nil
}

// CreateIndexes runs createIndexes on database for collection with the given
// index specs. Each spec holds at least key and name. A nil wc leaves the
// write concern to the server.
func CreateIndexes(
	ctx context.Context,
	database *mongo.Database,
	collection string,
	wc *wcwrapper.WriteConcern,
	specs ...bson.D,
) error {
	rawSpecs := make(bson.A, 0, len(specs))
	for _, spec := range specs {
		rawSpecs = append(rawSpecs, spec)
	}
	cmd := bson.D{
		{"createIndexes", collection},
		{"indexes", rawSpecs},
	}
	if wc != nil {
		cmd = append(cmd, bson.E{Key: "writeConcern", Value: wc})
	}
	return database.RunCommand(ctx, cmd).Err()
}
