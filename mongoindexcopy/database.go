// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongoindexcopy

import (
	"context"

	"github.com/fortdb/mongo-maint-tools/common/db"
	"github.com/fortdb/mongo-maint-tools/common/idx"
	"github.com/fortdb/mongo-maint-tools/common/wcwrapper"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// databaseHandle serves as both IndexSource and IndexTarget for one
// database of a connected deployment.
type databaseHandle struct {
	provider     *db.SessionProvider
	db           *mongo.Database
	writeConcern *wcwrapper.WriteConcern
}

func (h *databaseHandle) CollectionNames(ctx context.Context) ([]string, error) {
	return db.CollectionNames(ctx, h.db)
}

func (h *databaseHandle) Indexes(ctx context.Context, collection string) ([]*idx.IndexDocument, error) {
	return db.GetIndexes(ctx, h.db.Collection(collection))
}

func (h *databaseHandle) CreateIndex(ctx context.Context, collection string, spec bson.D) error {
	return db.CreateIndexes(ctx, h.db, collection, h.writeConcern, spec)
}

func (h *databaseHandle) ServerVersion(ctx context.Context) (db.Version, error) {
	return h.provider.ServerVersion(ctx)
}
