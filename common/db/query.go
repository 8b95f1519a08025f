// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package db

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"
)

// Finder is the part of *mongo.Collection a find query needs.
type Finder interface {
	Find(ctx context.Context, filter interface{}, opts ...*mopt.FindOptions) (*mongo.Cursor, error)
}

// DeferredQuery represents a deferred query.
type DeferredQuery struct {
	Coll       Finder
	Filter     interface{}
	Projection interface{}
	Sort       interface{}
}

// Iter executes a find query and returns a cursor.
func (q *DeferredQuery) Iter(ctx context.Context) (*mongo.Cursor, error) {
	opts := mopt.Find()
	if q.Projection != nil {
		opts.SetProjection(q.Projection)
	}
	if q.Sort != nil {
		opts.SetSort(q.Sort)
	}
	filter := q.Filter
	if filter == nil {
		filter = bson.D{}
	}
	return q.Coll.Find(ctx, filter, opts)
}
