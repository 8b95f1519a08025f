// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package idx holds index definitions as the server reports them and the
// typed options derived from them.
package idx

import (
	"fmt"

	"github.com/fortdb/mongo-maint-tools/common/bsonutil"
	"go.mongodb.org/mongo-driver/bson"
)

// DefaultIdIndexName is the name the server gives the mandatory _id index.
const DefaultIdIndexName = "_id_"

// IndexDocument holds information about a collection's index.
type IndexDocument struct {
	Options                 bson.M `bson:",inline"`
	Key                     bson.D `bson:"key"`
	PartialFilterExpression bson.D `bson:"partialFilterExpression,omitempty"`
}

// NewIndexDocumentFromD converts a bson.D index spec into an IndexDocument
func NewIndexDocumentFromD(doc bson.D) (*IndexDocument, error) {
	indexDoc := IndexDocument{Options: bson.M{}}

	for _, elem := range doc {
		switch elem.Key {
		case "key":
			if val, ok := elem.Value.(bson.D); ok {
				indexDoc.Key = val
				continue
			} else {
				return nil, fmt.Errorf("index key could not type assert to bson.D")
			}
		case "partialFilterExpression":
			if val, ok := elem.Value.(bson.D); ok {
				indexDoc.PartialFilterExpression = val
				continue
			} else {
				return nil, fmt.Errorf("index partialFilterExpression could not type assert to bson.D")
			}
		default:
			indexDoc.Options[elem.Key] = elem.Value
		}
	}

	return &indexDoc, nil
}

// Name returns the index name, or "" when the document carries none.
func (idx IndexDocument) Name() string {
	name, _ := idx.Options["name"].(string)
	return name
}

// IsDefaultIdIndex reports whether idx is the index every collection gets on
// _id. It matches on the reserved name, or on an ascending _id key for
// documents without a name.
func (idx IndexDocument) IsDefaultIdIndex() bool {
	if name := idx.Name(); name != "" {
		return name == DefaultIdIndexName
	}
	if len(idx.Key) != 1 || idx.Key[0].Key != "_id" {
		return false
	}
	if s, ok := idx.Key[0].Value.(string); ok {
		// legacy servers allowed {_id: ""}
		return s == ""
	}
	f, ok := bsonutil.Bson2Float64(idx.Key[0].Value)
	return ok && f == 1
}
