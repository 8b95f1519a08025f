// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package wcwrapper wraps the driver's writeconcern.WriteConcern so a write
// concern can be attached to a raw command document with its wtimeout.
package wcwrapper

import (
	"fmt"
	"time"

	"github.com/fortdb/mongo-maint-tools/common/bsonutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// WriteConcern wraps the driver's WriteConcern and carries the wtimeout
// outside the driver type, whose own WTimeout field is deprecated.
type WriteConcern struct {
	*writeconcern.WriteConcern
	WTimeout time.Duration
}

// New returns an empty WriteConcern.
func New() *WriteConcern {
	return &WriteConcern{
		WriteConcern: new(writeconcern.WriteConcern),
	}
}

// Wrap returns a WriteConcern that wraps the provided driver-standard writeconcern.WriteConcern.
func Wrap(base *writeconcern.WriteConcern) *WriteConcern {
	return &WriteConcern{WriteConcern: base}
}

// Majority is a convenience function that returns a wrapped majority write concern.
func Majority() *WriteConcern {
	return Wrap(writeconcern.Majority())
}

func (wc *WriteConcern) document() (bson.D, error) {
	if wc == nil || wc.WriteConcern == nil {
		return nil, fmt.Errorf("cannot marshal an empty WriteConcern")
	}

	concernDoc := bson.D{{"w", wc.W}}
	if wc.Journal != nil {
		concernDoc = append(concernDoc, bson.E{Key: "j", Value: *wc.Journal})
	}

	if wc.WTimeout > 0 {
		concernDoc = append(
			concernDoc,
			bson.E{Key: "wtimeout", Value: wc.WTimeout.Milliseconds()},
		)
	}
	return concernDoc, nil
}

// MarshalBSONValue implements the bson.ValueMarshaler interface. It shadows
// the driver type's method so the wrapped wtimeout is the one encoded.
func (wc *WriteConcern) MarshalBSONValue() (bsontype.Type, []byte, error) {
	concernDoc, err := wc.document()
	if err != nil {
		return 0, nil, err
	}
	raw, err := bson.Marshal(concernDoc)
	if err != nil {
		return 0, nil, err
	}
	return bson.TypeEmbeddedDocument, raw, nil
}

// String renders the write concern as Extended JSON for log lines.
func (wc *WriteConcern) String() string {
	concernDoc, err := wc.document()
	if err != nil {
		return "<empty write concern>"
	}
	return bsonutil.CreateExtJSONString(concernDoc)
}
