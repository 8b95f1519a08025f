// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package idx

import (
	"math"

	"github.com/fortdb/mongo-maint-tools/common/bsonutil"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/exp/slices"
)

// serverManagedFields are reported by listIndexes but describe the index
// rather than configure it.
var serverManagedFields = map[string]bool{
	"key":  true,
	"name": true,
	"ns":   true,
	"v":    true,
}

// IndexOptions are the creation options of one index, validated once when an
// index definition is read from the source.
type IndexOptions struct {
	Unique             *bool
	Sparse             *bool
	Background         *bool
	ExpireAfterSeconds *int64

	// Extra holds the remaining options the server recognizes. It is only
	// filled when all options are requested.
	Extra bson.D

	// Dropped names the source options that will not be copied, sorted.
	Dropped []string

	// Invalid explains, per option name, why a recognized option was dropped
	// for holding a value of the wrong type.
	Invalid map[string]error
}

// ParseIndexOptions reads the options of doc. With allOptions unset only
// unique, sparse, background and expireAfterSeconds are kept; every other
// option ends up in Dropped. One of those four holding a value of the wrong
// type is dropped too and recorded in Invalid.
func ParseIndexOptions(doc *IndexDocument, allOptions bool) IndexOptions {
	var opts IndexOptions

	keys := lo.Keys(doc.Options)
	slices.Sort(keys)

	for _, key := range keys {
		value := doc.Options[key]
		var err error
		switch key {
		case "unique":
			opts.Unique, err = parseBoolOption(value)
		case "sparse":
			opts.Sparse, err = parseBoolOption(value)
		case "background":
			opts.Background, err = parseBoolOption(value)
		case "expireAfterSeconds":
			opts.ExpireAfterSeconds, err = parseSecondsOption(value)
		default:
			if serverManagedFields[key] {
				continue
			}
			if allOptions && bsonutil.IsValidIndexOption(key) {
				opts.Extra = append(opts.Extra, bson.E{Key: key, Value: value})
			} else {
				opts.Dropped = append(opts.Dropped, key)
			}
		}
		if err != nil {
			if opts.Invalid == nil {
				opts.Invalid = map[string]error{}
			}
			opts.Invalid[key] = err
			opts.Dropped = append(opts.Dropped, key)
		}
	}

	if len(doc.PartialFilterExpression) > 0 {
		if allOptions {
			opts.Extra = append(opts.Extra, bson.E{Key: "partialFilterExpression", Value: doc.PartialFilterExpression})
		} else {
			opts.Dropped = append(opts.Dropped, "partialFilterExpression")
		}
	}
	slices.Sort(opts.Dropped)

	return opts
}

// parseBoolOption accepts booleans and, as legacy servers stored them,
// numbers where any non-zero value means true.
func parseBoolOption(value interface{}) (*bool, error) {
	if b, ok := value.(bool); ok {
		return &b, nil
	}
	if f, ok := bsonutil.Bson2Float64(value); ok {
		b := f != 0
		return &b, nil
	}
	return nil, errors.Errorf("must be a boolean, found %v of type %T", value, value)
}

func parseSecondsOption(value interface{}) (*int64, error) {
	f, ok := bsonutil.Bson2Float64(value)
	if !ok {
		return nil, errors.Errorf("must be a number, found %v of type %T", value, value)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return nil, errors.Errorf("must be a non-negative number, found %v", value)
	}
	seconds := int64(f)
	return &seconds, nil
}

// Spec builds the createIndexes entry for doc carrying opts.
func (opts IndexOptions) Spec(doc *IndexDocument) bson.D {
	spec := bson.D{
		{Key: "key", Value: doc.Key},
		{Key: "name", Value: doc.Name()},
	}
	if opts.Unique != nil {
		spec = append(spec, bson.E{Key: "unique", Value: *opts.Unique})
	}
	if opts.Sparse != nil {
		spec = append(spec, bson.E{Key: "sparse", Value: *opts.Sparse})
	}
	if opts.Background != nil {
		spec = append(spec, bson.E{Key: "background", Value: *opts.Background})
	}
	if opts.ExpireAfterSeconds != nil {
		spec = append(spec, bson.E{Key: "expireAfterSeconds", Value: *opts.ExpireAfterSeconds})
	}
	return append(spec, opts.Extra...)
}
