// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsonutil

import (
	"math"
	"math/big"

	"github.com/fortdb/mongo-maint-tools/common/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// validIndexOptions are taken from https://github.com/mongodb/mongo/blob/master/src/mongo/db/index/index_descriptor.h
var validIndexOptions = map[string]bool{
	"2dsphereIndexVersion":    true,
	"background":              true,
	"bits":                    true,
	"bucketSize":              true,
	"coarsestIndexedLevel":    true,
	"collation":               true,
	"default_language":        true,
	"expireAfterSeconds":      true,
	"finestIndexedLevel":      true,
	"hidden":                  true,
	"key":                     true,
	"language_override":       true,
	"max":                     true,
	"min":                     true,
	"name":                    true,
	"ns":                      true,
	"partialFilterExpression": true,
	"sparse":                  true,
	"storageEngine":           true,
	"textIndexVersion":        true,
	"unique":                  true,
	"v":                       true,
	"weights":                 true,
	"wildcardProjection":      true,
}

const epsilon = 1e-9

// IsValidIndexOption reports whether the server recognizes name as an index
// option.
func IsValidIndexOption(name string) bool {
	return validIndexOptions[name]
}

func IsIndexKeysEqual(indexKey1 bson.D, indexKey2 bson.D) bool {
	if len(indexKey1) != len(indexKey2) {
		// two indexes have different number of keys
		return false
	}

	for j, elem := range indexKey1 {
		if elem.Key != indexKey2[j].Key {
			return false
		}

		// After ConvertLegacyIndexKeys, index key value should only be numerical or string value
		switch key1Value := elem.Value.(type) {
		case string:
			if key2Value, ok := indexKey2[j].Value.(string); ok {
				if key1Value == key2Value {
					continue
				}
			}
			return false
		default:
			if key1Value, ok := Bson2Float64(key1Value); ok {
				if key2Value, ok := Bson2Float64(indexKey2[j].Value); ok {
					if math.Abs(key1Value-key2Value) < epsilon {
						continue
					}
				}
			}
			return false
		}
	}
	return true
}

// Bson2Float64 converts any numeric BSON value to a float64. The second
// return is false for non-numeric values.
func Bson2Float64(data interface{}) (float64, bool) {
	switch v := data.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case primitive.Decimal128:
		if f, err := strconvDecimal(v); err == nil {
			return f, true
		}
	}
	return 0, false
}

func strconvDecimal(d primitive.Decimal128) (float64, error) {
	bi, exp, err := d.BigInt()
	if err != nil {
		return 0, err
	}
	f, _ := new(big.Float).SetInt(bi).Float64()
	return f * math.Pow10(exp), nil
}

// ConvertLegacyIndexKeys transforms the values of index definitions pre 3.4 into
// the stricter index definitions of 3.4+. Prior to 3.4, any value in an index key
// that isn't a negative number or that isn't a string is treated as int32(1).
// The one exception is an empty string is treated as int32(1).
// All other strings that aren't one of ["2d", "geoHaystack", "2dsphere", "hashed", "text", ""]
// will cause the index build to fail.
//
// This function logs the keys that are converted.
func ConvertLegacyIndexKeys(indexKey bson.D, ns string) {
	var converted bool
	originalJSONString := CreateExtJSONString(indexKey)
	for j, elem := range indexKey {
		switch v := elem.Value.(type) {
		case int:
			if v == 0 {
				indexKey[j].Value = int32(1)
				converted = true
			}
		case int32:
			if v == int32(0) {
				indexKey[j].Value = int32(1)
				converted = true
			}
		case int64:
			if v == int64(0) {
				indexKey[j].Value = int32(1)
				converted = true
			}
		case float64:
			if math.Abs(v) < epsilon {
				// keep the direction of a tiny negative value
				if math.Signbit(v) {
					indexKey[j].Value = int32(-1)
				} else {
					indexKey[j].Value = int32(1)
				}
				converted = true
			}
		case primitive.Decimal128:
			if bi, _, err := v.BigInt(); err == nil {
				if bi.Cmp(big.NewInt(0)) == 0 {
					indexKey[j].Value = int32(1)
					converted = true
				}
			}
		case string:
			// Only convert an empty string
			if v == "" {
				indexKey[j].Value = int32(1)
				converted = true
			}
		default:
			// Convert all types that aren't strings or numbers
			indexKey[j].Value = int32(1)
			converted = true
		}
	}
	if converted {
		newJSONString := CreateExtJSONString(indexKey)
		log.Logvf(
			log.Always,
			"convertLegacyIndexes: converted index values '%s' to '%s' on collection '%s'",
			originalJSONString,
			newJSONString,
			ns,
		)
	}
}

// ConvertLegacyIndexOptions removes options that don't match a known list of
// index options. Servers before 4.1.9 reject unknown options on createIndexes,
// so they are stripped in the client.
func ConvertLegacyIndexOptions(indexOptions bson.M) {
	var converted bool
	originalJSONString := CreateExtJSONString(indexOptions)
	for key := range indexOptions {
		if _, ok := validIndexOptions[key]; !ok {
			delete(indexOptions, key)
			converted = true
		}
	}
	if converted {
		newJSONString := CreateExtJSONString(indexOptions)
		log.Logvf(log.Always, "convertLegacyIndexes: converted index options '%s' to '%s'",
			originalJSONString, newJSONString)
	}
}

// CreateExtJSONString stringifies doc as Extended JSON. It does not error
// if it's unable to marshal the doc to JSON.
func CreateExtJSONString(doc interface{}) string {
	// by default return "<unable to format document>"" since we don't
	// want to throw an error when formatting informational messages.
	// An error would be inconsequential.
	JSONString := "<unable to format document>"
	JSONBytes, err := bson.MarshalExtJSON(doc, false, false)
	if err == nil {
		JSONString = string(JSONBytes)
	}
	return JSONString
}
