// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsonutil

import (
	"testing"

	"github.com/fortdb/mongo-maint-tools/common/testtype"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestFormatValue(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	oid, err := primitive.ObjectIDFromHex("5f1b2c3d4e5f60718293a4b5")
	assert.NoError(t, err)

	tests := []struct {
		in       interface{}
		expected string
	}{
		{nil, ""},
		{oid, "5f1b2c3d4e5f60718293a4b5"},
		{"user-17", "user-17"},
		{int32(42), "42"},
		{int64(-7), "-7"},
		{float64(1.5), "1.5"},
		{true, "true"},
		{bson.D{{"a", int32(1)}}, `{"a":1}`},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, FormatValue(test.in), "for %#v", test.in)
	}
}
