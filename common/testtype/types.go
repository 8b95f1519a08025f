// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package testtype gates tests on the kind of environment they need.
package testtype

import (
	"os"
	"testing"
)

const (
	// Integration tests require a mongod running on localhost:33333. If your
	// mongod uses SSL you need to specify the "ssl" type below, and ditto for
	// if your mongod requires auth.
	IntegrationTestType = "TOOLS_TESTING_INTEGRATION"

	// Unit tests don't require a real mongod. They may still do file I/O.
	UnitTestType = "TOOLS_TESTING_UNIT"

	// Auth tests require a mongod with auth enabled.
	AuthTestType = "TOOLS_TESTING_AUTH"

	// AWS tests upload to a real bucket named by TOOLS_TESTING_S3_BUCKET.
	AWSTestType = "TOOLS_TESTING_AWS"
)

// HasTestType returns true if the test type environment variable is set.
func HasTestType(testType string) bool {
	envVal := os.Getenv(testType)
	return envVal == "true"
}

// SkipUnlessTestType skips the test unless the given type is enabled. Unit
// tests run by default; every other type must be requested explicitly.
func SkipUnlessTestType(t *testing.T, testType string) {
	if testType == UnitTestType && os.Getenv(testType) != "false" {
		return
	}
	if !HasTestType(testType) {
		t.SkipNow()
	}
}
