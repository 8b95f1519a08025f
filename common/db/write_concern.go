// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package db

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fortdb/mongo-maint-tools/common/bsonutil"
	"github.com/fortdb/mongo-maint-tools/common/log"
	"github.com/fortdb/mongo-maint-tools/common/wcwrapper"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
	"gopkg.in/yaml.v2"
)

// write concern fields.
const (
	j         = "j"
	w         = "w"
	wTimeout  = "wtimeout"
	majString = "majority"
)

// NewMongoWriteConcern takes a string (from the command line writeConcern option) and a ConnString object
// (from the command line uri option) and returns a WriteConcern. If both are provided, preference is given to
// the command line writeConcern option. If neither is provided, the default 'majority' write concern is constructed.
func NewMongoWriteConcern(
	writeConcern string,
	cs *connstring.ConnString,
) (wc *wcwrapper.WriteConcern, err error) {

	// Log whatever write concern was generated
	defer func() {
		if wc != nil {
			log.Logvf(log.Info, "using write concern: %v", wc)
		}
	}()

	if writeConcern == "" && cs != nil {
		return constructWCFromConnString(cs)
	}

	return constructWCFromString(writeConcern)
}

// constructWCFromConnString takes in a parsed connection string and
// extracts values from it. If the ConnString has no write concern value, it defaults
// to 'majority'.
func constructWCFromConnString(cs *connstring.ConnString) (*wcwrapper.WriteConcern, error) {
	wc := wcwrapper.New()

	switch {
	case cs.WNumberSet:
		if cs.WNumber < 0 {
			return nil, fmt.Errorf("invalid 'w' argument: %v", cs.WNumber)
		}

		wc.W = cs.WNumber
	case cs.WString != "":
		wc.W = cs.WString
	default:
		wc.W = majString
	}

	if cs.J {
		wc.Journal = &cs.J
	}

	if cs.WTimeoutSet {
		wc.WTimeout = cs.WTimeout
	}

	return wc, nil
}

// constructWCFromString takes in a write concern and attempts to
// extract values from it. It returns an error if it is unable to parse the
// string or if a parsed write concern field value is invalid.
func constructWCFromString(writeConcern string) (*wcwrapper.WriteConcern, error) {

	// Default case
	if writeConcern == "" {
		return wcwrapper.Majority(), nil
	}

	// A document, either JSON or the shell's unquoted-key form.
	docWriteConcern := map[string]interface{}{}
	err := yaml.Unmarshal([]byte(writeConcern), &docWriteConcern)
	if err == nil && len(docWriteConcern) > 0 {
		return parseDocWriteConcern(docWriteConcern)
	}

	// Anything else is the 'w' value itself: "majority", 0, "4", a tag set
	// name.
	wOpt, err := parseModeString(writeConcern)
	if err != nil {
		return nil, err
	}

	return wcwrapper.Wrap(&writeconcern.WriteConcern{W: wOpt}), nil
}

// parseDocWriteConcern converts a map representing a write concern object into a WriteConcern.
func parseDocWriteConcern(
	docWriteConcern map[string]interface{},
) (*wcwrapper.WriteConcern, error) {
	for field := range docWriteConcern {
		if field != w && field != j && field != wTimeout {
			return nil, fmt.Errorf("unknown write concern field %#q", field)
		}
	}

	wc := wcwrapper.New()

	// Construct new options from 'w', if it exists; otherwise default to 'majority'
	if wVal, ok := docWriteConcern[w]; ok {
		rawW, err := parseWField(wVal)
		if err != nil {
			return nil, err
		}

		wc.W = rawW
	} else {
		wc.W = majString
	}

	// Journal option
	if jVal, ok := docWriteConcern[j]; ok && isTruthy(jVal) {
		wc.Journal = lo.ToPtr(true)
	}

	// Wtimeout option
	if wtimeout, ok := docWriteConcern[wTimeout]; ok {
		timeoutVal, ok := toInt(wtimeout)
		if !ok || timeoutVal < 0 {
			return nil, fmt.Errorf("invalid '%v' argument: %v", wTimeout, wtimeout)
		}
		// milliseconds, as in the server's own write concern document
		wc.WTimeout = time.Duration(timeoutVal) * time.Millisecond
	}

	return wc, nil
}

func parseWField(wValue interface{}) (any, error) {
	if wNumber, ok := toInt(wValue); ok {
		return parseModeNumber(wNumber)
	}

	if wStrVal, ok := wValue.(string); ok {
		return parseModeString(wStrVal)
	}

	return nil, fmt.Errorf("invalid 'w' argument type: %v has type %T", wValue, wValue)
}

// Given an integer, returns a write concern object or error.
func parseModeNumber(wNumber int) (any, error) {
	if wNumber < 0 {
		return nil, fmt.Errorf("invalid 'w' argument: %v", wNumber)
	}

	return wNumber, nil
}

// Given a string, returns a write concern object or error.
func parseModeString(wString string) (any, error) {
	// Default case
	if wString == "" {
		return majString, nil
	}

	// Try parsing as number before treating as just a string
	if wNumber, err := strconv.Atoi(wString); err == nil {
		return parseModeNumber(wNumber)
	}

	return wString, nil
}

// toInt accepts whole numbers of any numeric type.
func toInt(value interface{}) (int, bool) {
	f, ok := bsonutil.Bson2Float64(value)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

// isTruthy follows the shell: false, zero and null are false, everything
// else is true.
func isTruthy(value interface{}) bool {
	if value == nil {
		return false
	}
	if b, ok := value.(bool); ok {
		return b
	}
	if f, ok := bsonutil.Bson2Float64(value); ok {
		return f != 0
	}
	return true
}
