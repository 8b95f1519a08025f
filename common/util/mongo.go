// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package util

import (
	"fmt"
	"strings"
)

const (
	InvalidDBChars         = "/\\. \"\x00$"
	InvalidCollectionChars = "$\x00"
	DefaultHost            = "localhost"
	DefaultPort            = "27017"
)

// SplitHostArg extracts the replica set name from a --host value, returning
// the individual host addresses and the set name (possibly empty).
// e.g. "foo/a:1,b:2" -> (["a:1", "b:2"], "foo")
func SplitHostArg(connString string) ([]string, string) {
	slashIndex := strings.Index(connString, "/")
	setName := ""
	if slashIndex != -1 {
		setName = connString[:slashIndex]
		if slashIndex == len(connString)-1 {
			return []string{""}, setName
		}
		connString = connString[slashIndex+1:]
	}

	return strings.Split(connString, ","), setName
}

// BuildURI assembles a connection string from --host and --port values.
func BuildURI(host, port string) string {
	seedlist, setName := SplitHostArg(host)
	for i := range seedlist {
		if seedlist[i] == "" {
			seedlist[i] = DefaultHost
		}
		if port != "" && !strings.Contains(seedlist[i], ":") {
			seedlist[i] = seedlist[i] + ":" + port
		}
	}

	var query string
	if setName != "" {
		query = "?replicaSet=" + setName
	}
	return "mongodb://" + strings.Join(seedlist, ",") + "/" + query
}

// ValidateDBName checks that a database name is legal on the server.
func ValidateDBName(database string) error {
	if len(database) == 0 {
		return fmt.Errorf("database name cannot be empty")
	}
	if len(database) > 63 {
		return fmt.Errorf("database name %q is longer than 63 characters", database)
	}
	if strings.ContainsAny(database, InvalidDBChars) {
		return fmt.Errorf("database name %q cannot contain any of `%s`", database, InvalidDBChars)
	}
	return nil
}

// ValidateCollectionName checks that a collection name is legal on the server.
func ValidateCollectionName(collection string) error {
	if len(collection) == 0 {
		return fmt.Errorf("collection name cannot be empty")
	}
	if strings.ContainsAny(collection, InvalidCollectionChars) {
		return fmt.Errorf("collection name %q cannot contain any of `%s`", collection, InvalidCollectionChars)
	}
	return nil
}
