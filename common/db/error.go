// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package db

import (
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

const (
	ErrNsNotFound = "ns not found"

	ErrNamespaceNotFoundCode     = 26
	ErrIndexOptionsConflictCode  = 85
	ErrIndexKeySpecsConflictCode = 86
)

var indexConflictCodes = map[int32]bool{
	ErrIndexOptionsConflictCode:  true,
	ErrIndexKeySpecsConflictCode: true,
}

// IsNamespaceNotFound reports whether err says the collection or database
// does not exist.
func IsNamespaceNotFound(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code == ErrNamespaceNotFoundCode || strings.Contains(cmdErr.Message, ErrNsNotFound)
	}
	return false
}

// IsIndexConflict reports whether err says an index with the same name or
// key but different options already exists.
func IsIndexConflict(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return indexConflictCodes[cmdErr.Code]
	}
	return false
}
