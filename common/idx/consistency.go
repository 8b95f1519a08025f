// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package idx

import (
	"fmt"
	"strings"
)

var fieldTypeRequiredOpts = []struct {
	fieldType string
	option    string
}{
	{"2dsphere", "2dsphereIndexVersion"},
	{"text", "textIndexVersion"},
}

// FindInconsistency reports versioned key types whose version option is
// missing. Such indexes predate index versioning.
func (idx IndexDocument) FindInconsistency() error {
	// []any is for easier inclusion into fmt.Errorf below.
	var errors []any

	for _, keySpec := range idx.Key {
		for _, ftro := range fieldTypeRequiredOpts {
			if keySpec.Value == ftro.fieldType {
				if _, hasOpt := idx.Options[ftro.option]; !hasOpt {
					errors = append(errors, fmt.Errorf("index %#q includes a %#q field (%#q) but lacks a %#q", idx.Name(), ftro.fieldType, keySpec.Key, ftro.option))
				}
			}
		}
	}

	if len(errors) == 0 {
		return nil
	}

	return fmt.Errorf(
		strings.Join(repeat(len(errors), "%w"), "; "),
		errors...,
	)
}

// EnsureIndexVersions sets version 1 on every versioned key type that lacks
// a version, so the target does not build a current-version index for a
// definition that predates versioning. It returns the options it set.
func (idx IndexDocument) EnsureIndexVersions() map[string]any {
	inferred := map[string]any{}

	for _, keySpec := range idx.Key {
		for _, ftro := range fieldTypeRequiredOpts {
			if keySpec.Value == ftro.fieldType {
				if _, hasOpt := idx.Options[ftro.option]; !hasOpt {
					inferred[ftro.option] = int32(1)
				}
			}
		}
	}

	for optName, optVal := range inferred {
		idx.Options[optName] = optVal
	}

	return inferred
}

func repeat[T any](count int, prototype T) []T {
	retval := make([]T, count)
	for i := 0; i < count; i++ {
		retval[i] = prototype
	}

	return retval
}
