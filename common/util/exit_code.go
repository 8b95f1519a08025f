// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package util

const (
	ExitError      int = 1
	ExitClean      int = 0
	ExitBadOptions int = 3
	// Go reserves exit code 2 for its own use
)

// SetupError is the error thrown by "New" functions used to convey what error occurred and the appropriate exit code.
type SetupError struct {
	Err  error
	Code int
}

// Error implements the error interface.
func (se SetupError) Error() string {
	return se.Err.Error()
}

// Unwrap lets errors.Is and errors.As see the underlying error.
func (se SetupError) Unwrap() error {
	return se.Err
}

// ShortUsage returns the one-line pointer to a tool's help text.
func ShortUsage(tool string) string {
	return "try '" + tool + " --help' for more information"
}
