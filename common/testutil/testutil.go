// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package testutil implements functions for filtering and configuring tests.
package testutil

import (
	"context"
	"fmt"
	"os"

	"github.com/fortdb/mongo-maint-tools/common/db"
	"github.com/fortdb/mongo-maint-tools/common/options"
	"github.com/fortdb/mongo-maint-tools/common/testtype"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

const (
	uriEnvVar = "TOOLS_TESTING_MONGOD"

	CreatedUserNameEnv     = "TOOLS_TESTING_AUTH_USERNAME"
	CreatedUserPasswordEnv = "TOOLS_TESTING_AUTH_PASSWORD"
)

// GetBareSessionProvider returns a session provider from the environment or
// from a default host and port.
func GetBareSessionProvider(ctx context.Context) (*db.SessionProvider, *options.ToolOptions, error) {
	toolOptions, err := GetToolOptions()
	if err != nil {
		return nil, nil, fmt.Errorf(
			"error getting tool options to create a bare session provider: %w",
			err,
		)
	}

	sessionProvider, err := db.NewSessionProvider(ctx, *toolOptions)
	if err != nil {
		return nil, nil, err
	}

	return sessionProvider, toolOptions, nil
}

func GetToolOptions() (*options.ToolOptions, error) {
	var toolOptions *options.ToolOptions
	// get ToolOptions from URI or defaults
	if uri := os.Getenv(uriEnvVar); uri != "" {
		parse, err := connstring.ParseAndValidate(uri)
		if err != nil {
			return nil, fmt.Errorf(
				"%#q from the %#q env var is not a valid connection string: %w",
				uri,
				uriEnvVar,
				err,
			)
		}

		fakeArgs := []string{"--uri=" + uri}
		opts := options.EnabledOptions{Auth: parse.UsernameSet, URI: true}
		toolOptions = options.New("mongo-maint-test", "", "", "", true, opts)

		_, err = toolOptions.ParseArgs(fakeArgs)
		if err != nil {
			return nil, fmt.Errorf(
				"could not create toolOptions with %#q from the %#q env var: %w",
				uri,
				uriEnvVar,
				err,
			)
		}
		return toolOptions, nil
	}

	auth := GetAuthOptions()
	toolOptions = &options.ToolOptions{
		AppName: "mongo-maint-test",
		Connection: &options.Connection{
			Host:    "localhost",
			Port:    db.DefaultTestPort,
			Timeout: 3,
		},
		Auth:      &auth,
		Verbosity: &options.Verbosity{},
		URI:       &options.URI{},
		Namespace: &options.Namespace{},
	}

	if err := toolOptions.NormalizeOptionsAndURI(); err != nil {
		return nil, err
	}

	return toolOptions, nil
}

// GetBareArgs returns the connection arguments a tool under test needs to
// reach the test server.
func GetBareArgs() []string {
	args := []string{}

	args = append(args, authArgs()...)
	if uri := os.Getenv(uriEnvVar); uri != "" {
		args = append(args, "--uri", uri)
	} else {
		args = append(args, "--host", "localhost", "--port", db.DefaultTestPort)
	}

	return args
}

func GetAuthOptions() options.Auth {
	if testtype.HasTestType(testtype.AuthTestType) {
		return options.Auth{
			Username: os.Getenv(CreatedUserNameEnv),
			Password: os.Getenv(CreatedUserPasswordEnv),
			Source:   "admin",
		}
	}

	return options.Auth{}
}

func authArgs() []string {
	if testtype.HasTestType(testtype.AuthTestType) {
		return []string{
			"--username", os.Getenv(CreatedUserNameEnv),
			"--password", os.Getenv(CreatedUserPasswordEnv),
			"--authenticationDatabase", "admin",
		}
	}
	return nil
}
