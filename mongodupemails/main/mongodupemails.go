// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Main package for the mongodupemails tool.
package main

import (
	"errors"
	"os"

	"github.com/fortdb/mongo-maint-tools/common/log"
	"github.com/fortdb/mongo-maint-tools/common/util"
	"github.com/fortdb/mongo-maint-tools/mongodupemails"
)

var (
	VersionStr = "built-without-version-string"
	GitCommit  = "build-without-git-commit"
)

func main() {
	opts, err := mongodupemails.ParseOptions(os.Args[1:], VersionStr, GitCommit)
	if err != nil {
		log.Logvf(log.Always, "error parsing command line options: %s", err.Error())
		log.Logvf(log.Always, util.ShortUsage("mongodupemails"))
		os.Exit(util.ExitBadOptions)
	}

	// print help, if specified
	if opts.PrintHelp(false) {
		return
	}

	// print version, if specified
	if opts.PrintVersion() {
		return
	}

	log.SetVerbosity(opts.Verbosity)

	// verify uri options and log them
	opts.URI.LogUnsupportedOptions()

	dupEmails, err := mongodupemails.New(opts)
	if err != nil {
		log.Logvf(log.Always, "Failed: %v", err)
		var setupErr util.SetupError
		if errors.As(err, &setupErr) {
			if setupErr.Code == util.ExitBadOptions {
				log.Logvf(log.Always, util.ShortUsage("mongodupemails"))
			}
			os.Exit(setupErr.Code)
		}
		os.Exit(util.ExitError)
	}

	ctx, cancel := opts.RunContext()
	numRows, err := dupEmails.Export(ctx)
	cancel()
	dupEmails.Close()
	if err != nil {
		log.Logvf(log.Always, "Failed: %v", err)
		os.Exit(util.ExitError)
	}

	if numRows == 1 {
		log.Logvf(log.Always, "exported %v row", numRows)
	} else {
		log.Logvf(log.Always, "exported %v rows", numRows)
	}
}
