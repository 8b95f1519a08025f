// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongoindexcopy

import (
	"fmt"

	"github.com/fortdb/mongo-maint-tools/common/options"
)

var Usage = `<options> <connection-string>

Copy index definitions from one database to another.

Every index of every collection in the --from database is created on the
collection of the same name in the --to database, unless the target already
has an index of that name. The default _id index is never copied.

Connection strings must begin with mongodb:// or mongodb+srv://.`

// Options holds everything mongoindexcopy is configured with.
type Options struct {
	*options.ToolOptions
	*CopyOptions
}

// CopyOptions defines what is copied and where to.
type CopyOptions struct {
	From        string   `long:"from" value-name:"<database-name>" description:"database to read index definitions from"`
	To          string   `long:"to" value-name:"<database-name>" description:"database to create the indexes in"`
	ToURI       string   `long:"toUri" value-name:"<mongodb-uri>" description:"connection string of the target deployment (defaults to the source deployment)"`
	Collections []string `long:"collection" short:"c" value-name:"<collection-name>" description:"only copy the indexes of this collection; may be repeated"`

	WriteConcern string `long:"writeConcern" value-name:"<write-concern>" description:"write concern for index creation, e.g. --writeConcern majority or --writeConcern '{w: 2, wtimeout: 5000}' (defaults to the target URI's, else 'majority')"`

	DryRun               bool `long:"dryRun" description:"log the indexes that would be created without creating them"`
	AllOptions           bool `long:"allOptions" description:"copy every index option the server recognizes, not only unique, sparse, background and expireAfterSeconds"`
	ConvertLegacyIndexes bool `long:"convertLegacyIndexes" description:"rewrite legacy index key values and drop unknown index options before creating indexes"`
}

// Name returns a human-readable group name for copy options.
func (*CopyOptions) Name() string {
	return "copy"
}

// ParseOptions reads command line arguments and converts them into options
// used to configure the tool.
func ParseOptions(rawArgs []string, versionStr, gitCommit string) (Options, error) {
	opts := options.New("mongoindexcopy", versionStr, gitCommit, Usage, true,
		options.EnabledOptions{Auth: true, Connection: true, Namespace: false, URI: true})

	copyOpts := &CopyOptions{}
	opts.AddOptions(copyOpts)

	extraArgs, err := opts.ParseArgs(rawArgs)
	if err != nil {
		return Options{}, err
	}

	if len(extraArgs) != 0 {
		return Options{}, fmt.Errorf("too many positional arguments: %v", extraArgs)
	}

	return Options{opts, copyOpts}, nil
}
