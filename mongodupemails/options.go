// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongodupemails

import (
	"fmt"

	"github.com/fortdb/mongo-maint-tools/common/options"
)

var Usage = `<options> <connection-string>

Report users whose email addresses differ only by letter case.

Every user of a colliding group is written as one row of a CSV or TSV report,
to a file, stdout or an s3:// location. The server folds ASCII letters only;
--groupOnClient folds all Unicode letters, so non-ASCII addresses may group
differently between the two modes.

Connection strings must begin with mongodb:// or mongodb+srv://.`

const (
	CSV = "csv"
	TSV = "tsv"

	DefaultEmailField = "email_address"
)

// Options holds everything mongodupemails is configured with.
type Options struct {
	*options.ToolOptions
	*OutputOptions
	*InputOptions
}

// OutputOptions defines the set of options for writing the report.
type OutputOptions struct {
	// Out is a file path, "-" for stdout, or an s3://bucket/key location.
	Out string `long:"out" value-name:"<filename>" short:"o" description:"output file; '-' or unset writes to stdout, s3://bucket/key uploads to S3"`

	// Type selects the delimiter of the report.
	Type string `long:"type" value-name:"<type>" default:"csv" default-mask:"-" description:"the output format, either csv or tsv (defaults to 'csv')"`

	// NoHeaderLine skips the column header row.
	NoHeaderLine bool `long:"noHeaderLine" description:"do not write the column names as the first line"`

	// S3Region overrides the region from the AWS configuration chain.
	S3Region string `long:"s3Region" value-name:"<region>" description:"AWS region of the bucket when --out is an s3:// location"`
}

// Name returns a human-readable group name for output options.
func (*OutputOptions) Name() string {
	return "output"
}

// InputOptions defines the set of options to use in finding duplicates.
type InputOptions struct {
	EmailField    string `long:"emailField" value-name:"<field>" default:"email_address" default-mask:"-" description:"field holding the email address, dotted paths allowed (defaults to 'email_address')"`
	AllowDiskUse  bool   `long:"allowDiskUse" description:"let the aggregation use temporary files on the server"`
	GroupOnClient bool   `long:"groupOnClient" description:"read the email field of every user and group in this process instead of running an aggregation"`
}

// Name returns a human-readable group name for input options.
func (*InputOptions) Name() string {
	return "query"
}

// ParseOptions reads command line arguments and converts them into options
// used to configure the tool.
func ParseOptions(rawArgs []string, versionStr, gitCommit string) (Options, error) {
	opts := options.New("mongodupemails", versionStr, gitCommit, Usage, true,
		options.EnabledOptions{Auth: true, Connection: true, Namespace: true, URI: true})

	outputOpts := &OutputOptions{}
	opts.AddOptions(outputOpts)
	inputOpts := &InputOptions{}
	opts.AddOptions(inputOpts)

	extraArgs, err := opts.ParseArgs(rawArgs)
	if err != nil {
		return Options{}, err
	}

	if len(extraArgs) != 0 {
		return Options{}, fmt.Errorf("too many positional arguments: %v", extraArgs)
	}

	return Options{opts, outputOpts, inputOpts}, nil
}
