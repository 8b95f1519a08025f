// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongodupemails

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/fortdb/mongo-maint-tools/common/log"
	"github.com/pkg/errors"
)

const s3Scheme = "s3://"

// Uploader is the part of *manager.Uploader the report upload needs.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// UploaderFactory builds an Uploader for the given region. An empty region
// leaves the choice to the shared AWS configuration.
type UploaderFactory func(ctx context.Context, region string) (Uploader, error)

func isS3Location(out string) bool {
	return strings.HasPrefix(out, s3Scheme)
}

// parseS3Location splits s3://bucket/key into its bucket and key.
func parseS3Location(location string) (string, string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", errors.Wrapf(err, "invalid S3 location %#q", location)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("invalid S3 location %#q: scheme must be s3", location)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("invalid S3 location %#q: expected s3://<bucket>/<key>", location)
	}
	return u.Host, key, nil
}

func newS3Uploader(ctx context.Context, region string) (Uploader, error) {
	var loadOpts []func(*config.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}
	return manager.NewUploader(s3.NewFromConfig(cfg)), nil
}

// uploadReport puts the rendered report at location.
func uploadReport(ctx context.Context, uploader Uploader, location, contentType string, report []byte) error {
	bucket, key, err := parseS3Location(location)
	if err != nil {
		return err
	}
	log.Logvf(log.DebugLow, "uploading %v bytes to s3://%v/%v", len(report), bucket, key)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		Body:        bytes.NewReader(report),
	})
	if err != nil {
		return fmt.Errorf("failed to upload: %w", err)
	}
	return nil
}
