// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package mongodupemails finds users whose email addresses collide once
// letter case is ignored and writes them out as a delimited report.
package mongodupemails

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fortdb/mongo-maint-tools/common/bsonutil"
	"github.com/fortdb/mongo-maint-tools/common/db"
	"github.com/fortdb/mongo-maint-tools/common/log"
	"github.com/fortdb/mongo-maint-tools/common/options"
	"github.com/fortdb/mongo-maint-tools/common/util"
	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/exp/slices"
)

// DuplicateUser is one member of a DuplicateGroup.
type DuplicateUser struct {
	ID    interface{} `bson:"id"`
	Email string      `bson:"email"`
}

// DuplicateGroup holds every user whose email lowercases to Email.
type DuplicateGroup struct {
	Email string          `bson:"_id"`
	Count int             `bson:"count"`
	Users []DuplicateUser `bson:"users"`
}

// Row is one line of the report.
type Row struct {
	LowercaseEmail string `csv:"Lowercase Email"`
	Count          int    `csv:"Duplicate Count"`
	UserID         string `csv:"User ID"`
	Email          string `csv:"Original Email"`
}

// Collection is the part of *mongo.Collection the duplicate search uses.
type Collection interface {
	db.Finder
	Aggregate(ctx context.Context, pipeline interface{}, opts ...*mopt.AggregateOptions) (*mongo.Cursor, error)
}

// MongoDupEmails is a container for the user-specified options and the
// internal state used for running mongodupemails.
type MongoDupEmails struct {
	ToolOptions     *options.ToolOptions
	OutputOpts      *OutputOptions
	InputOpts       *InputOptions
	SessionProvider *db.SessionProvider

	// Stdout receives the report when no output file is given.
	Stdout io.Writer

	NewUploader UploaderFactory
}

// New constructs a new MongoDupEmails instance from the provided options.
func New(opts Options) (*MongoDupEmails, error) {
	dupEmails := &MongoDupEmails{
		ToolOptions: opts.ToolOptions,
		OutputOpts:  opts.OutputOptions,
		InputOpts:   opts.InputOptions,
		Stdout:      os.Stdout,
		NewUploader: newS3Uploader,
	}
	if err := dupEmails.validateSettings(); err != nil {
		return nil, util.SetupError{Err: err, Code: util.ExitBadOptions}
	}

	ctx, cancel := opts.RunContext()
	defer cancel()
	provider, err := db.NewSessionProvider(ctx, *opts.ToolOptions)
	if err != nil {
		return nil, util.SetupError{Err: err, Code: util.ExitError}
	}
	dupEmails.SessionProvider = provider
	return dupEmails, nil
}

// Close releases the connection to the server.
func (d *MongoDupEmails) Close() {
	if d.SessionProvider != nil {
		d.SessionProvider.Close()
	}
}

func (d *MongoDupEmails) validateSettings() error {
	if d.ToolOptions.DB == "" {
		return fmt.Errorf("must specify a database with --db")
	}
	if err := util.ValidateDBName(d.ToolOptions.DB); err != nil {
		return errors.Wrap(err, "invalid database name")
	}
	if d.ToolOptions.Namespace.Collection == "" {
		return fmt.Errorf("must specify a collection with --collection")
	}
	if err := util.ValidateCollectionName(d.ToolOptions.Namespace.Collection); err != nil {
		return errors.Wrap(err, "invalid collection name")
	}

	d.OutputOpts.Type = strings.ToLower(d.OutputOpts.Type)
	if d.OutputOpts.Type == "" {
		d.OutputOpts.Type = CSV
	}
	if d.OutputOpts.Type != CSV && d.OutputOpts.Type != TSV {
		return fmt.Errorf("invalid output type '%v', choose 'csv' or 'tsv'", d.OutputOpts.Type)
	}

	if d.InputOpts.EmailField == "" {
		d.InputOpts.EmailField = DefaultEmailField
	}
	if strings.HasPrefix(d.InputOpts.EmailField, "$") {
		return fmt.Errorf("--emailField %#q must not start with '$'", d.InputOpts.EmailField)
	}
	if d.InputOpts.GroupOnClient && d.InputOpts.AllowDiskUse {
		return fmt.Errorf("--allowDiskUse has no effect with --groupOnClient")
	}

	if isS3Location(d.OutputOpts.Out) {
		if _, _, err := parseS3Location(d.OutputOpts.Out); err != nil {
			return err
		}
	} else if d.OutputOpts.S3Region != "" {
		return fmt.Errorf("--s3Region requires an s3:// location for --out")
	}
	return nil
}

// BuildPipeline returns the aggregation that groups users by the lowercase
// form of emailField and keeps the groups with more than one member, largest
// first.
func BuildPipeline(emailField string) []bson.D {
	fieldRef := "$" + emailField
	return []bson.D{
		{{"$match", bson.D{{emailField, bson.D{{"$type", "string"}}}}}},
		{{"$addFields", bson.D{{"lowercaseEmail", bson.D{{"$toLower", fieldRef}}}}}},
		{{"$group", bson.D{
			{"_id", "$lowercaseEmail"},
			{"count", bson.D{{"$sum", 1}}},
			{"users", bson.D{{"$push", bson.D{{"id", "$_id"}, {"email", fieldRef}}}}},
		}}},
		{{"$match", bson.D{{"count", bson.D{{"$gt", 1}}}}}},
		{{"$sort", bson.D{{"count", -1}, {"_id", 1}}}},
	}
}

// FindDuplicates returns the duplicate groups of coll ordered by descending
// count.
func (d *MongoDupEmails) FindDuplicates(ctx context.Context, coll Collection) ([]DuplicateGroup, error) {
	var groups []DuplicateGroup
	var err error
	if d.InputOpts.GroupOnClient {
		groups, err = d.groupOnClient(ctx, coll)
	} else {
		groups, err = d.aggregate(ctx, coll)
	}
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(groups, func(a, b DuplicateGroup) int {
		return b.Count - a.Count
	})
	return groups, nil
}

func (d *MongoDupEmails) aggregate(ctx context.Context, coll Collection) ([]DuplicateGroup, error) {
	pipeline := BuildPipeline(d.InputOpts.EmailField)
	log.Logvf(log.DebugHigh, "running aggregation %v", bsonutil.CreateExtJSONString(bson.D{{"pipeline", pipeline}}))

	aggOpts := mopt.Aggregate()
	if d.InputOpts.AllowDiskUse {
		aggOpts.SetAllowDiskUse(true)
	}
	cursor, err := coll.Aggregate(ctx, pipeline, aggOpts)
	if err != nil {
		return nil, errors.Wrap(err, "error running aggregation")
	}
	defer cursor.Close(ctx)

	var groups []DuplicateGroup
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, errors.Wrap(err, "error reading aggregation results")
	}
	return groups, nil
}

func (d *MongoDupEmails) groupOnClient(ctx context.Context, coll Collection) ([]DuplicateGroup, error) {
	field := d.InputOpts.EmailField
	query := &db.DeferredQuery{
		Coll:       coll,
		Filter:     bson.D{{field, bson.D{{"$type", "string"}}}},
		Projection: bson.D{{"_id", 1}, {field, 1}},
	}
	cursor, err := query.Iter(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "error querying users")
	}
	defer cursor.Close(ctx)

	path := strings.Split(field, ".")
	var users []DuplicateUser
	for cursor.Next(ctx) {
		email, ok := cursor.Current.Lookup(path...).StringValueOK()
		if !ok {
			continue
		}
		var id interface{}
		if rawID, err := cursor.Current.LookupErr("_id"); err == nil {
			if err := rawID.Unmarshal(&id); err != nil {
				return nil, errors.Wrap(err, "error decoding user _id")
			}
		}
		users = append(users, DuplicateUser{ID: id, Email: email})
	}
	if err := cursor.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading users")
	}
	log.Logvf(log.DebugLow, "read %v users with a string %v", len(users), field)
	return GroupUsers(users), nil
}

// GroupUsers groups users by lowercase email the way the aggregation does:
// members keep their input order, groups of one are dropped, and groups are
// ordered by descending count then ascending email.
func GroupUsers(users []DuplicateUser) []DuplicateGroup {
	byEmail := map[string]int{}
	var groups []DuplicateGroup
	for _, user := range users {
		email := strings.ToLower(user.Email)
		i, ok := byEmail[email]
		if !ok {
			i = len(groups)
			byEmail[email] = i
			groups = append(groups, DuplicateGroup{Email: email})
		}
		groups[i].Count++
		groups[i].Users = append(groups[i].Users, user)
	}

	groups = slices.DeleteFunc(groups, func(g DuplicateGroup) bool {
		return g.Count < 2
	})
	slices.SortStableFunc(groups, func(a, b DuplicateGroup) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return strings.Compare(a.Email, b.Email)
	})
	return groups
}

// FlattenGroups turns every member of every group into a Row, keeping the
// group order and the member order within a group.
func FlattenGroups(groups []DuplicateGroup) []Row {
	return lo.FlatMap(groups, func(group DuplicateGroup, _ int) []Row {
		return lo.Map(group.Users, func(user DuplicateUser, _ int) Row {
			return Row{
				LowercaseEmail: group.Email,
				Count:          group.Count,
				UserID:         bsonutil.FormatValue(user.ID),
				Email:          user.Email,
			}
		})
	})
}

// WriteRows writes rows to w separated by delimiter, preceded by the column
// names when header is set.
func WriteRows(w io.Writer, rows []Row, delimiter rune, header bool) error {
	csvWriter := csv.NewWriter(w)
	csvWriter.Comma = delimiter
	out := gocsv.NewSafeCSVWriter(csvWriter)

	var err error
	if header {
		err = gocsv.MarshalCSV(rows, out)
	} else {
		err = gocsv.MarshalCSVWithoutHeaders(rows, out)
	}
	if err != nil {
		return errors.Wrap(err, "error writing rows")
	}
	out.Flush()
	return out.Error()
}

func (d *MongoDupEmails) delimiter() rune {
	if d.OutputOpts.Type == TSV {
		return '\t'
	}
	return ','
}

// Export finds the duplicates of the configured collection and writes the
// report. It returns the number of rows written.
func (d *MongoDupEmails) Export(ctx context.Context) (int, error) {
	coll := d.SessionProvider.DB(d.ToolOptions.DB).Collection(d.ToolOptions.Namespace.Collection)
	return d.ExportCollection(ctx, coll)
}

// ExportCollection is Export against the given collection. Nothing is
// written unless the query succeeds.
func (d *MongoDupEmails) ExportCollection(ctx context.Context, coll Collection) (int, error) {
	groups, err := d.FindDuplicates(ctx, coll)
	if err != nil {
		return 0, errors.Wrapf(err, "error finding duplicate emails in %v", d.ToolOptions.Namespace)
	}
	rows := FlattenGroups(groups)
	log.Logvf(log.Info, "found %v duplicate groups covering %v users", len(groups), len(rows))

	var report bytes.Buffer
	if err := WriteRows(&report, rows, d.delimiter(), !d.OutputOpts.NoHeaderLine); err != nil {
		return 0, err
	}
	if err := d.writeReport(ctx, report.Bytes()); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (d *MongoDupEmails) writeReport(ctx context.Context, report []byte) error {
	out := d.OutputOpts.Out
	switch {
	case out == "" || out == "-":
		_, err := d.Stdout.Write(report)
		return err
	case isS3Location(out):
		uploader, err := d.NewUploader(ctx, d.OutputOpts.S3Region)
		if err != nil {
			return err
		}
		return uploadReport(ctx, uploader, out, d.contentType(), report)
	}

	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return errors.Wrapf(err, "error creating directory for %v", out)
		}
	}
	log.Logvf(log.DebugLow, "writing report to %v", out)
	if err := os.WriteFile(out, report, 0o644); err != nil {
		return errors.Wrapf(err, "error writing %v", out)
	}
	return nil
}

func (d *MongoDupEmails) contentType() string {
	if d.OutputOpts.Type == TSV {
		return "text/tab-separated-values"
	}
	return "text/csv"
}
