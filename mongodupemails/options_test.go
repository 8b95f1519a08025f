// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongodupemails

import (
	"testing"

	"github.com/fortdb/mongo-maint-tools/common/testtype"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParseOptions(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	Convey("With mongodupemails options", t, func() {
		Convey("parsing with no values should fill in the defaults", func() {
			opts, err := ParseOptions([]string{}, "", "")
			So(err, ShouldBeNil)
			So(opts.Type, ShouldEqual, CSV)
			So(opts.EmailField, ShouldEqual, DefaultEmailField)
			So(opts.Out, ShouldEqual, "")
			So(opts.AllowDiskUse, ShouldBeFalse)
			So(opts.GroupOnClient, ShouldBeFalse)
		})

		Convey("namespace and output flags should be set", func() {
			opts, err := ParseOptions([]string{
				"--db", "fort", "--collection", "users",
				"--out", "duplicate_emails.tsv", "--type", "tsv",
				"--emailField", "contact.email", "--groupOnClient", "--noHeaderLine",
			}, "", "")
			So(err, ShouldBeNil)
			So(opts.ToolOptions.Namespace.DB, ShouldEqual, "fort")
			So(opts.ToolOptions.Namespace.Collection, ShouldEqual, "users")
			So(opts.Out, ShouldEqual, "duplicate_emails.tsv")
			So(opts.Type, ShouldEqual, TSV)
			So(opts.EmailField, ShouldEqual, "contact.email")
			So(opts.GroupOnClient, ShouldBeTrue)
			So(opts.NoHeaderLine, ShouldBeTrue)
		})

		Convey("the database should come from the connection string", func() {
			opts, err := ParseOptions([]string{"mongodb://localhost:27017/fort", "-c", "users"}, "", "")
			So(err, ShouldBeNil)
			So(opts.ToolOptions.Namespace.DB, ShouldEqual, "fort")
			So(opts.ToolOptions.Namespace.Collection, ShouldEqual, "users")
		})

		Convey("extra positional arguments should be rejected", func() {
			_, err := ParseOptions([]string{"mongodb://localhost:27017", "users"}, "", "")
			So(err, ShouldNotBeNil)
		})

		Convey("unknown flags should be rejected", func() {
			_, err := ParseOptions([]string{"--fields", "email"}, "", "")
			So(err, ShouldNotBeNil)
		})
	})
}
