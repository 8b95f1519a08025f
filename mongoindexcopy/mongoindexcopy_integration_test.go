// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongoindexcopy

import (
	"context"
	"testing"

	"github.com/fortdb/mongo-maint-tools/common/db"
	"github.com/fortdb/mongo-maint-tools/common/testtype"
	"github.com/fortdb/mongo-maint-tools/common/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	sourceTestDB = "mongoindexcopy_test_source"
	targetTestDB = "mongoindexcopy_test_target"
)

func TestRunAgainstServer(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.IntegrationTestType)

	ctx := context.Background()
	provider, toolOpts, err := testutil.GetBareSessionProvider(ctx)
	require.NoError(t, err)
	defer provider.Close()

	for _, name := range []string{sourceTestDB, targetTestDB} {
		require.NoError(t, provider.DB(name).Drop(ctx))
		defer provider.DB(name).Drop(ctx)
	}

	source := provider.DB(sourceTestDB)
	require.NoError(t, db.CreateIndexes(ctx, source, "users", nil,
		bson.D{{"key", bson.D{{"email_address", 1}}}, {"name", "email_address_1"}, {"unique", true}},
		bson.D{{"key", bson.D{{"lastLogin", 1}}}, {"name", "lastLogin_1"}, {"expireAfterSeconds", int32(86400)}},
	))
	require.NoError(t, db.CreateIndexes(ctx, source, "sessions", nil,
		bson.D{{"key", bson.D{{"user", 1}}}, {"name", "user_1"}},
	))

	ic := &MongoIndexCopy{
		ToolOptions:    toolOpts,
		CopyOpts:       &CopyOptions{From: sourceTestDB, To: targetTestDB},
		SourceProvider: provider,
		TargetProvider: provider,
	}

	result, err := ic.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Created: 3}, result)

	indexes, err := db.GetIndexes(ctx, provider.DB(targetTestDB).Collection("users"))
	require.NoError(t, err)
	require.Len(t, indexes, 3)
	byName := map[string]bson.M{}
	for _, index := range indexes {
		byName[index.Name()] = index.Options
	}
	assert.Contains(t, byName, "_id_")
	assert.Equal(t, true, byName["email_address_1"]["unique"])
	assert.EqualValues(t, 86400, byName["lastLogin_1"]["expireAfterSeconds"])

	again, err := ic.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 3}, again)
}
