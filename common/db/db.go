// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package db implements generic connection to MongoDB and the database
// operations shared by the tools.
package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fortdb/mongo-maint-tools/common/log"
	"github.com/fortdb/mongo-maint-tools/common/options"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// Default port for integration tests
const (
	DefaultTestPort = "33333"
)

// Used to manage database sessions
type SessionProvider struct {
	sync.Mutex

	// the master client used for operations
	client *mongo.Client
}

// Returns a mongo.Client connected to the database server for which the
// session provider is configured.
func (sp *SessionProvider) GetSession() (*mongo.Client, error) {
	sp.Lock()
	defer sp.Unlock()

	if sp.client == nil {
		return nil, errors.New("SessionProvider already closed")
	}

	return sp.client, nil
}

// Close closes the master session in the connection pool
func (sp *SessionProvider) Close() {
	sp.Lock()
	defer sp.Unlock()
	if sp.client != nil {
		_ = sp.client.Disconnect(context.Background())
		sp.client = nil
	}
}

// DB provides a database with the default read preference
func (sp *SessionProvider) DB(name string) *mongo.Database {
	return sp.client.Database(name)
}

// ServerVersion returns the version the connected server reports.
func (sp *SessionProvider) ServerVersion(ctx context.Context) (Version, error) {
	client, err := sp.GetSession()
	if err != nil {
		return Version{}, err
	}
	var buildInfo struct {
		Version string `bson:"version"`
	}
	res := client.Database("admin").RunCommand(ctx, bson.D{{"buildInfo", 1}})
	if err := res.Decode(&buildInfo); err != nil {
		return Version{}, fmt.Errorf("error running buildInfo: %v", err)
	}
	return StrToVersion(buildInfo.Version)
}

// NewSessionProvider constructs a session provider, including a connected
// client. The server is pinged before the provider is returned.
func NewSessionProvider(ctx context.Context, opts options.ToolOptions) (*SessionProvider, error) {
	clientopt, err := configureClient(opts)
	if err != nil {
		return nil, fmt.Errorf("error configuring the connector: %v", err)
	}
	client, err := mongo.Connect(ctx, clientopt)
	if err != nil {
		return nil, err
	}
	err = client.Ping(ctx, nil)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("could not connect to server: %v", err)
	}
	log.Logvf(log.DebugLow, "connected to %v", opts.URI.GetConnectionAddrs())

	// create the provider
	return &SessionProvider{client: client}, nil
}

// configure the client according to the options set in the uri and in the provided ToolOptions, with ToolOptions having precedence.
func configureClient(opts options.ToolOptions) (*mopt.ClientOptions, error) {
	if opts.URI == nil || opts.URI.ConnectionString == "" {
		// Normal operations shouldn't ever reach here because a URI should
		// be created in options parsing, but tests still manually construct
		// options and generally don't construct a URI, so we invoke the URI
		// normalization routine here to correct for that.
		if err := opts.NormalizeOptionsAndURI(); err != nil {
			return nil, err
		}
	}

	cs := opts.URI.ParsedConnString()

	// the URI carries the options the tools have no flags for (tls, pool
	// sizes, read concern, compressors)
	clientopt := mopt.Client().ApplyURI(cs.Original)

	clientopt.SetHosts(cs.Hosts)

	if opts.Connection != nil {
		clientopt.SetConnectTimeout(time.Duration(opts.Timeout) * time.Second)
		if opts.SocketTimeout > 0 {
			clientopt.SetSocketTimeout(time.Duration(opts.SocketTimeout) * time.Second)
		}
		if opts.Connection.ServerSelectionTimeout > 0 {
			clientopt.SetServerSelectionTimeout(time.Duration(opts.Connection.ServerSelectionTimeout) * time.Second)
		}
	}
	if opts.ReplicaSetName != "" {
		clientopt.SetReplicaSet(opts.ReplicaSetName)
	}

	clientopt.SetAppName(opts.AppName)
	if opts.Direct && len(clientopt.Hosts) == 1 {
		clientopt.SetDirect(true)
		t := true
		clientopt.AuthenticateToAnything = &t
	}

	if cs.ReadPreference == "" {
		clientopt.SetReadPreference(readpref.Primary())
	}
	if !cs.JSet && cs.WString == "" && !cs.WNumberSet && !cs.WTimeoutSet {
		// If no write concern was specified, default to majority
		clientopt.SetWriteConcern(writeconcern.Majority())
	}

	if opts.Auth != nil && opts.Auth.IsSet() {
		cred := mopt.Credential{
			Username:      opts.Auth.Username,
			Password:      opts.Auth.Password,
			AuthSource:    opts.GetAuthenticationDatabase(),
			AuthMechanism: opts.Auth.Mechanism,
		}
		if cs.AuthMechanism == "MONGODB-AWS" {
			cred.Username = cs.Username
			cred.Password = cs.Password
			cred.AuthSource = cs.AuthSource
			cred.AuthMechanism = cs.AuthMechanism
			cred.AuthMechanismProperties = cs.AuthMechanismProperties
		}
		// Technically, an empty password is possible, but the tools don't have the
		// means to easily distinguish and so require a non-empty password.
		if cred.Password != "" {
			cred.PasswordSet = true
		}
		clientopt.SetAuth(cred)
	}

	return clientopt, nil
}
