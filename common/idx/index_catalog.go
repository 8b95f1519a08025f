// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package idx

import (
	"fmt"
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/exp/slices"
)

// CollectionIndexCatalog stores the current view of all indexes of a single collection.
type CollectionIndexCatalog struct {
	names mapset.Set[string]
	// Maps index name to its key pattern.
	keys map[string]bson.D
}

// IndexCatalog stores the index names known to exist on each collection of
// one database.
type IndexCatalog struct {
	sync.Mutex
	collections map[string]*CollectionIndexCatalog
}

// NewIndexCatalog inits an IndexCatalog
func NewIndexCatalog() *IndexCatalog {
	return &IndexCatalog{collections: make(map[string]*CollectionIndexCatalog)}
}

func (i *IndexCatalog) getCollectionIndexCatalog(collection string) *CollectionIndexCatalog {
	collIndexCatalog, found := i.collections[collection]
	if !found {
		collIndexCatalog = &CollectionIndexCatalog{
			names: mapset.NewThreadUnsafeSet[string](),
			keys:  make(map[string]bson.D),
		}
		i.collections[collection] = collIndexCatalog
	}
	return collIndexCatalog
}

// AddIndex records index on collection. Documents without a name are ignored.
func (i *IndexCatalog) AddIndex(collection string, index *IndexDocument) {
	name := index.Name()
	if name == "" {
		return
	}
	i.Lock()
	defer i.Unlock()
	catalog := i.getCollectionIndexCatalog(collection)
	catalog.names.Add(name)
	catalog.keys[name] = index.Key
}

// AddIndexes records every index of indexes on collection. A collection with
// no indexes is still registered.
func (i *IndexCatalog) AddIndexes(collection string, indexes []*IndexDocument) {
	i.Lock()
	i.getCollectionIndexCatalog(collection)
	i.Unlock()
	for _, index := range indexes {
		i.AddIndex(collection, index)
	}
}

// HasIndex reports whether an index called name exists on collection.
func (i *IndexCatalog) HasIndex(collection, name string) bool {
	i.Lock()
	defer i.Unlock()
	catalog, found := i.collections[collection]
	return found && catalog.names.Contains(name)
}

// GetKey returns the key pattern recorded for the named index.
func (i *IndexCatalog) GetKey(collection, name string) (bson.D, bool) {
	i.Lock()
	defer i.Unlock()
	catalog, found := i.collections[collection]
	if !found {
		return nil, false
	}
	key, found := catalog.keys[name]
	return key, found
}

// IndexNames returns the sorted index names of collection.
func (i *IndexCatalog) IndexNames(collection string) []string {
	i.Lock()
	defer i.Unlock()
	catalog, found := i.collections[collection]
	if !found {
		return nil
	}
	names := catalog.names.ToSlice()
	slices.Sort(names)
	return names
}

// Missing returns the sorted names from names that collection lacks.
func (i *IndexCatalog) Missing(collection string, names []string) []string {
	wanted := mapset.NewThreadUnsafeSet(names...)
	i.Lock()
	if catalog, found := i.collections[collection]; found {
		wanted = wanted.Difference(catalog.names)
	}
	i.Unlock()
	missing := wanted.ToSlice()
	slices.Sort(missing)
	return missing
}

// Collections returns the sorted names of the registered collections.
func (i *IndexCatalog) Collections() []string {
	i.Lock()
	defer i.Unlock()
	collections := make([]string, 0, len(i.collections))
	for collection := range i.collections {
		collections = append(collections, collection)
	}
	slices.Sort(collections)
	return collections
}

// String formats the IndexCatalog for debugging purposes
func (i *IndexCatalog) String() string {
	var b strings.Builder
	b.WriteString("IndexCatalog:\n")
	for _, collection := range i.Collections() {
		b.WriteString(fmt.Sprintf("\t%s:\n", collection))
		for _, name := range i.IndexNames(collection) {
			key, _ := i.GetKey(collection, name)
			b.WriteString(fmt.Sprintf("\t\t%s: %v\n", name, key))
		}
	}
	return b.String()
}
