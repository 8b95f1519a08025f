// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package db

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Version is a major.minor.patch server version.
type Version [3]int

func (v1 Version) Cmp(v2 Version) int {
	for i := range v1 {
		if v1[i] < v2[i] {
			return -1
		}
		if v1[i] > v2[i] {
			return 1
		}
	}
	return 0
}

// LT reports whether v1 is an older version than v2.
func (v1 Version) LT(v2 Version) bool {
	return v1.Cmp(v2) == -1
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v[0], v[1], v[2])
}

func StrToVersion(v string) (Version, error) {
	// get rid of build strings
	v = strings.SplitN(v, "-", 2)[0]
	v = strings.SplitN(v, "+", 2)[0]

	parts := strings.SplitN(v, ".", 3)

	if len(parts) != 3 {
		return Version{}, errors.New("invalid version string")
	}

	result := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return Version{}, errors.New(
				"failed to parse version number part, invalid version string",
			)
		}
		result[i] = n
	}
	return Version{result[0], result[1], result[2]}, nil
}
