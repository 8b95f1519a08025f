// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package util

import "regexp"

var uriCredentials = regexp.MustCompile(`^(mongodb(?:\+srv)?://)[^@/?]*@`)

// SanitizeURI redacts any credentials in a connection string so it can be
// logged.
func SanitizeURI(uri string) string {
	return uriCredentials.ReplaceAllString(uri, "${1}[**REDACTED**]@")
}
