// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package password reads a password from the terminal, or from standard
// input when it is not a terminal.
package password

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/fortdb/mongo-maint-tools/common/log"
)

const (
	backspaceKey      = 8
	deleteKey         = 127
	etxKey            = 3
	eotKey            = 4
	newLineKey        = 10
	carriageReturnKey = 13
)

// Prompt asks for the password of what on stderr and returns the answer.
func Prompt(what string) (string, error) {
	fmt.Fprintf(os.Stderr, "Enter password for %s:", what)

	var pass string
	var err error
	if IsTerminal() {
		log.Logv(log.DebugLow, "standard input is a terminal; reading password from terminal")
		pass, err = readPassInteractively()
	} else {
		log.Logv(log.Always, "reading password from standard input")
		pass, err = readPassNonInteractively(bufio.NewReader(os.Stdin))
	}
	if err != nil {
		return "", err
	}
	fmt.Fprintln(os.Stderr)
	return pass, nil
}

// readPassNonInteractively consumes bytes up to the first line terminator,
// honoring backspace and delete.
func readPassNonInteractively(reader io.ByteReader) (string, error) {
	pass := []byte{}
	for {
		ch, err := reader.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch ch {
		case backspaceKey, deleteKey:
			if len(pass) > 0 {
				pass = pass[:len(pass)-1]
			}
		case carriageReturnKey, newLineKey, etxKey, eotKey:
			return string(pass), nil
		case 0:
		default:
			pass = append(pass, ch)
		}
	}
	return string(pass), nil
}
