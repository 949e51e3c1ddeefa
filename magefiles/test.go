//go:build mage

// Copyright (c) 2026 The lawcascade Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// envPostgresDSN enables the Postgres law store tests.
const envPostgresDSN = "CASCADE_TEST_POSTGRES_DSN"

// Test groups test targets (all, unit, postgres).
type Test mg.Namespace

// All runs every test with the race detector.
func (Test) All() error {
	return sh.RunV(binGo, "test", "-race", "-v", "./...")
}

// Unit runs the tests in short mode.
func (Test) Unit() error {
	return sh.RunV(binGo, "test", "-short", "./...")
}

// Postgres runs the Postgres law store tests against the database named by
// CASCADE_TEST_POSTGRES_DSN.
func (Test) Postgres() error {
	if os.Getenv(envPostgresDSN) == "" {
		fmt.Printf("%s is not set; skipping Postgres tests.\n", envPostgresDSN)
		return nil
	}
	return sh.RunV(binGo, "test", "-v", "-count=1", "./internal/postgres/...")
}
