//go:build mage

// Package main provides build targets for the lawcascade project using Mage.
//
// Usage:
//
//	mage build          Compile the cascade binary to bin/
//	mage test:all       Run every test
//	mage test:unit      Run tests in short mode
//	mage test:postgres  Run the Postgres law store tests (needs CASCADE_TEST_POSTGRES_DSN)
//	mage lint           Run golangci-lint
//	mage clean          Remove build artifacts
//	mage install        Install cascade to GOPATH/bin
package main

const (
	binGo      = "go"
	binaryName = "cascade"
	binaryDir  = "bin"
	cmdDir     = "./cmd/cascade"
	versionVar = "github.com/mesh-intelligence/lawcascade/internal/cli.Version"
)
