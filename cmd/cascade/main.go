// Package main provides the cascade CLI.
package main

import "github.com/mesh-intelligence/lawcascade/internal/cli"

func main() {
	cli.Execute()
}
