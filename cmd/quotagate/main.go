// Package main is the entry point for quotagate.
package main

import "github.com/artpar/quotagate/bootstrap"

func main() {
	// The /version endpoint reports the same build info as the CLI.
	bootstrap.Version = version
	Execute()
}
