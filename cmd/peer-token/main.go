// Package main mints a peer join token for one user and role.
package main

import (
	"flag"
	"os"

	peertokencmd "github.com/louisbranch/storyframe/internal/cmd/peertoken"
	"github.com/louisbranch/storyframe/internal/platform/config"
)

func main() {
	cfg, err := peertokencmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	if err := peertokencmd.Run(cfg, os.Stdout); err != nil {
		config.Exitf("mint peer token: %v", err)
	}
}
