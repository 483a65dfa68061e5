// Package main runs a follower peer against a storyframe authority.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	peercmd "github.com/louisbranch/storyframe/internal/cmd/peer"
	entrypoint "github.com/louisbranch/storyframe/internal/platform/cmd"
)

func main() {
	cfg, err := peercmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix(entrypoint.LogPrefix(entrypoint.ServicePeer))

	ctx, stop := entrypoint.SignalContext(context.Background())
	defer stop()

	if err := peercmd.Run(ctx, cfg); err != nil {
		log.Fatalf("peer: %v", err)
	}
}
