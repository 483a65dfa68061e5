// Package main starts the storyframe authority and handles termination.
//
// The authority owns the scene state document; peers join over WebSocket and
// receive every change it commits.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	entrypoint "github.com/louisbranch/storyframe/internal/platform/cmd"
	storyframecmd "github.com/louisbranch/storyframe/internal/cmd/storyframe"
)

func main() {
	cfg, err := storyframecmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix(entrypoint.LogPrefix(entrypoint.ServiceAuthority))

	ctx, stop := entrypoint.SignalContext(context.Background())
	defer stop()

	if err := storyframecmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
