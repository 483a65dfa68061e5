// Package main provides a one-shot utility for peer token key generation.
//
// It emits the Ed25519 key pair the authority verifies join tokens with.
package main

import (
	"os"

	"github.com/louisbranch/storyframe/internal/platform/config"
	"github.com/louisbranch/storyframe/internal/tools/peertokenkey"
)

func main() {
	if err := peertokenkey.Run(os.Stdout, nil); err != nil {
		config.Exitf("generate peer token key: %v", err)
	}
}
