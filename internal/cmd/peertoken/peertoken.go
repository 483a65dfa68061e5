// Package peertoken parses peer-token command flags and mints join tokens.
package peertoken

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/storyframe/internal/platform/cmd"
	"github.com/louisbranch/storyframe/internal/platform/config"
	"github.com/louisbranch/storyframe/internal/platform/id"
	"github.com/louisbranch/storyframe/internal/services/storyframe/peerauth"
	"github.com/louisbranch/storyframe/internal/services/storyframe/transport"
)

// Config holds peer-token command configuration.
type Config struct {
	UserID string `env:"STORYFRAME_PEER_USER_ID"`
	Role   string `env:"STORYFRAME_PEER_ROLE" envDefault:"player"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.UserID, "user", cfg.UserID, "user id the token authenticates")
	fs.StringVar(&cfg.Role, "role", cfg.Role, "role granted: gm or player")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run signs a token for cfg with the key from the environment and writes it
// to out followed by a newline.
func Run(cfg Config, out io.Writer) error {
	if out == nil {
		return errors.New("output writer is required")
	}
	role := transport.Role(strings.ToLower(strings.TrimSpace(cfg.Role)))
	if !role.Valid() {
		return fmt.Errorf("role must be %q or %q", transport.RoleGM, transport.RolePlayer)
	}
	signer, err := peerauth.LoadSignerConfig(config.ParseEnv, time.Now)
	if err != nil {
		return fmt.Errorf("load peer token config: %w", err)
	}
	jwtID, err := id.NewID()
	if err != nil {
		return fmt.Errorf("generate token id: %w", err)
	}
	token, err := peerauth.Issue(signer, cfg.UserID, role, jwtID)
	if err != nil {
		return fmt.Errorf("issue peer token: %w", err)
	}
	if _, err := fmt.Fprintln(out, token); err != nil {
		return fmt.Errorf("write peer token: %w", err)
	}
	return nil
}
