// Package peer parses follower command flags and runs a follower peer that
// mirrors the authority's state and can issue one request.
package peer

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"

	entrypoint "github.com/louisbranch/storyframe/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/storyframe/internal/platform/grpc"
	"github.com/louisbranch/storyframe/internal/platform/timeouts"
	"github.com/louisbranch/storyframe/internal/services/storyframe/app"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/document"
	follower "github.com/louisbranch/storyframe/internal/services/storyframe/peer"
	"github.com/louisbranch/storyframe/internal/services/storyframe/transport/ws"
)

// Config holds follower command configuration.
type Config struct {
	URL        string `env:"STORYFRAME_URL"         envDefault:"ws://localhost:8090/ws"`
	Token      string `env:"STORYFRAME_PEER_TOKEN"`
	HealthAddr string `env:"STORYFRAME_HEALTH_ADDR"`
	Op         string
	Args       string
	Once       bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.URL, "url", cfg.URL, "authority WebSocket URL")
	fs.StringVar(&cfg.Token, "token", cfg.Token, "peer join token")
	fs.StringVar(&cfg.HealthAddr, "health-addr", cfg.HealthAddr, "authority gRPC health address to wait on before connecting")
	fs.StringVar(&cfg.Op, "op", cfg.Op, "operation to execute as authority once synced")
	fs.StringVar(&cfg.Args, "args", cfg.Args, "JSON arguments for -op")
	fs.BoolVar(&cfg.Once, "once", cfg.Once, "exit after the first sync, or after -op completes")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run connects a follower and runs until ctx ends or the connection drops.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServicePeer, func(ctx context.Context) error {
		return run(ctx, cfg, log.Printf)
	})
}

func run(ctx context.Context, cfg Config, logf func(format string, args ...any)) error {
	if strings.TrimSpace(cfg.URL) == "" {
		return errors.New("authority url is required")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return errors.New("peer token is required")
	}
	var args json.RawMessage
	if raw := strings.TrimSpace(cfg.Args); raw != "" {
		if !json.Valid([]byte(raw)) {
			return errors.New("args must be valid JSON")
		}
		args = json.RawMessage(raw)
	}

	if addr := strings.TrimSpace(cfg.HealthAddr); addr != "" {
		conn, err := platformgrpc.DialWithHealth(ctx, addr, app.HealthService, timeouts.GRPCDial, logf)
		if err != nil {
			return fmt.Errorf("wait for authority: %w", err)
		}
		_ = conn.Close()
	}

	p := follower.New(follower.WithLogf(logf))
	p.OnChange(func(doc document.Document) {
		logf("peer: synced version=%d speakers=%d participants=%d pending_rolls=%d challenges=%d",
			doc.Version, len(doc.Speakers), len(doc.Participants), len(doc.PendingRolls), len(doc.ActiveChallenges))
	})
	p.OnPrompt(func(roll document.PendingRoll) {
		logf("peer: roll requested roll=%q actor=%q check=%q skill=%q", roll.ID, roll.ActorID, roll.CheckType, roll.SkillSlug)
	})
	p.OnNotice(func(notice document.Notice) {
		logf("peer: notice level=%q message=%q", notice.Level, notice.Message)
	})

	client, err := ws.Dial(ctx, cfg.URL, cfg.Token, ws.WithPushHandler(p.HandlePush), ws.WithClientLogf(logf))
	if err != nil {
		return fmt.Errorf("connect to authority: %w", err)
	}
	defer client.Close()
	p.Bind(client)

	select {
	case <-p.Synced():
	case <-client.Done():
		return fmt.Errorf("connection closed before sync: %w", client.Err())
	case <-ctx.Done():
		return nil
	}

	if op := strings.TrimSpace(cfg.Op); op != "" {
		result, err := p.Execute(ctx, op, args)
		if err != nil {
			return fmt.Errorf("execute %s: %w", op, err)
		}
		logf("peer: executed op=%q result=%s", op, result)
	}
	if cfg.Once {
		return nil
	}

	select {
	case <-ctx.Done():
		return nil
	case <-client.Done():
		if err := client.Err(); err != nil {
			return fmt.Errorf("authority connection: %w", err)
		}
		return nil
	}
}
