// Package storyframe parses authority command flags and composes the
// authority entrypoint.
package storyframe

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/louisbranch/storyframe/internal/platform/cmd"
	"github.com/louisbranch/storyframe/internal/platform/config"
	server "github.com/louisbranch/storyframe/internal/services/storyframe/app"
	"github.com/louisbranch/storyframe/internal/services/storyframe/peerauth"
)

// Config holds authority command configuration.
type Config struct {
	HTTPAddr      string        `env:"STORYFRAME_HTTP_ADDR"       envDefault:":8090"`
	GRPCAddr      string        `env:"STORYFRAME_GRPC_ADDR"       envDefault:":8091"`
	DBPath        string        `env:"STORYFRAME_DB_PATH"         envDefault:"data/storyframe.db"`
	Storage       string        `env:"STORYFRAME_STORAGE"         envDefault:"sqlite"`
	RedisAddr     string        `env:"STORYFRAME_REDIS_ADDR"      envDefault:"localhost:6379"`
	RedisDB       int           `env:"STORYFRAME_REDIS_DB"        envDefault:"0"`
	SceneID       string        `env:"STORYFRAME_SCENE"`
	SeedFile      string        `env:"STORYFRAME_SEED_FILE"`
	GMUserID      string        `env:"STORYFRAME_GM_USER_ID"      envDefault:"gm"`
	ActorCacheTTL time.Duration `env:"STORYFRAME_ACTOR_CACHE_TTL" envDefault:"5m"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address for /up and /ws")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "gRPC health listen address (empty disables)")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite host database path")
	fs.StringVar(&cfg.Storage, "storage", cfg.Storage, "scene flag backend: sqlite or redis")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address when -storage=redis")
	fs.StringVar(&cfg.SceneID, "scene", cfg.SceneID, "scene to make current at startup")
	fs.StringVar(&cfg.SeedFile, "seed-file", cfg.SeedFile, "JSON file of scenes and actors to upsert at startup")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the authority and serves until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceAuthority, func(ctx context.Context) error {
		verifierConfig, err := peerauth.LoadVerifierConfig(config.ParseEnv, time.Now)
		if err != nil {
			return fmt.Errorf("load peer token config: %w", err)
		}
		if err := server.Run(ctx, server.Config{
			HTTPAddr:      cfg.HTTPAddr,
			GRPCAddr:      cfg.GRPCAddr,
			DBPath:        cfg.DBPath,
			Storage:       cfg.Storage,
			RedisAddr:     cfg.RedisAddr,
			RedisDB:       cfg.RedisDB,
			SceneID:       cfg.SceneID,
			SeedFile:      cfg.SeedFile,
			GMUserID:      cfg.GMUserID,
			ActorCacheTTL: cfg.ActorCacheTTL,
			Authenticator: peerauth.NewVerifier(verifierConfig),
		}); err != nil {
			return fmt.Errorf("serve storyframe: %w", err)
		}
		return nil
	})
}
