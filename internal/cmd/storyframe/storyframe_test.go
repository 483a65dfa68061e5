package storyframe

import (
	"flag"
	"io"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("storyframe", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != ":8090" {
		t.Fatalf("http addr = %q, want %q", cfg.HTTPAddr, ":8090")
	}
	if cfg.GRPCAddr != ":8091" {
		t.Fatalf("grpc addr = %q, want %q", cfg.GRPCAddr, ":8091")
	}
	if cfg.Storage != "sqlite" {
		t.Fatalf("storage = %q, want %q", cfg.Storage, "sqlite")
	}
	if cfg.GMUserID != "gm" {
		t.Fatalf("gm user = %q, want %q", cfg.GMUserID, "gm")
	}
	if cfg.ActorCacheTTL != 5*time.Minute {
		t.Fatalf("actor cache ttl = %v, want %v", cfg.ActorCacheTTL, 5*time.Minute)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("STORYFRAME_HTTP_ADDR", "env-http")
	t.Setenv("STORYFRAME_STORAGE", "redis")
	t.Setenv("STORYFRAME_SCENE", "env-scene")
	t.Setenv("STORYFRAME_REDIS_DB", "3")

	fs := flag.NewFlagSet("storyframe", flag.ContinueOnError)
	args := []string{
		"-http-addr", "flag-http",
		"-scene", "flag-scene",
		"-seed-file", "seed.json",
	}
	cfg, err := ParseConfig(fs, args)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != "flag-http" {
		t.Fatalf("http addr = %q, want %q", cfg.HTTPAddr, "flag-http")
	}
	if cfg.Storage != "redis" {
		t.Fatalf("storage = %q, want %q", cfg.Storage, "redis")
	}
	if cfg.SceneID != "flag-scene" {
		t.Fatalf("scene = %q, want %q", cfg.SceneID, "flag-scene")
	}
	if cfg.SeedFile != "seed.json" {
		t.Fatalf("seed file = %q, want %q", cfg.SeedFile, "seed.json")
	}
	if cfg.RedisDB != 3 {
		t.Fatalf("redis db = %d, want %d", cfg.RedisDB, 3)
	}
}

func TestParseConfigRejectsUnknownFlag(t *testing.T) {
	fs := flag.NewFlagSet("storyframe", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if _, err := ParseConfig(fs, []string{"-nope"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}
