package peertoken

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"flag"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/storyframe/internal/services/storyframe/peerauth"
	"github.com/louisbranch/storyframe/internal/services/storyframe/transport"
)

func TestParseConfigDefaultsAndFlags(t *testing.T) {
	t.Setenv("STORYFRAME_PEER_USER_ID", "env-user")

	fs := flag.NewFlagSet("peer-token", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-role", "gm"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.UserID != "env-user" {
		t.Fatalf("user = %q, want %q", cfg.UserID, "env-user")
	}
	if cfg.Role != "gm" {
		t.Fatalf("role = %q, want %q", cfg.Role, "gm")
	}
}

func TestRunIssuesVerifiableToken(t *testing.T) {
	public, private, err := ed25519.GenerateKey(bytes.NewReader(bytes.Repeat([]byte{7}, 64)))
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	t.Setenv(peerauth.EnvPrivateKey, base64.RawStdEncoding.EncodeToString(private))

	var out bytes.Buffer
	if err := Run(Config{UserID: "player-1", Role: "Player"}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	token := strings.TrimSpace(out.String())
	claims, err := peerauth.Validate(token, peerauth.VerifierConfig{
		Issuer:   peerauth.DefaultIssuer,
		Audience: peerauth.DefaultAudience,
		Key:      public,
		Now:      time.Now,
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != "player-1" {
		t.Fatalf("user = %q, want %q", claims.UserID, "player-1")
	}
	if claims.Role != transport.RolePlayer {
		t.Fatalf("role = %q, want %q", claims.Role, transport.RolePlayer)
	}
}

func TestRunRejectsUnknownRole(t *testing.T) {
	var out bytes.Buffer
	if err := Run(Config{UserID: "u", Role: "admin"}, &out); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestRunRequiresPrivateKey(t *testing.T) {
	t.Setenv(peerauth.EnvPrivateKey, "")
	var out bytes.Buffer
	if err := Run(Config{UserID: "u", Role: "player"}, &out); err == nil {
		t.Fatal("expected error for missing private key")
	}
}
