// Package peerauth issues and verifies the join tokens peers present when
// connecting to the authority.
//
// Tokens are EdDSA-signed JWTs. The authority holds only the public key; the
// GM's tooling holds the private key and mints one token per user and role.
package peerauth

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/storyframe/internal/platform/errors"
	"github.com/louisbranch/storyframe/internal/services/storyframe/transport"
)

// Defaults applied when the environment leaves them unset.
const (
	DefaultIssuer   = "storyframe"
	DefaultAudience = "storyframe-peers"
	DefaultTTL      = 12 * time.Hour
)

// Environment variables holding the key pair.
const (
	EnvPrivateKey = "STORYFRAME_PEER_TOKEN_PRIVATE_KEY"
	EnvPublicKey  = "STORYFRAME_PEER_TOKEN_PUBLIC_KEY"
)

// verifierEnv holds raw env values before post-parse validation.
type verifierEnv struct {
	Issuer    string `env:"STORYFRAME_PEER_TOKEN_ISSUER"     envDefault:"storyframe"`
	Audience  string `env:"STORYFRAME_PEER_TOKEN_AUDIENCE"   envDefault:"storyframe-peers"`
	PublicKey string `env:"STORYFRAME_PEER_TOKEN_PUBLIC_KEY"`
}

// signerEnv holds raw env values before post-parse validation.
type signerEnv struct {
	Issuer     string        `env:"STORYFRAME_PEER_TOKEN_ISSUER"      envDefault:"storyframe"`
	Audience   string        `env:"STORYFRAME_PEER_TOKEN_AUDIENCE"    envDefault:"storyframe-peers"`
	PrivateKey string        `env:"STORYFRAME_PEER_TOKEN_PRIVATE_KEY"`
	TTL        time.Duration `env:"STORYFRAME_PEER_TOKEN_TTL"         envDefault:"12h"`
}

// VerifierConfig defines how join tokens are verified.
type VerifierConfig struct {
	Issuer   string
	Audience string
	Key      ed25519.PublicKey
	Now      func() time.Time
}

// SignerConfig defines how join tokens are minted.
type SignerConfig struct {
	Issuer   string
	Audience string
	Key      ed25519.PrivateKey
	TTL      time.Duration
	Now      func() time.Time
}

// Claims captures validated token claims.
type Claims struct {
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	IssuedAt  time.Time
	JWTID     string
	UserID    string
	Role      transport.Role
}

// tokenClaims is the internal claims type used for JWT parsing.
type tokenClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// LoadVerifierConfig reads verification settings through parse, normally
// platform/config.ParseEnv.
func LoadVerifierConfig(parse func(any) error, now func() time.Time) (VerifierConfig, error) {
	var raw verifierEnv
	if err := parse(&raw); err != nil {
		return VerifierConfig{}, fmt.Errorf("parse peer token env: %w", err)
	}
	publicKey := strings.TrimSpace(raw.PublicKey)
	if publicKey == "" {
		return VerifierConfig{}, fmt.Errorf("%s is required", EnvPublicKey)
	}
	keyBytes, err := decodeBase64(publicKey)
	if err != nil {
		return VerifierConfig{}, fmt.Errorf("decode peer token public key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return VerifierConfig{}, fmt.Errorf("peer token public key must be %d bytes", ed25519.PublicKeySize)
	}
	if now == nil {
		now = time.Now
	}
	return VerifierConfig{
		Issuer:   strings.TrimSpace(raw.Issuer),
		Audience: strings.TrimSpace(raw.Audience),
		Key:      ed25519.PublicKey(keyBytes),
		Now:      now,
	}, nil
}

// LoadSignerConfig reads signing settings through parse.
func LoadSignerConfig(parse func(any) error, now func() time.Time) (SignerConfig, error) {
	var raw signerEnv
	if err := parse(&raw); err != nil {
		return SignerConfig{}, fmt.Errorf("parse peer token env: %w", err)
	}
	privateKey := strings.TrimSpace(raw.PrivateKey)
	if privateKey == "" {
		return SignerConfig{}, fmt.Errorf("%s is required", EnvPrivateKey)
	}
	keyBytes, err := decodeBase64(privateKey)
	if err != nil {
		return SignerConfig{}, fmt.Errorf("decode peer token private key: %w", err)
	}
	if len(keyBytes) != ed25519.PrivateKeySize {
		return SignerConfig{}, fmt.Errorf("peer token private key must be %d bytes", ed25519.PrivateKeySize)
	}
	if raw.TTL <= 0 {
		return SignerConfig{}, fmt.Errorf("peer token ttl must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return SignerConfig{
		Issuer:   strings.TrimSpace(raw.Issuer),
		Audience: strings.TrimSpace(raw.Audience),
		Key:      ed25519.PrivateKey(keyBytes),
		TTL:      raw.TTL,
		Now:      now,
	}, nil
}

// Issue mints a token for userID acting as role.
func Issue(cfg SignerConfig, userID string, role transport.Role, jwtID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("user id is required")
	}
	if !role.Valid() {
		return "", fmt.Errorf("role %q is not gm or player", role)
	}
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.Key) != ed25519.PrivateKeySize {
		return "", errors.New("peer token signer is not configured")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	now := cfg.Now().UTC()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jwtID,
		},
		UserID: userID,
		Role:   string(role),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(cfg.Key)
	if err != nil {
		return "", fmt.Errorf("sign peer token: %w", err)
	}
	return token, nil
}

// Validate verifies token and returns its claims.
func Validate(token string, cfg VerifierConfig) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, apperrors.New(apperrors.CodePeerTokenInvalid, "peer token is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.Key) != ed25519.PublicKeySize {
		return Claims{}, errors.New("peer token verifier is not configured")
	}

	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return cfg.Key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}

	if parsed.Issuer != cfg.Issuer {
		return Claims{}, apperrors.WithMetadata(apperrors.CodePeerTokenInvalid, "peer token issuer mismatch", map[string]string{"Field": "issuer"})
	}
	if !audienceContains(parsed.Audience, cfg.Audience) {
		return Claims{}, apperrors.WithMetadata(apperrors.CodePeerTokenInvalid, "peer token audience mismatch", map[string]string{"Field": "audience"})
	}
	if parsed.ExpiresAt == nil {
		return Claims{}, apperrors.New(apperrors.CodePeerTokenInvalid, "peer token exp is required")
	}
	now := cfg.Now().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return Claims{}, apperrors.New(apperrors.CodePeerTokenExpired, "peer token is expired")
	}
	if strings.TrimSpace(parsed.UserID) == "" {
		return Claims{}, apperrors.WithMetadata(apperrors.CodePeerTokenInvalid, "peer token user is required", map[string]string{"Field": "user_id"})
	}
	role := transport.Role(parsed.Role)
	if !role.Valid() {
		return Claims{}, apperrors.WithMetadata(apperrors.CodePeerTokenInvalid, "peer token role is invalid", map[string]string{"Field": "role"})
	}

	claims := Claims{
		Issuer:    parsed.Issuer,
		Audience:  []string(parsed.Audience),
		ExpiresAt: exp,
		JWTID:     parsed.ID,
		UserID:    parsed.UserID,
		Role:      role,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}

// Verifier authenticates peer connections with Validate.
type Verifier struct {
	cfg VerifierConfig
}

// NewVerifier returns a Verifier for cfg.
func NewVerifier(cfg VerifierConfig) *Verifier {
	return &Verifier{cfg: cfg}
}

// Authenticate implements ws.Authenticator.
func (v *Verifier) Authenticate(_ context.Context, token string) (transport.Caller, error) {
	claims, err := Validate(token, v.cfg)
	if err != nil {
		return transport.Caller{}, err
	}
	return transport.Caller{UserID: claims.UserID, Role: claims.Role}, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return apperrors.New(apperrors.CodePeerTokenInvalid, "peer token signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodePeerTokenInvalid, "peer token alg is invalid")
	}
	return apperrors.New(apperrors.CodePeerTokenInvalid, "peer token is invalid")
}

func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}

func decodeBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty base64 value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
