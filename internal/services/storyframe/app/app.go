// Package app composes the storyframe authority process: host storage, the
// state manager, the WebSocket hub peers join, and the optional gRPC health
// endpoint.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	platformgrpc "github.com/louisbranch/storyframe/internal/platform/grpc"
	"github.com/louisbranch/storyframe/internal/platform/timeouts"
	"github.com/louisbranch/storyframe/internal/services/storyframe/actors"
	"github.com/louisbranch/storyframe/internal/services/storyframe/authority"
	"github.com/louisbranch/storyframe/internal/services/storyframe/persistence"
	"github.com/louisbranch/storyframe/internal/services/storyframe/state"
	"github.com/louisbranch/storyframe/internal/services/storyframe/storage"
	"github.com/louisbranch/storyframe/internal/services/storyframe/storage/redis"
	"github.com/louisbranch/storyframe/internal/services/storyframe/storage/sqlite"
	"github.com/louisbranch/storyframe/internal/services/storyframe/transport"
	"github.com/louisbranch/storyframe/internal/services/storyframe/transport/ws"
)

// Storage backends for the scene flag slot.
const (
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
)

// HealthService is the name the gRPC health endpoint reports on.
const HealthService = "storyframe.authority"

// Config defines the inputs for the authority process.
type Config struct {
	HTTPAddr string
	// GRPCAddr enables the health endpoint when set.
	GRPCAddr  string
	DBPath    string
	Storage   string
	RedisAddr string
	RedisDB   int
	// SceneID, when set, is created if missing and made current.
	SceneID  string
	SeedFile string
	// GMUserID is the caller the host's own in-process requests run as.
	GMUserID      string
	ActorCacheTTL time.Duration
	Authenticator ws.Authenticator

	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	WriteTimeout      time.Duration
}

// Server hosts the authority HTTP/WebSocket process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	handler         http.Handler
	hub             *ws.Hub
	manager         *state.Manager
	store           *sqlite.Store
	flags           *redis.FlagStore
	health          *platformgrpc.HealthServer
}

// NewServer builds a configured authority server.
func NewServer(ctx context.Context, config Config) (*Server, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.Authenticator == nil {
		return nil, errors.New("peer authenticator is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = timeouts.PeerWrite
	}
	gmUserID := strings.TrimSpace(config.GMUserID)
	if gmUserID == "" {
		gmUserID = "gm"
	}

	s := &Server{httpAddr: httpAddr, shutdownTimeout: config.ShutdownTimeout}
	if err := s.openStorage(ctx, config); err != nil {
		s.Close()
		return nil, err
	}
	var flags storage.FlagStore = s.store
	if s.flags != nil {
		flags = s.flags
	}

	if path := strings.TrimSpace(config.SeedFile); path != "" {
		seed, err := LoadSeedFile(path)
		if err != nil {
			s.Close()
			return nil, err
		}
		if err := ApplySeed(ctx, seed, s.store, s.store); err != nil {
			s.Close()
			return nil, fmt.Errorf("apply seed: %w", err)
		}
	}
	if sceneID := strings.TrimSpace(config.SceneID); sceneID != "" {
		if err := ensureScene(ctx, s.store, sceneID); err != nil {
			s.Close()
			return nil, fmt.Errorf("select scene: %w", err)
		}
	}

	directory := actors.NewDirectory(s.store, config.ActorCacheTTL)
	s.manager = state.NewManager(
		persistence.New(s.store, flags),
		state.WithSceneSwitcher(s.store),
		state.WithActors(directory),
	)
	if err := s.manager.Load(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("load state: %w", err)
	}

	s.hub = ws.NewHub(
		config.Authenticator,
		ws.WithLocalCaller(transport.Caller{UserID: gmUserID, Role: transport.RoleGM}),
		ws.WithWriteTimeout(config.WriteTimeout),
	)
	s.manager.Initialize(s.hub)
	s.hub.SetDispatcher(authority.NewRegistry(s.manager))

	if addr := strings.TrimSpace(config.GRPCAddr); addr != "" {
		health, err := platformgrpc.NewHealthServer(addr, HealthService)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("start health server: %w", err)
		}
		s.health = health
	}

	s.handler = newHandler(s.hub)
	s.httpServer = &http.Server{
		Addr:              httpAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}
	return s, nil
}

func (s *Server) openStorage(ctx context.Context, config Config) error {
	openCtx, cancel := context.WithTimeout(ctx, timeouts.StorageOpen)
	defer cancel()

	store, err := sqlite.Open(config.DBPath)
	if err != nil {
		return fmt.Errorf("open sqlite store: %w", err)
	}
	s.store = store

	switch backend := strings.ToLower(strings.TrimSpace(config.Storage)); backend {
	case "", StorageSQLite:
		return nil
	case StorageRedis:
		flags, err := redis.Open(openCtx, config.RedisAddr, config.RedisDB)
		if err != nil {
			return fmt.Errorf("open redis flag store: %w", err)
		}
		s.flags = flags
		return nil
	default:
		return fmt.Errorf("unknown storage backend %q", backend)
	}
}

func newHandler(hub http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("/ws", hub)
	return mux
}

// Handler returns the HTTP handler serving /up and /ws.
func (s *Server) Handler() http.Handler {
	if s == nil {
		return http.NotFoundHandler()
	}
	return s.handler
}

// Manager returns the authority's state manager.
func (s *Server) Manager() *state.Manager {
	if s == nil {
		return nil
	}
	return s.manager
}

// Hub returns the WebSocket hub peers join.
func (s *Server) Hub() *ws.Hub {
	if s == nil {
		return nil
	}
	return s.hub
}

// Run builds the authority server and serves until ctx ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(ctx, config)
	if err != nil {
		return fmt.Errorf("init storyframe server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve storyframe: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server, and the health server when
// configured, until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("storyframe server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 2)
	log.Printf("storyframe: listening addr=%q", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()
	if s.health != nil {
		s.health.SetServing(true)
		log.Printf("storyframe: health listening addr=%q", s.health.Addr())
		go func() {
			if err := s.health.Serve(ctx); err != nil {
				serveErr <- fmt.Errorf("serve health: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		s.health.SetServing(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases storage and the health listener.
func (s *Server) Close() {
	if s == nil {
		return
	}
	s.health.Close()
	if s.flags != nil {
		if err := s.flags.Close(); err != nil {
			log.Printf("storyframe: close redis: err=%v", err)
		}
	}
	if err := s.store.Close(); err != nil {
		log.Printf("storyframe: close sqlite: err=%v", err)
	}
}
