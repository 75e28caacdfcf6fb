package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/PabloGalante/ttrpg-gm/internal/adapters/discovery"
	httpadapter "github.com/PabloGalante/ttrpg-gm/internal/adapters/http"
	"github.com/PabloGalante/ttrpg-gm/internal/adapters/identity"
	"github.com/PabloGalante/ttrpg-gm/internal/adapters/llm"
	firestorestore "github.com/PabloGalante/ttrpg-gm/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/ttrpg-gm/internal/adapters/storage/memory"
	pgstore "github.com/PabloGalante/ttrpg-gm/internal/adapters/storage/postgres"
	"github.com/PabloGalante/ttrpg-gm/internal/adapters/storage/rediscache"
	"github.com/PabloGalante/ttrpg-gm/internal/adapters/ws"
	"github.com/PabloGalante/ttrpg-gm/internal/app/account"
	"github.com/PabloGalante/ttrpg-gm/internal/app/dice"
	"github.com/PabloGalante/ttrpg-gm/internal/app/fanout"
	"github.com/PabloGalante/ttrpg-gm/internal/app/message"
	"github.com/PabloGalante/ttrpg-gm/internal/app/session"
	"github.com/PabloGalante/ttrpg-gm/internal/app/transcript"
	"github.com/PabloGalante/ttrpg-gm/internal/app/turn"
	"github.com/PabloGalante/ttrpg-gm/internal/config"
	"github.com/PabloGalante/ttrpg-gm/internal/domain"
	"github.com/PabloGalante/ttrpg-gm/internal/observability"
)

type serveFlags struct {
	port    string
	storage string
}

func newServeCmd() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			// flags win over env
			if flags.port != "" {
				cfg.Port = flags.port
			}
			if flags.storage != "" {
				cfg.StorageBackend = flags.storage
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&flags.port, "port", "", "listen port (overrides TTRPG_PORT)")
	cmd.Flags().StringVar(&flags.storage, "storage", "", "storage backend: memory, firestore or postgres (overrides TTRPG_STORAGE_BACKEND)")
	return cmd
}

type stores struct {
	sessions     domain.SessionStore
	messages     domain.MessageStore
	participants domain.ParticipantStore
	users        domain.UserStore
	checks       []httpadapter.HealthCheck
	closers      []func() error
}

func (s *stores) close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			observability.Logger().Warn("closing store", "error", err)
		}
	}
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	log := observability.Logger()
	st := &stores{}

	switch cfg.StorageBackend {
	case config.StorageFirestore:
		log.Info("using firestore storage", "project", cfg.GCPProjectID)
		fs, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, err
		}
		st.sessions, st.messages, st.participants, st.users = fs, fs, fs, fs
		st.checks = append(st.checks, httpadapter.HealthCheck{Name: "database", Pinger: fs})
		st.closers = append(st.closers, fs.Close)

	case config.StoragePostgres:
		log.Info("using postgres storage")
		pg, err := pgstore.NewStore(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		st.sessions, st.messages, st.participants, st.users = pg, pg, pg, pg
		st.checks = append(st.checks, httpadapter.HealthCheck{Name: "database", Pinger: pg})
		st.closers = append(st.closers, pg.Close)

	default:
		log.Info("using in-memory storage")
		st.sessions = memstore.NewSessionStore()
		st.messages = memstore.NewMessageStore()
		st.participants = memstore.NewParticipantStore()
		st.users = memstore.NewUserStore()
	}

	if cfg.RedisAddr != "" {
		client, err := rediscache.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			st.close()
			return nil, err
		}
		log.Info("caching sessions in redis", "addr", cfg.RedisAddr, "ttl", cfg.SessionCacheTTL)
		cached := rediscache.NewSessionStore(st.sessions, client, cfg.SessionCacheTTL)
		st.sessions = cached
		st.checks = append(st.checks, httpadapter.HealthCheck{Name: "cache", Pinger: cached})
		st.closers = append(st.closers, client.Close)
	}
	return st, nil
}

func newGenerator(ctx context.Context, cfg *config.Config) (domain.Generator, error) {
	log := observability.Logger()
	if cfg.MockLLM() {
		log.Info("using mock llm")
		return llm.NewMockLLM(), nil
	}
	switch cfg.Provider {
	case config.ProviderOpenAI:
		log.Info("using openai llm", "model", cfg.ModelName)
		return llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.ModelName), nil
	default:
		log.Info("using gemini llm", "model", cfg.ModelName)
		gemini, err := llm.NewGeminiClient(ctx, llm.GeminiOptions{
			APIKey:   cfg.GeminiAPIKey,
			Project:  cfg.GCPProjectID,
			Location: cfg.GCPLocation,
			Model:    cfg.ModelName,
		})
		if err != nil {
			return nil, err
		}
		return gemini, nil
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	observability.SetLevel(cfg.LogLevel)
	log := observability.Logger()

	catalog, err := config.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		return err
	}
	gen, err := newGenerator(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing llm: %w", err)
	}
	st, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer st.close()

	hub := fanout.NewHub()
	defer hub.Close()

	recorder := transcript.NewRecorder(st.messages)
	tokens := identity.NewJWTService(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	turns := turn.NewService(gen, recorder, st.sessions, turn.Persona{
		Prompt:           catalog.Persona,
		FallbackGreeting: catalog.FallbackGreeting,
	}, hub)
	sessions := session.NewService(st.sessions, st.participants, st.users, recorder, turns, hub)
	diceSvc := dice.NewService(recorder, dice.DefaultSource())

	handler := httpadapter.NewServer(httpadapter.Deps{
		Accounts:    account.NewService(st.users, tokens, identity.NewHasher(bcrypt.DefaultCost)),
		Verifier:    tokens,
		Sessions:    sessions,
		Messages:    message.NewService(sessions, recorder),
		Turns:       turns,
		Dice:        diceSvc,
		Gateway:     ws.NewGateway(hub, sessions, turns, diceSvc, tokens, cfg.CORSOrigins),
		Catalog:     catalog,
		Checks:      st.checks,
		CORSOrigins: cfg.CORSOrigins,
		Version:     version,
	})

	if cfg.ConsulAddr != "" {
		deregister, err := register(cfg)
		if err != nil {
			log.Warn("service registration failed", "error", err)
		} else {
			defer func() {
				if err := deregister(); err != nil {
					log.Warn("service deregistration failed", "error", err)
				}
			}()
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("ttrpg api listening", "port", cfg.Port, "mode", cfg.Mode, "storage", cfg.StorageBackend, "model", gen.Model())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func register(cfg *config.Config) (func() error, error) {
	port, err := strconv.Atoi(cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("port %q: %w", cfg.Port, err)
	}
	registry, err := discovery.NewRegistry(cfg.ConsulAddr)
	if err != nil {
		return nil, err
	}
	return registry.Register(discovery.Registration{
		Name:    cfg.ServiceName,
		Host:    discovery.AdvertiseHost(cfg.AdvertiseHost),
		Port:    port,
		Tags:    []string{"http", "ws"},
		Version: version,
	})
}
