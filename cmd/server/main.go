package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"chat-relay/internal/analytics"
	"chat-relay/internal/auth"
	"chat-relay/internal/config"
	"chat-relay/internal/identity"
	"chat-relay/internal/llm"
	"chat-relay/internal/scheduler"
	"chat-relay/internal/server"
	"chat-relay/internal/storage"
	"chat-relay/internal/transcript"
)

const sessionTTL = 24 * time.Hour

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := godotenv.Load(".env"); err != nil {
		log.Warn().Err(err).Msg(".env file not found")
	}

	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse config")
	}

	store, err := transcript.NewFileStore(cfg.TranscriptDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init transcript store")
	}

	var rec storage.Recorder
	if cfg.AuditLogPath != "" {
		fr, err := storage.NewFileRecorder(cfg.AuditLogPath)
		if err != nil {
			log.Error().Err(err).Msg("failed to init file recorder")
		} else {
			rec = fr
		}
	}

	gateway, err := llm.NewFactory(cfg).CreateClient(string(cfg.LLMProvider))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create llm client")
	}

	var allowRepo auth.Repository
	if cfg.AllowlistFilePath != "" {
		repo, err := auth.NewFileRepository(cfg.AllowlistFilePath)
		if err != nil {
			log.Error().Err(err).Msg("failed to init allowlist repo")
		} else {
			allowRepo = repo
		}
	}
	allowSvc, err := auth.NewWithRepo(allowRepo, cfg.AllowedUsers)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init allowlist")
	}

	resolver, azure := buildIdentity(cfg)

	sched := scheduler.New()
	if rec != nil {
		sched.SetReportFunction(func(ctx context.Context) error {
			events, err := rec.LoadInteractions()
			if err != nil {
				return err
			}
			stats := analytics.AnalyzeDailyLogs(events, time.Now().UTC().AddDate(0, 0, -1))
			log.Info().Str("report", stats.Summary()).Msg("daily usage report")
			return nil
		})
	}
	if cfg.TranscriptRetentionDays > 0 {
		days := cfg.TranscriptRetentionDays
		sched.SetSweepFunction(func(ctx context.Context) error {
			cutoff := time.Now().AddDate(0, 0, -days)
			removed, err := store.SweepExpired(cutoff)
			if err != nil {
				return err
			}
			if removed > 0 {
				log.Info().Int("removed", removed).Msg("expired transcripts swept")
			}
			return nil
		})
	}
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	srv := server.New(server.Options{
		Addr:     cfg.ListenAddr,
		Store:    store,
		Gateway:  gateway,
		Recorder: rec,
		Resolver: resolver,
		Allow:    allowSvc,
		Azure:    azure,
		Defaults: llm.Params{
			Model:       cfg.OpenAIModel,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		},
		CORSOrigins: cfg.CORSOrigins,
		StaticDir:   cfg.StaticDir,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("shutdown complete")
}

// buildIdentity wires the resolver chain: static placeholder identity
// by default, session tokens on top when a secret is configured, and
// the Azure AD login flow when the app registration is present.
func buildIdentity(cfg *config.Config) (identity.Resolver, *identity.AzureFlow) {
	var resolver identity.Resolver = identity.Static{UserID: cfg.DefaultUserID}

	if cfg.SessionSecretKey == "" {
		return resolver, nil
	}
	sessions := identity.NewSessions(cfg.SessionSecretKey, sessionTTL)
	resolver = &identity.Session{Sessions: sessions, Fallback: resolver}

	if cfg.AzureClientID == "" || cfg.AzureTenantID == "" {
		return resolver, nil
	}
	azure := identity.NewAzureFlow(cfg.AzureClientID, cfg.AzureClientSecret, cfg.AzureTenantID, cfg.AzureRedirectURI, sessions)
	return resolver, azure
}
