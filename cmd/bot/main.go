package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"ragchat/internal/auth"
	"ragchat/internal/backend"
	"ragchat/internal/config"
	"ragchat/internal/identity"
	"ragchat/internal/journal"
	"ragchat/internal/llm"
	"ragchat/internal/logger"
	"ragchat/internal/scheduler"
	"ragchat/internal/session"
	"ragchat/internal/telegram"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()
	lg := logger.New(cfg.LogFilePath, cfg.LogProduction)
	defer func() { _ = lg.Sync() }()

	var allowRepo, pendingRepo auth.Repository
	if cfg.AllowlistFilePath != "" {
		repo, err := auth.NewFileRepository(cfg.AllowlistFilePath)
		if err != nil {
			lg.Warn("failed to init allowlist repo", zap.Error(err))
		} else {
			allowRepo = repo
		}
	}
	if cfg.PendingFilePath != "" {
		repo, err := auth.NewFileRepository(cfg.PendingFilePath)
		if err != nil {
			lg.Warn("failed to init pending repo", zap.Error(err))
		} else {
			pendingRepo = repo
		}
	}
	authSvc, err := auth.NewWithRepo(allowRepo, pendingRepo, cfg.AllowedUsers)
	if err != nil {
		lg.Fatal("failed to init auth", zap.Error(err))
	}

	var idRepo identity.Repository
	if cfg.IdentityFilePath != "" {
		repo, err := identity.NewFileRepository(cfg.IdentityFilePath)
		if err != nil {
			lg.Fatal("failed to init identity repo", zap.Error(err))
		}
		idRepo = repo
	}
	identities, err := identity.NewRegistry(idRepo)
	if err != nil {
		lg.Fatal("failed to load identities", zap.Error(err))
	}

	var rec journal.Recorder
	if cfg.JournalFilePath != "" {
		fr, err := journal.NewFileRecorder(cfg.JournalFilePath)
		if err != nil {
			lg.Warn("failed to init journal", zap.Error(err))
		} else {
			rec = fr
		}
	}

	svc := backend.New(cfg.APIURL, cfg.HTTPTimeout, lg.Named("backend"))
	opts := session.Options{
		Model:          cfg.DefaultModel,
		ThinkingPeriod: cfg.ThinkingPeriod,
		Logger:         lg.Named("session"),
	}
	if cfg.VerifyAPIKey {
		opts.Verifier = llm.NewKeyVerifier(cfg.OpenRouterBaseURL, cfg.DefaultModel, cfg.OpenRouterTitle, lg.Named("llm"))
	}
	sessions := session.NewManager(func(token string) session.Backend { return svc.ForUser(token) }, opts, cfg.SessionIdleTTL)

	bot, err := telegram.New(cfg.TelegramBotToken, telegram.Deps{
		Auth:        authSvc,
		Identities:  identities,
		Sessions:    sessions,
		Backend:     svc,
		Journal:     rec,
		AdminUserID: cfg.AdminUserID,
		ParseMode:   cfg.MessageParseMode,
		Logger:      lg.Named("telegram"),
	})
	if err != nil {
		lg.Fatal("failed to create bot", zap.Error(err))
	}

	sched := scheduler.New(time.Local, lg.Named("scheduler"))
	if err := sched.Add("models", cfg.ModelsRefreshSpec, func(ctx context.Context) error {
		models, err := svc.ListModels(ctx)
		if err != nil {
			return err
		}
		sessions.Each(func(_ int64, s *session.Session) { s.SetModels(models) })
		return nil
	}); err != nil {
		lg.Fatal("failed to schedule model refresh", zap.Error(err))
	}
	if err := sched.Add("report", cfg.ReportSpec, func(ctx context.Context) error {
		return bot.SendDailyReport(ctx, time.Now())
	}); err != nil {
		lg.Fatal("failed to schedule daily report", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched.Start()
	defer sched.Stop()

	bot.Start(ctx)
}
