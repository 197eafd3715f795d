package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"nexusauth/internal/audit"
	"nexusauth/internal/auth"
	"nexusauth/internal/config"
	"nexusauth/internal/db"
	"nexusauth/internal/httpserver"
	"nexusauth/internal/lockout"
	"nexusauth/internal/logging"
	"nexusauth/internal/passkey"
	"nexusauth/internal/session"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = godotenv.Load()
	logger := logging.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var (
		userStore auth.UserStore
		credStore passkey.CredentialStore
		trail     audit.Store
	)
	if cfg.DBDSN != "" {
		dbConn, err := db.Open(ctx, cfg.DBDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer dbConn.Close()
		if err := db.RunMigrations(ctx, dbConn, "sql"); err != nil {
			log.Fatalf("run migrations: %v", err)
		}
		userStore = auth.NewPostgresStore(dbConn)
		credStore = passkey.NewPostgresCredentialStore(dbConn)
		trail = audit.NewPostgresStore(dbConn)
	} else {
		logger.Warn("no database configured, using in-memory stores")
		userStore = auth.NewMemoryStore()
		credStore = passkey.NewMemoryCredentialStore()
		trail = audit.NewMemoryStore()
	}

	if err := auth.SeedFromFile(ctx, userStore, cfg.UsersPath); err != nil {
		log.Fatalf("seed users: %v", err)
	}

	lockPolicy, err := lockout.LoadPolicy(cfg.LockoutPath)
	if err != nil {
		logger.Warn("lockout policy not loaded, using defaults", "path", cfg.LockoutPath, "err", err)
		lockPolicy = lockout.DefaultPolicy
	}
	lockouts := lockout.NewTracker(lockPolicy)

	policy := session.Policy{Lifetime: cfg.SessionLifetime, Sliding: cfg.SessionSliding}

	// Sessions live in memory only; a restart revokes everything.
	// Password and passkey sessions occupy separate token namespaces.
	passwordSessions := session.NewMemoryStore()
	passkeySessions := session.NewMemoryStore()

	authSvc := auth.NewService(userStore, passwordSessions, policy, trail, lockouts, logger)
	authSvc.RedirectHint = cfg.LoginRedirect

	challenges := passkey.NewChallengeSigner(cfg.ChallengeSecret)
	passkeySvc := passkey.NewService(credStore, passkeySessions, session.Policy{Lifetime: cfg.SessionLifetime}, challenges, trail, logger)
	passkeySvc.Directory = userStore

	if cfg.SweepInterval > 0 {
		for _, store := range []*session.MemoryStore{passwordSessions, passkeySessions} {
			sw := &session.Sweeper{Store: store, Policy: policy, Interval: cfg.SweepInterval, Logger: logger}
			go sw.Run(ctx)
		}
	}

	handlers := &httpserver.Handlers{
		Auth:            authSvc,
		Passkeys:        passkeySvc,
		Trail:           trail,
		Logger:          logger,
		CookieName:      cfg.CookieName,
		SessionLifetime: cfg.SessionLifetime,
	}
	server := httpserver.New(cfg.HTTPAddr, httpserver.NewRouter(handlers), logger)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("http server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
