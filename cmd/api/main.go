package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/ovaphlow/scanner-portal/internal/auth"
	"github.com/ovaphlow/scanner-portal/internal/clerk"
	"github.com/ovaphlow/scanner-portal/internal/diagnostic"
	"github.com/ovaphlow/scanner-portal/internal/router"
	"github.com/ovaphlow/scanner-portal/internal/user"
	userrepo "github.com/ovaphlow/scanner-portal/internal/user/repo"
	"github.com/ovaphlow/scanner-portal/internal/web"
	"github.com/ovaphlow/scanner-portal/pkg/database"
	"github.com/ovaphlow/scanner-portal/pkg/utilities"
)

type serverConfig struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8431"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"5s"`
	AppName         string        `env:"APP_NAME" envDefault:"A11y Scanner"`
}

func main() {
	// load .env file if present so os.Getenv picks values from it
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting scanner-portal")

	var srvCfg serverConfig
	if err := env.Parse(&srvCfg); err != nil {
		sugar.Fatalf("server config: %v", err)
	}

	// init db
	dbCfg := database.ConfigFromEnv()
	db, err := database.Connect(dbCfg)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	users := userrepo.NewUserRepo(db, utilities.NewSnowflakeInt64)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := users.EnsureTable(ctx); err != nil {
		sugar.Fatalf("ensure users table: %v", err)
	}

	// identity provider
	clerkCfg := clerk.ConfigFromEnv()
	verifier, err := clerk.NewVerifierFromConfig(clerkCfg)
	if err != nil {
		sugar.Fatalf("clerk verifier: %v", err)
	}
	var emails clerk.EmailLookup
	if dir := clerk.NewDirectory(clerkCfg, nil); dir != nil {
		emails = dir
	} else {
		sugar.Warn("CLERK_SECRET_KEY not set; email addresses come from session claims only")
	}

	pages, err := web.NewPages(web.Config{
		AppName:        srvCfg.AppName,
		PublishableKey: clerkCfg.PublishableKey,
		FrontendAPI:    clerkCfg.FrontendAPI,
	}, sugar)
	if err != nil {
		sugar.Fatalf("load pages: %v", err)
	}

	handler := router.RegisterRoutes(router.Deps{
		Logger:      sugar,
		Verifier:    auth.TokenVerifier(verifier),
		Users:       user.NewHandler(user.NewUserService(users, emails, sugar), sugar),
		Diagnostics: diagnostic.NewHandler(emails, sugar),
		Pages:       pages,
		ClerkOrigin: clerkCfg.Origin(),
	})
	srv := &http.Server{
		Addr:              srvCfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("http server listening", "addr", srvCfg.Addr, "db_driver", dbCfg.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), srvCfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
