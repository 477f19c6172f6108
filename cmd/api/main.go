package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loanadmin.org/internal/app"
	"loanadmin.org/internal/auth"
	"loanadmin.org/internal/config"
	"loanadmin.org/internal/httpapi"
	"loanadmin.org/internal/obs"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	log := obs.Logger()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	obs.SetLevel(cfg.LogLevel)
	obs.Init()
	obs.PublishBuild(obs.Build{Version: version, Commit: commit, Store: cfg.Store})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	kv, closeStore, err := app.OpenStore(ctx, cfg)
	cancel()
	if err != nil {
		log.WithError(err).WithField("store", cfg.Store).Fatal("open store")
	}
	svc := app.NewServices(kv, cfg)

	if cfg.SeedFile != "" {
		rep, err := svc.SeedFile(context.Background(), cfg.SeedFile)
		if err != nil {
			log.WithError(err).Fatal("seed")
		}
		log.WithField("report", rep).Info("seed file loaded")
	}

	var issuer *auth.Issuer
	if cfg.AuthEnabled() {
		issuer, err = auth.NewIssuer(cfg.AuthSecret, cfg.TokenTTL)
		if err != nil {
			log.WithError(err).Fatal("auth issuer")
		}
	} else {
		log.Warn("LOANADMIN_AUTH_SECRET is not set; authentication and permission checks are disabled")
	}

	api := httpapi.New(httpapi.Deps{
		Org:      svc.Org,
		Roles:    svc.Roles,
		Policy:   svc.Policy,
		Workflow: svc.Workflow,
		Trail:    svc.Trail,
		History:  svc.History,
		Issuer:   issuer,
		Ready:    kv,
	}, version, httpapi.Options{
		RateBurst:   cfg.RateBurst,
		RatePerSec:  cfg.RatePerSec,
		CORSOrigins: cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.WithFields(map[string]any{
		"version": version,
		"addr":    srv.Addr,
		"store":   cfg.Store,
	}).Info("starting loanadmin-api")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown")
	}
	if err := closeStore(); err != nil {
		log.WithError(err).Warn("close store")
	}
	log.Info("stopped")
}
