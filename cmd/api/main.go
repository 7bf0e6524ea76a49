package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mymasternode.org/internal/auth"
	"mymasternode.org/internal/config"
	"mymasternode.org/internal/httpapi"
	"mymasternode.org/internal/obs"
	"mymasternode.org/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	defer cfg.ClearAdminPassword()

	st, err := pg.Open(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	hasher := auth.NewHasher(cfg.HashIterations)
	issuer, err := auth.NewIssuer(auth.TokenSettings{
		Key:      []byte(cfg.JWTKey),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.TokenTTL,
	})
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}

	svc, err := auth.NewService(st, hasher, issuer)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	// Reconcile the administrator account before the listener opens, so a
	// fresh deployment is never reachable without its admin credentials.
	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	result, err := auth.EnsureAdmin(bootCtx, st, hasher, cfg.AdminUsername, cfg.AdminPassword)
	cancelBoot()
	cfg.ClearAdminPassword()
	if err != nil {
		log.Fatalf("admin bootstrap: %v", err)
	}
	obs.Info("admin bootstrap finished", map[string]any{"result": result.String()})

	api := httpapi.New(svc, issuer, httpapi.ReadyProbe{Store: st}, httpapi.Options{
		Version:       version,
		RateBurst:     cfg.RateBurst,
		RatePerSecond: cfg.RatePerSec,
		MaxBodyBytes:  cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting mymasternode-auth %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
