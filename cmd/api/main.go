package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"compass/api/internal/app"
	"compass/api/internal/auth"
	"compass/api/internal/catalog"
	"compass/api/internal/config"
	"compass/api/internal/docstore"
	"compass/api/internal/tokencache"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := docstore.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := docstore.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	store := docstore.NewPostgresStore(db)

	var verifier auth.TokenVerifier = auth.NewVerifier([]byte(cfg.AuthSecret))
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for verified-token caching")
		cache, err := tokencache.New(cfg.RedisURL, verifier, cfg.TokenCacheTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer cache.Close()
		verifier = cache
	}

	reader := catalog.NewReader(store)
	var meiliClient *catalog.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = catalog.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searcher := catalog.NewSearcher(meiliClient, catalog.NewMemorySearch(reader))

	service := app.New(cfg, verifier, store, reader, searcher)
	if err := service.Bootstrap(ctx); err != nil {
		log.Printf("WARNING: bootstrap error (will retry on next restart): %v", err)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Compass API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
