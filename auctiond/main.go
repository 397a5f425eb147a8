package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cloudx-io/streamauction/journal"
	"github.com/cloudx-io/streamauction/viewer"
)

func openStore(path string) (journal.Store, error) {
	if path == "" {
		return journal.NewMemoryStore(), nil
	}
	store, err := journal.OpenSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	log.Printf("INFO: Journal stored in %s", path)
	return store, nil
}

func run(ctx context.Context) error {
	cfg, err := loadConfig(".env")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := openStore(cfg.JournalPath)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("ERROR: Failed to close journal: %v", err)
		}
	}()

	keyManager, err := NewKeyManager()
	if err != nil {
		return fmt.Errorf("failed to initialize key manager: %w", err)
	}
	log.Printf("INFO: KeyManager initialized")

	// NSM attestations only exist inside an enclave, which is reached over vsock.
	var attester func() (EnclaveAttester, error)
	if cfg.VsockPort != 0 {
		attester = getEnclaveAttester
	}

	feed := NewFeed()
	registry := viewer.NewRegistry()
	service, err := NewService(ctx, ServiceConfig{
		Auction:    cfg.Auction,
		Store:      store,
		KeyManager: keyManager,
		Feed:       feed,
		Viewer:     registry,
		Attester:   attester,
	})
	if err != nil {
		return fmt.Errorf("failed to start auction service: %w", err)
	}

	var httpServer *http.Server
	if cfg.HTTPAddr != "" {
		router := chi.NewRouter()
		NewViewerHandler(service, registry, feed).RegisterRoutes(router)
		httpServer = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("INFO: Viewer API listening on %s", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("ERROR: Viewer API stopped: %v", err)
			}
		}()
	}

	listener, err := listen(cfg)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		log.Printf("INFO: Shutting down")
		if httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}
		if err := listener.Close(); err != nil {
			log.Printf("ERROR: Failed to close listener: %v", err)
		}
	}()

	return NewAuctionServer(service, registry, cfg.MaxWorkers).Serve(listener)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("ERROR: %v", err)
	}
}
