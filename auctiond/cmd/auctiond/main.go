// Command auctiond runs the auction daemon: a simulated Algorand ledger with
// the auction registrar deployed, fronted by an HTTP API and an optional
// vsock control surface.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/oysterpack/oysterpack-smart/auctiond"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	cfg, err := auctiond.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("ERROR: load config: %v", err)
	}

	server, err := auctiond.NewServer(cfg)
	if err != nil {
		log.Fatalf("ERROR: start daemon: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Handler(),
	}

	errc := make(chan error, 2)
	go func() {
		log.Printf("INFO: HTTP API listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	if cfg.VsockEnabled {
		go func() {
			if err := server.StartVsock(); err != nil {
				errc <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Printf("INFO: shutdown signal received")
	case err := <-errc:
		log.Printf("ERROR: server failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: HTTP shutdown: %v", err)
	}
	if err := server.Close(); err != nil {
		log.Printf("ERROR: close daemon: %v", err)
	}
	log.Printf("INFO: auctiond stopped")
}
