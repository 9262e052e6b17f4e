package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"photo-gallery/internal/config"
	"photo-gallery/internal/events"
	"photo-gallery/internal/handlers"
	"photo-gallery/internal/storage"
)

func main() {
	cfg, err := config.Load(os.Getenv("GALLERY_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := storage.OpenDB(cfg.DBDriver, cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := events.NewHub()
	go hub.Run(ctx)

	h, err := handlers.NewHandlers(db, hub, handlers.Options{
		TemplateDir:    cfg.TemplateDir,
		SecureCookie:   cfg.SecureCookie,
		Hasher:         cfg.Hasher(),
		ClientTTL:      cfg.ClientTTL,
		MaxUploadBytes: cfg.MaxUploadBytes,
		ThumbnailSize:  cfg.ThumbnailSize,
		ThumbnailCache: cfg.ThumbnailCache,
	})
	if err != nil {
		log.Fatalf("Failed to initialise handlers: %v", err)
	}

	go cleanupClients(ctx, h, cfg.CleanupInterval)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           setupRouter(h, cfg.StaticDir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("Server starting on port %s (db=%s, driver=%s)", cfg.Port, cfg.DBPath, cfg.DBDriver)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
}

// setupRouter mounts the application routes and static assets.
func setupRouter(h *handlers.Handlers, staticDir string) *http.ServeMux {
	mux := h.Routes()
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	return mux
}

// cleanupClients drops expired clients and their stores every interval.
func cleanupClients(ctx context.Context, h *handlers.Handlers, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := h.CleanExpiredClients()
			if err != nil {
				log.Printf("Failed to clean expired clients: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("Removed %d expired clients", n)
			}
		}
	}
}
