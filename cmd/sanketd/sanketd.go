package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sunosaathi/sanket/internal/api"
	"github.com/sunosaathi/sanket/internal/config"
	"github.com/sunosaathi/sanket/internal/recognizer"
	"github.com/sunosaathi/sanket/internal/runstore"
	"github.com/sunosaathi/sanket/internal/version"
	"github.com/sunosaathi/sanket/internal/vocab"
)

var (
	listen     = flag.String("listen", ":8080", "HTTP listen address")
	dbFile     = flag.String("db", "", "Path to the SQLite database file (default: db_path from config)")
	configPath = flag.String("config", "", "Path to a service config JSON file")
	modelPath  = flag.String("model", "", "Path to a trained checkpoint (overrides config)")
	strictLoad = flag.Bool("strict-load", false, "Refuse to start when the checkpoint cannot be loaded")
	devMode    = flag.Bool("dev", false, "Serve fresh demo weights, ignoring any configured checkpoint")
)

// Main
func main() {
	flag.Parse()

	cfg := config.EmptyServiceConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadServiceConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	dbPath := *dbFile
	if dbPath == "" {
		dbPath = cfg.GetDBPath()
	}

	// `sanketd migrate <action>` manages the schema and exits.
	if flag.Arg(0) == "migrate" {
		runstore.RunMigrateCommand(flag.Args()[1:], dbPath)
		return
	}

	if *listen == "" {
		log.Fatal("HTTP listen address is required")
	}

	log.Printf("Starting sanketd %s", version.Version)

	checkpoint := cfg.GetModelPath()
	if *modelPath != "" {
		checkpoint = *modelPath
	}
	if *devMode {
		log.Println("Dev mode: serving fresh demo weights, checkpoint ignored")
		checkpoint = ""
	}

	store, err := runstore.Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	if _, err := store.CheckAndPromptMigrations(runstore.MigrationsFS()); err != nil {
		log.Fatalf("Database schema check failed: %v", err)
	}

	rec := recognizer.New(recognizer.Options{
		CheckpointPath: checkpoint,
		VocabSources: []vocab.Source{
			vocab.FileSource("vocab_file", cfg.GetVocabPath()),
			vocab.BuiltinSource(cfg.GetBuiltinVocabSize()),
		},
		StrictLoad:      *strictLoad || cfg.GetStrictLoad(),
		Window:          cfg.GetWindow(),
		TopK:            cfg.GetDefaultTopK(),
		AcceptThreshold: cfg.GetAcceptThreshold(),
		Seed:            cfg.GetSeed(),
	})

	// Load the model before accepting traffic so a bad checkpoint surfaces
	// here rather than on the first request.
	if err := rec.EnsureLoaded(); err != nil {
		log.Fatalf("Failed to load model: %v", err)
	}
	info := rec.Info()
	log.Printf("Model ready: %d classes, window %d, weights from %s, vocabulary from %s",
		info.Classes, info.Window, info.Source, info.VocabSource)

	// Create a wait group for the HTTP server routine
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(rec, store, cfg).ServeMux()

		// mount the admin debugging routes (live SQL browsing and backups)
		store.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("Starting HTTP server on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Create a shutdown context with a timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
