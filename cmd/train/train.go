package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sunosaathi/sanket/internal/monitor"
	"github.com/sunosaathi/sanket/internal/runstore"
	"github.com/sunosaathi/sanket/internal/training"
)

var (
	trainData     = flag.String("train-data", "", "Directory of training sample JSON files")
	valData       = flag.String("val-data", "", "Directory of validation sample JSON files")
	vocabPath     = flag.String("vocab", "", "Vocabulary file: loaded if present, written from the training labels otherwise")
	outputDir     = flag.String("output", "trained_models", "Directory for checkpoints and training curves")
	epochs        = flag.Int("epochs", 50, "Number of training epochs")
	batchSize     = flag.Int("batch-size", 32, "Mini-batch size")
	lr            = flag.Float64("lr", 0.001, "Adam learning rate")
	seed          = flag.Int64("seed", 42, "Random seed for weight init and shuffling")
	dbFile        = flag.String("db", "", "SQLite database to record the run in (optional)")
	monitorListen = flag.String("monitor-listen", "", "Serve the live training monitor on this address (optional)")
	plots         = flag.Bool("plots", true, "Write loss/accuracy curve PNGs to the output directory on completion")
)

// Main
func main() {
	flag.Parse()

	if *trainData == "" || *valData == "" {
		log.Fatal("-train-data and -val-data are required")
	}

	var store *runstore.Store
	if *dbFile != "" {
		var err error
		store, err = runstore.Open(*dbFile)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer store.Close()
		if _, err := store.CheckAndPromptMigrations(runstore.MigrationsFS()); err != nil {
			log.Fatalf("Database schema check failed: %v", err)
		}
	}

	runner := training.NewRunner(store)
	runner.SetProgress(training.NewTermProgress(training.DefaultProgressEnabled()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The monitor's context ends when training does, so the server exits
	// with the run instead of holding the process open.
	monitorCtx, monitorDone := context.WithCancel(ctx)
	defer monitorDone()

	var wg sync.WaitGroup
	if *monitorListen != "" {
		ws := monitor.NewWebServer(monitor.WebServerConfig{
			Address: *monitorListen,
			Runner:  runner,
			Store:   store,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ws.Start(monitorCtx); err != nil {
				log.Printf("monitor server error: %v", err)
			}
		}()
	}

	log.Printf("Starting training: %d epochs, batch size %d, lr %g", *epochs, *batchSize, *lr)
	err := runner.Start(ctx, training.RunRequest{
		TrainDir:     *trainData,
		ValDir:       *valData,
		VocabPath:    *vocabPath,
		OutputDir:    *outputDir,
		Epochs:       *epochs,
		BatchSize:    *batchSize,
		LearningRate: *lr,
		Seed:         *seed,
	})
	if err != nil {
		log.Fatalf("Failed to start training: %v", err)
	}

	// Start returns immediately; poll until the background run reaches a
	// terminal state. An interrupt cancels ctx, which the run observes and
	// surfaces as an error state, so this loop always ends.
	state := runner.GetRunState()
	for state.Status == training.RunStatusRunning {
		time.Sleep(200 * time.Millisecond)
		state = runner.GetRunState()
	}

	if state.Status == training.RunStatusError {
		monitorDone()
		wg.Wait()
		log.Fatalf("Training failed: %s", state.Error)
	}

	log.Printf("Training complete: best val_acc=%.2f%% at epoch %d", state.BestValAcc*100, state.BestEpoch)
	if state.CheckpointPath != "" {
		log.Printf("Best checkpoint: %s", state.CheckpointPath)
	}

	if *plots {
		files, err := monitor.SaveCurves(runner.History(), *outputDir)
		if err != nil {
			log.Printf("Warning: failed to write training curves: %v", err)
		} else {
			for _, f := range files {
				log.Printf("Wrote %s", f)
			}
		}
	}

	monitorDone()
	wg.Wait()
}
