package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/pianista215/mam-acars/internal/api"
	"github.com/pianista215/mam-acars/internal/chunker"
	"github.com/pianista215/mam-acars/internal/config"
	"github.com/pianista215/mam-acars/internal/database"
	"github.com/pianista215/mam-acars/internal/export"
	"github.com/pianista215/mam-acars/internal/logging"
	"github.com/pianista215/mam-acars/internal/metrics"
	"github.com/pianista215/mam-acars/internal/storage"
	"github.com/pianista215/mam-acars/internal/submission"
	"github.com/pianista215/mam-acars/internal/token"
)

// AppVersion can be set at build time via ldflags.
var (
	AppVersion = "0.0.1"

	appName = "mamacars"
)

func main() {
	configDir := "."
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	if err := config.Load(configDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logManager, err := logging.NewManager(appName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logManager.Close()

	log := logManager.Logger
	log.Info().Str("version", AppVersion).Msg("Starting up")

	if err := run(logManager); err != nil {
		log.Error().Err(err).Msg("Exiting with error")
		os.Exit(1)
	}
}

func run(logManager *logging.Manager) error {
	log := logManager.Logger
	dataDir := viper.GetString("dataDir")
	flightsDir := filepath.Join(dataDir, "flights")

	db := database.NewManager(log, filepath.Join(dataDir, "mamacars.db"))
	if err := db.Connect(); err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer db.Close()
	if err := db.Setup(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	store, err := storage.New(db.DB, log, storage.Config{
		FlightsDir:    flightsDir,
		FlushInterval: viper.GetDuration("recorder.flushInterval"),
	})
	if err != nil {
		return fmt.Errorf("creating event store: %w", err)
	}

	influx := metrics.NewManager(log)
	if err := influx.Connect(); err != nil {
		log.Warn().Err(err).Msg("Metrics unavailable")
	}
	defer influx.Close()
	store.SetFlushObserver(influx)

	store.Start()
	defer func() {
		if err := store.Stop(); err != nil {
			log.Error().Err(err).Msg("Final flush failed")
		}
	}()

	// A flight that was commented but never fully submitted survives
	// restarts; finish its submission before anything else.
	pending, err := store.GetPendingFlight()
	if err != nil {
		return err
	}
	if pending == nil {
		log.Info().Msg("No pending flight submission")
		return nil
	}

	log.Info().Uint64("flightId", pending.ID).Msg("Resuming pending flight submission")

	tokens := token.NewStore(dataDir)
	client := api.New(viper.GetString("api.serverUrl"), viper.GetDuration("api.timeout"))
	if tok, err := tokens.Get(); err == nil {
		client.SetBearerToken(tok)
	} else {
		log.Warn().Msg("No stored token; submission will fail until login")
	}

	orch := submission.NewOrchestrator(
		store,
		export.NewExporter(store, log, flightsDir),
		chunker.NewSplitter(log),
		client,
		tokens,
		log,
		flightsDir,
	)
	orch.SetProgressFunc(func(percent int, status string) {
		log.Info().Int("progress", percent).Msg(status)
	})

	return orch.Run(pending.ID)
}
