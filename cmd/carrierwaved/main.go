// File: cmd/carrierwaved/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fullduplex/carrierwave/internal/conditions"
	"github.com/fullduplex/carrierwave/internal/config"
	"github.com/fullduplex/carrierwave/internal/lookup"
	"github.com/fullduplex/carrierwave/internal/metrics"
	"github.com/fullduplex/carrierwave/internal/models"
	"github.com/fullduplex/carrierwave/internal/notification"
	"github.com/fullduplex/carrierwave/internal/server"
	"github.com/fullduplex/carrierwave/internal/spots"
	"github.com/fullduplex/carrierwave/internal/storage"
	logsync "github.com/fullduplex/carrierwave/internal/sync"
	"github.com/fullduplex/carrierwave/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application wires the logbook components together
type Application struct {
	config         *config.Config
	logger         *logrus.Logger
	storage        storage.Storage
	metricsManager *metrics.Manager
	lookup         *lookup.Service
	sync           *logsync.Service
	spots          *spots.Manager
	conditions     *conditions.Service
	notification   *notification.Manager
	server         *server.HTTPServer
	ctx            context.Context
	cancel         context.CancelFunc
}

// NewApplication creates the application
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return err
	}

	app.logger = utils.GetLogger()
	app.logger.WithFields(logrus.Fields{
		"level":  logCfg.Level,
		"format": logCfg.Format,
	}).Info("Logger initialized")

	return nil
}

func (app *Application) initializeComponents() error {
	app.logger.Info("Initializing components")

	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	app.metricsManager = metrics.NewManager()
	pm := app.metricsManager.GetPrometheusMetrics()

	app.lookup = lookup.NewService(&app.config.Lookup, app.storage, pm)

	if app.config.Notifications.Enabled {
		app.notification = notification.NewManager(&app.config.Notifications, app.storage, pm)
	}

	app.sync = logsync.NewService(&app.config.Sync, &app.config.Station, app.storage, pm)
	if app.notification != nil {
		app.sync.SetReportSink(app.notification)
	}

	if app.config.Spots.RBN.Enabled || app.config.Spots.POTA.Enabled {
		app.spots = spots.NewManager(&app.config.Spots, &app.config.Station, app.storage, pm,
			app.config.Storage.SpotRetention)
		if app.notification != nil {
			app.spots.SetAlertSink(app.notification)
		}
	}

	if app.config.Conditions.Enabled {
		app.conditions = conditions.NewService(&app.config.Conditions, pm)
	}

	app.server = server.NewHTTPServer(&app.config.Server, AppVersion, app.storage,
		app.lookup, app.sync, app.spots, app.conditions, app.notification, app.metricsManager)

	app.logger.Info("All components initialized")
	return nil
}

func (app *Application) initializeStorage() error {
	store, err := storage.NewStorage(&storage.StorageConfig{
		Type:             app.config.Storage.Type,
		ConnectionString: app.config.Storage.ConnectionString,
		MaxConnections:   app.config.Storage.MaxConnections,
		MaxIdleTime:      app.config.Storage.MaxIdleTime,
	})
	if err != nil {
		return err
	}

	if err := store.Connect(); err != nil {
		return err
	}
	if err := store.Migrate(); err != nil {
		return err
	}

	app.storage = store
	return nil
}

// Start brings the service up
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":  AppVersion,
		"callsign": app.config.Station.Callsign,
	}).Info("Starting CarrierWave")

	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if app.notification != nil {
		if err := app.notification.Start(app.ctx); err != nil {
			return fmt.Errorf("failed to start notification manager: %w", err)
		}
	}

	if app.config.Sync.Interval > 0 {
		if err := app.sync.Start(app.ctx); err != nil {
			return fmt.Errorf("failed to start sync service: %w", err)
		}
	}

	if app.spots != nil {
		if err := app.spots.Start(app.ctx); err != nil {
			return fmt.Errorf("failed to start spot manager: %w", err)
		}
	}

	if app.conditions != nil {
		if err := app.conditions.Start(app.ctx); err != nil {
			return fmt.Errorf("failed to start conditions service: %w", err)
		}
	}

	app.logger.WithField("address",
		fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port)).
		Info("CarrierWave started")

	return nil
}

// Stop shuts everything down in reverse order
func (app *Application) Stop() error {
	app.logger.Info("Stopping CarrierWave")

	app.cancel()

	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop HTTP server")
		}
	}
	if app.conditions != nil {
		if err := app.conditions.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop conditions service")
		}
	}
	if app.spots != nil {
		if err := app.spots.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop spot manager")
		}
	}
	if app.sync != nil {
		if err := app.sync.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop sync service")
		}
	}
	if app.notification != nil {
		if err := app.notification.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop notification manager")
		}
	}
	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close storage")
		}
	}

	app.logger.Info("CarrierWave stopped")
	return nil
}

// CLI commands

var rootCmd = &cobra.Command{
	Use:     "carrierwaved",
	Short:   "Amateur radio logbook service",
	Long:    `A headless amateur radio logbook: QSO logging, callsign lookup, multi-backend logbook sync, spot feeds and solar conditions over an HTTP API.`,
	Version: AppVersion,
	RunE:    runService,
}

func runService(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	<-signalChan
	fmt.Println("\nReceived shutdown signal, stopping...")

	return app.Stop()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("CarrierWave %s\n", AppVersion)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetString("config"))
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		fmt.Println("Configuration is valid!")
		fmt.Printf("Station: %s (%s)\n", cfg.Station.Callsign, cfg.Station.Grid)
		fmt.Printf("Database: %s\n", cfg.Storage.Type)
		fmt.Printf("Sync backends: %s\n", enabledBackends(cfg))

		return nil
	},
}

func enabledBackends(cfg *config.Config) string {
	var names []string
	if cfg.Sync.QRZ.Enabled {
		names = append(names, "qrz")
	}
	if cfg.Sync.POTA.Enabled {
		names = append(names, "pota")
	}
	if cfg.Sync.HAMRS.Enabled {
		names = append(names, "hamrs")
	}
	if cfg.Sync.LoTW.Enabled {
		names = append(names, "lotw")
	}
	if cfg.Sync.LoFi.Enabled {
		names = append(names, "lofi")
	}
	if len(names) == 0 {
		return "none"
	}
	result := names[0]
	for _, name := range names[1:] {
		result += ", " + name
	}
	return result
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test storage and backend connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetString("config"))
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		fmt.Println("Testing CarrierWave connectivity...")

		fmt.Printf("Testing storage (%s)...\n", cfg.Storage.Type)
		store, err := storage.NewStorage(&storage.StorageConfig{
			Type:             cfg.Storage.Type,
			ConnectionString: cfg.Storage.ConnectionString,
		})
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		if err := store.Connect(); err != nil {
			return fmt.Errorf("failed to connect to storage: %w", err)
		}
		defer store.Close()
		fmt.Println("✓ Storage connection successful")

		svc := logsync.NewService(&cfg.Sync, &cfg.Station, store, nil)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		for _, backend := range svc.Backends() {
			fmt.Printf("Testing %s backend...\n", backend)
			if err := svc.Probe(ctx, backend); err != nil {
				fmt.Printf("✗ %s: %v\n", backend, err)
			} else {
				fmt.Printf("✓ %s reachable\n", backend)
			}
		}

		fmt.Println("\nConnectivity tests finished")
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass across all enabled backends",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, store, err := openSyncService()
		if err != nil {
			return err
		}
		defer store.Close()

		report, err := svc.SyncAll(context.Background())
		if err != nil {
			return err
		}

		for backend, br := range report.Backends {
			if br.Error != "" {
				fmt.Printf("%s: FAILED (%s)\n", backend, br.Error)
				continue
			}
			fmt.Printf("%s: %d uploaded, %d downloaded, %d confirmed, %d skipped\n",
				backend, br.Uploaded, br.Downloaded, br.Confirmed, br.Skipped)
		}
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file.adi>",
	Short: "Import an ADIF file into the logbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, store, err := openSyncService()
		if err != nil {
			return err
		}
		defer store.Close()

		file, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer file.Close()

		result, err := svc.ImportADIF(context.Background(), file, "")
		if err != nil {
			return err
		}

		fmt.Printf("Imported %d QSOs (%d duplicates skipped, %d invalid)\n",
			result.Imported, result.Skipped, result.Invalid)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <file.adi>",
	Short: "Export the logbook to an ADIF file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, store, err := openSyncService()
		if err != nil {
			return err
		}
		defer store.Close()

		file, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", args[0], err)
		}
		defer file.Close()

		n, err := svc.ExportADIF(context.Background(), file, models.QSOFilter{}, AppVersion)
		if err != nil {
			return err
		}

		fmt.Printf("Exported %d QSOs to %s\n", n, args[0])
		return nil
	},
}

// openSyncService loads config and builds a sync service over a live
// storage connection for one-shot commands
func openSyncService() (*logsync.Service, storage.Storage, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.File); err != nil {
		return nil, nil, err
	}

	store, err := storage.NewStorage(&storage.StorageConfig{
		Type:             cfg.Storage.Type,
		ConnectionString: cfg.Storage.ConnectionString,
		MaxConnections:   cfg.Storage.MaxConnections,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := store.Connect(); err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, nil, err
	}

	return logsync.NewService(&cfg.Sync, &cfg.Station, store, nil), store, nil
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	configCmd.AddCommand(validateConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
