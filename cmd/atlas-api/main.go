package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/atlasnotes/atlas/backend/internal/auth"
	"github.com/atlasnotes/atlas/backend/internal/config"
	"github.com/atlasnotes/atlas/backend/internal/database"
	"github.com/atlasnotes/atlas/backend/internal/ink"
	"github.com/atlasnotes/atlas/backend/internal/jobs"
	"github.com/atlasnotes/atlas/backend/internal/library"
	"github.com/atlasnotes/atlas/backend/internal/logging"
	"github.com/atlasnotes/atlas/backend/internal/notes"
	"github.com/atlasnotes/atlas/backend/internal/ocr"
	"github.com/atlasnotes/atlas/backend/internal/server"
	"github.com/atlasnotes/atlas/backend/internal/storage"
	"github.com/atlasnotes/atlas/backend/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "atlas-api",
		Short: "Atlas Notes backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("storage-dir", defaults.GetString("storage.dir"), "Directory for uploaded files and rendered ink")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("token.ttl_minutes"), "Backend token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Backend signing secret (overrides env)")
	cmd.PersistentFlags().String("ocr-engine", defaults.GetString("ocr.engine"), "OCR engine name")
	cmd.PersistentFlags().Int("ocr-workers", defaults.GetInt("ocr.workers"), "OCR worker goroutines")
	cmd.PersistentFlags().Int("ocr-queue-size", defaults.GetInt("ocr.queue_size"), "OCR task queue size")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "storage.dir", "storage-dir")
	bindFlag(cmd, "token.ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "ocr.engine", "ocr-engine")
	bindFlag(cmd, "ocr.workers", "ocr-workers")
	bindFlag(cmd, "ocr.queue_size", "ocr-queue-size")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		TokenTTL:      appConfig.TokenTTL,
	})

	blobStore, err := storage.NewLocalStore(filepath.Join(appConfig.StorageDir, "uploads"))
	if err != nil {
		return err
	}

	libraryService, err := library.NewService(library.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	usersService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Seeder:   libraryService,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	notesService, err := notes.NewService(notes.ServiceConfig{
		Database: db,
		Library:  libraryService,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	engines := ocr.NewRegistry(logger)
	engines.Register(ocr.NewTesseractEngine("eng"))

	runner := jobs.NewRunner(appConfig.OCRWorkers, appConfig.OCRQueueSize, logger)
	defer runner.Close()

	jobsService, err := jobs.NewService(jobs.ServiceConfig{
		Database:   db,
		Notes:      notesService,
		Renderer:   &ink.Renderer{WorkDir: filepath.Join(appConfig.StorageDir, "renders")},
		Engines:    engines,
		EngineName: appConfig.OCREngine,
		Tasks:      runner,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager: tokenManager,
		Users:        usersService,
		Library:      libraryService,
		Notes:        notesService,
		Jobs:         jobsService,
		Blobs:        blobStore,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
