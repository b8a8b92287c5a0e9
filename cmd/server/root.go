package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"heroes/internal/api"
	"heroes/internal/config"
	"heroes/internal/engine"
	"heroes/internal/logging"
	"heroes/internal/storage"
)

const Version = "1.0.0"

var plog = logger.GetLogger("server")

// runFunc starts the service with a validated configuration.
type runFunc func(ctx context.Context, cfg *config.Config) error

func newRootCmd(run runFunc) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "heroes",
		Short: "Characters REST API",
		Long: fmt.Sprintf(`heroes (v%s)

Serves a JSON file backed list of characters over HTTP. Every flag can also be
set as environment variable HEROES_<FLAG> (e.g. HEROES_DATA_FILE=heroes.json),
in a .env file or in the file passed with --config.`, Version),
		Version:      Version,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		PreRunE:      func(cmd *cobra.Command, _ []string) error { return initConfig(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.String("config", "", "optional config file (yaml, toml, json, ...)")
	f.String("endpoint", "127.0.0.1:8080", "address the HTTP API listens on")
	f.String("data-file", "characters.json", "path of the characters file (or sqlite database)")
	f.String("store", storage.DriverJSON, "record store driver (json, sqlite)")
	f.Bool("create-if-missing", false, "create an empty data file when it does not exist")
	f.String("journal", "", "path of the mutation journal, empty disables it")
	f.String("default-universe", engine.DefaultUniverse, "universe stored when a create omits it")
	f.Duration("enqueue-timeout", 5*time.Second, "how long a mutation may wait for a queue slot")
	f.Int("max-pending-mutations", 1024, "capacity of the mutation queue")
	f.Duration("shutdown-timeout", 10*time.Second, "grace period for in-flight requests on shutdown")
	f.String("log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

// initConfig binds flags, .env files, environment variables and the optional
// config file to v.
func initConfig(cmd *cobra.Command, v *viper.Viper) error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v.SetEnvPrefix("heroes")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", file, err)
		}
	}
	return nil
}

func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg := &config.Config{
		Endpoint:            v.GetString("endpoint"),
		ShutdownTimeout:     v.GetDuration("shutdown-timeout"),
		StoreDriver:         v.GetString("store"),
		DataFile:            v.GetString("data-file"),
		CreateIfMissing:     v.GetBool("create-if-missing"),
		JournalPath:         v.GetString("journal"),
		DefaultUniverse:     v.GetString("default-universe"),
		EnqueueTimeout:      v.GetDuration("enqueue-timeout"),
		MaxPendingMutations: v.GetInt("max-pending-mutations"),
		LogLevel:            v.GetString("log-level"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// serve runs the API until ctx is cancelled. When ready is non-nil it
// receives the bound address once the listener is up.
func serve(ctx context.Context, cfg *config.Config, ready chan<- string) error {
	if err := logging.Init(cfg.LogLevel); err != nil {
		return err
	}
	plog.Infof("starting heroes v%s with configuration:%s", Version, cfg.String())

	store, err := storage.Open(storage.Options{
		Driver:          cfg.StoreDriver,
		Path:            cfg.DataFile,
		CreateIfMissing: cfg.CreateIfMissing,
	})
	if err != nil {
		return fmt.Errorf("open record store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			plog.Errorf("failed to close record store: %v", err)
		}
	}()

	var journal *engine.Journal
	if cfg.JournalPath != "" {
		if journal, err = engine.OpenJournal(cfg.JournalPath); err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer func() {
			if err := journal.Close(); err != nil {
				plog.Errorf("failed to close journal: %v", err)
			}
		}()
	}

	// the writer outlives ctx so requests drained during shutdown can still mutate
	svc, stopService := engine.NewService(context.WithoutCancel(ctx), store, journal, engine.ServiceCfg{
		EnqueueTimeout:      cfg.EnqueueTimeout,
		MaxPendingMutations: cfg.MaxPendingMutations,
		DefaultUniverse:     cfg.DefaultUniverse,
	})
	defer func() {
		stopService()
		<-svc.Done()
	}()

	ln, err := net.Listen("tcp", cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Endpoint, err)
	}
	srv := &http.Server{
		Handler:           api.NewServer(svc),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	plog.Infof("listening on %s", ln.Addr())
	if ready != nil {
		ready <- ln.Addr().String()
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	plog.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
