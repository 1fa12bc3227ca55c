package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/embucket/embucket/internal/api"
	"github.com/embucket/embucket/internal/catalog"
	"github.com/embucket/embucket/internal/config"
	"github.com/embucket/embucket/internal/ident"
	"github.com/embucket/embucket/internal/kv"
	"github.com/embucket/embucket/internal/metastore"
	"github.com/embucket/embucket/internal/objectstore"
	"github.com/embucket/embucket/internal/query"
	"github.com/embucket/embucket/internal/registry"
	"github.com/embucket/embucket/internal/session"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start an instance of the Embucket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEmbucket(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// runEmbucket wires config -> C1/C3 (kv/objectstore) -> C2/C4
// (metastore/catalog) -> C5/C6 (registry/session/query engine) ->
// the HTTP adapters, following the teacher's internal/cmd/run.go
// shape (load config, set up logging, build the server, listen).
func runEmbucket(ctx context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	config.InitGlobalSettings()

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Logging.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening durable store: %w", err)
	}

	objRegistry := objectstore.NewRegistry()
	ms := metastore.New(store, objRegistry)
	cats := catalog.New(ms, objRegistry, cfg.Catalog.MaxConcurrentTableFetches)

	reg := registry.New()
	normPolicy := ident.NewPolicy(cfg.Identifiers.NormalizationPolicy)
	sessionTTL := time.Duration(cfg.Session.InactivitySecs) * time.Second
	sessions := session.New(reg, normPolicy, sessionTTL)

	queryTimeout := time.Duration(cfg.SQL.QueryTimeoutSecs) * time.Second
	engine := query.New(sessions, reg, ms, cats, cfg.SQL.MaxConcurrentLevel, queryTimeout)

	sweepInterval := time.Duration(cfg.Session.SweepIntervalSecs) * time.Second
	go sessions.RunSweeper(ctx, sweepInterval)

	refreshScheduler, err := startCatalogRefresh(ctx, cats, cfg.Catalog.RefreshIntervalSecs)
	if err != nil {
		return fmt.Errorf("starting catalog refresh scheduler: %w", err)
	}
	defer refreshScheduler.Stop()

	server, err := api.New(cfg, engine)
	if err != nil {
		return fmt.Errorf("building http server: %w", err)
	}

	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info().Str("address", addr).Str("embucket_version", cfg.EmbucketVersion).Msg("server started")

	return http.ListenAndServe(addr, mux)
}

// openStore picks the C1 durable store implementation per
// cfg.Storage.Backend: "memory" for dev/test, "file" for an
// OpenLogStore rooted at cfg.Storage.Path (spec §4.1).
func openStore(ctx context.Context, cfg *config.Config) (kv.Store, error) {
	switch cfg.Storage.Backend {
	case "file":
		client, err := objectstore.NewFileClient(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		return kv.OpenLogStore(ctx, client, "_log")
	default:
		return kv.NewMemoryStore(), nil
	}
}

// startCatalogRefresh runs CatalogList.Refresh on a cron schedule,
// matching spec §4.4's periodic catalog-refresh requirement for
// catalogs with ShouldRefresh set. The teacher parses cron expressions
// for scheduled runs in internal/core/runs.parseCronExpression; this
// uses the same robfig/cron/v3 package's Cron/AddFunc scheduler
// instead, since a fixed interval needs no user-supplied expression.
func startCatalogRefresh(ctx context.Context, cats *catalog.CatalogList, intervalSecs int) (*cron.Cron, error) {
	if intervalSecs <= 0 {
		intervalSecs = 60
	}
	c := cron.New(cron.WithSeconds())
	spec := fmt.Sprintf("@every %ds", intervalSecs)
	_, err := c.AddFunc(spec, func() {
		if err := cats.Refresh(ctx); err != nil {
			log.Error().Err(err).Msg("catalog refresh failed")
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
