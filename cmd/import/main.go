package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/jasoncmcclain/mcpmp-api/internal/allocation"
	"github.com/jasoncmcclain/mcpmp-api/internal/blends"
	"github.com/jasoncmcclain/mcpmp-api/internal/importer"
	"github.com/jasoncmcclain/mcpmp-api/internal/inventory"
	"github.com/jasoncmcclain/mcpmp-api/pkg/config"
	"github.com/jasoncmcclain/mcpmp-api/pkg/db"
	"github.com/jasoncmcclain/mcpmp-api/pkg/logger"
	"github.com/jasoncmcclain/mcpmp-api/pkg/migrate"
	"github.com/jasoncmcclain/mcpmp-api/pkg/outbox"
)

const (
	blendsFile = "CoreBlend_export.csv"
	lotsFile   = "GrapeInventory_export.csv"
)

func main() {
	logg := logger.Bootstrap("import")

	_ = godotenv.Load()

	dir := flag.String("dir", "", "directory holding the CSV exports (defaults to MCPMP_IMPORT_DIR)")
	only := flag.String("only", "", "import a single kind: lots|blends")
	flag.Parse()

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "import",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
		Fields:      map[string]string{"env": cfg.App.Env},
	})

	sourceDir := *dir
	if sourceDir == "" {
		sourceDir = cfg.Import.Dir
	}
	ctx := outbox.WithActor(context.Background(), outbox.ActorRef{Source: outbox.SourceImport})
	ctx = logg.WithField(ctx, "dir", sourceDir)

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	requireResource(ctx, logg, "dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	conn := dbClient.DB()
	events := outbox.NewService(outbox.NewRepository(conn), logg)
	ledger, err := inventory.NewService(inventory.NewRepository(conn), dbClient, events, logg)
	requireResource(ctx, logg, "inventory service", err)
	blendSvc, err := blends.NewService(blends.NewRepository(conn))
	requireResource(ctx, logg, "blend service", err)
	// Imported holds mirror the export's reserved balances and never expire.
	alloc, err := allocation.NewService(allocation.Params{
		Repo:   allocation.NewRepository(conn),
		Ledger: ledger,
		Tx:     dbClient,
		Outbox: events,
		Logger: logg,
	})
	requireResource(ctx, logg, "allocation service", err)

	im, err := importer.New(importer.Params{Lots: ledger, Holds: alloc, Blends: blendSvc, Logger: logg})
	requireResource(ctx, logg, "importer", err)

	failed := false
	if *only == "" || *only == "blends" {
		failed = runFile(ctx, logg, filepath.Join(sourceDir, blendsFile), im.ImportBlends) || failed
	}
	if *only == "" || *only == "lots" {
		failed = runFile(ctx, logg, filepath.Join(sourceDir, lotsFile), im.ImportLots) || failed
	}
	if failed {
		os.Exit(1)
	}
}

func runFile(ctx context.Context, logg *logger.Logger, path string, load func(context.Context, io.Reader) importer.Summary) bool {
	f, err := os.Open(path)
	if err != nil {
		logg.Error(ctx, "failed to open export", err)
		return true
	}
	defer f.Close()

	summary := load(ctx, f)
	fmt.Printf("%s: applied=%d skipped=%d failed=%d\n", filepath.Base(path), summary.Applied, summary.Skipped, summary.Failed)
	return summary.Err != nil
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
