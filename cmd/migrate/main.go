package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/jasoncmcclain/mcpmp-api/pkg/config"
	"github.com/jasoncmcclain/mcpmp-api/pkg/db"
	"github.com/jasoncmcclain/mcpmp-api/pkg/logger"
	"github.com/jasoncmcclain/mcpmp-api/pkg/migrate"
)

func main() {
	logg := logger.Bootstrap("migrate")

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|to|create|validate")
	dir := flag.String("dir", "", "read migrations from this directory instead of the embedded set")
	name := flag.String("name", "", "migration name (for create)")
	target := flag.String("version", "", "target version YYYYMMDDHHMMSS (for to)")
	flag.Parse()

	// create and validate work on files only and do not need config or a database.
	switch *cmd {
	case "create":
		out := *dir
		if out == "" {
			out = migrate.DefaultDir
		}
		path, err := migrate.Create(out, *name, time.Now())
		exitOn(err, "create migration")
		fmt.Println("created migration:", path)
		return
	case "validate":
		exitOn(migrate.Validate(migrate.Source(*dir)), "validate migrations")
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)
	if cfg.FeatureFlags.UseSQLite {
		fmt.Fprintln(os.Stderr, "goose migrations target postgres; sqlite databases use the dev AutoMigrate path")
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
		Fields:      map[string]string{"env": cfg.App.Env},
	})
	ctx := logg.WithField(context.Background(), "cmd", *cmd)

	dbClient, err := db.New(ctx, cfg.DB, false, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)

	m, err := migrate.New(sqlDB, migrate.Source(*dir))
	requireResource(ctx, logg, "migrator", err)

	switch *cmd {
	case "up":
		applied, err := m.Up(ctx)
		report(applied)
		exitOn(err, "goose up")
	case "down":
		applied, err := m.Down(ctx)
		report(applied)
		exitOn(err, "goose down")
	case "to":
		v, err := strconv.ParseInt(*target, 10, 64)
		exitOn(err, "parse -version")
		applied, err := m.To(ctx, v)
		report(applied)
		exitOn(err, "goose to")
	case "version":
		v, err := m.Version(ctx)
		exitOn(err, "goose version")
		fmt.Println(v)
	case "status":
		statuses, err := m.Status(ctx)
		exitOn(err, "goose status")
		for _, st := range statuses {
			state := "pending"
			if st.Applied {
				state = "applied"
			}
			fmt.Printf("%-8s %d %s\n", state, st.Version, st.Path)
		}
	default:
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", *cmd)
		os.Exit(1)
	}
}

func report(applied []migrate.Applied) {
	for _, a := range applied {
		fmt.Printf("%-4s %d %s\n", a.Direction, a.Version, a.Path)
	}
}

func exitOn(err error, what string) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
