package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/agaseke/agaseke-backend/pkg/config"
	"github.com/agaseke/agaseke-backend/pkg/db"
	"github.com/agaseke/agaseke-backend/pkg/logger"
	"github.com/agaseke/agaseke-backend/pkg/migrate"
)

func main() {
	cmd := flag.String("cmd", "up", "up|down|status|version|create|validate")
	dir := flag.String("dir", "", "migrations directory on disk; empty uses the migrations built into the binary")
	name := flag.String("name", "", "migration name for -cmd=create")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	force := flag.Bool("force", false, "allow down and version in prod")
	flag.Parse()

	_ = godotenv.Load()
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	switch *cmd {
	case "create":
		target := *dir
		if target == "" {
			target = migrate.SourceDir
		}
		path, err := migrate.CreateSQLMigration(target, *name)
		exitOn(err, "create migration")
		fmt.Println("created migration:", path)
		return
	case "validate":
		exitOn(migrate.Validate(migrate.Source(*dir)), "validate migrations")
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	exitOn(err, "load config")
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	if (*cmd == "down" || *cmd == "version") && cfg.App.IsProd() && !*force {
		exitOn(fmt.Errorf("refusing -cmd=%s in prod without -force", *cmd), "guard")
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitOn(err, "connect database")
	defer dbClient.Close()
	sqlDB, err := dbClient.DB().DB()
	exitOn(err, "sql database")

	runner, err := migrate.NewRunner(sqlDB, migrate.Source(*dir))
	exitOn(err, "migration runner")

	switch *cmd {
	case "up":
		applied, err := runner.Up(ctx)
		exitOn(err, "up")
		logg.Info(logg.WithField(ctx, "applied", applied), "migrations applied")
	case "down":
		exitOn(runner.Down(ctx), "down")
		logg.Info(ctx, "rolled back one migration")
	case "status":
		statuses, err := runner.Status(ctx)
		exitOn(err, "status")
		for _, st := range statuses {
			applied := "pending"
			if !st.AppliedAt.IsZero() {
				applied = st.AppliedAt.Format(time.RFC3339)
			}
			fmt.Printf("%-14d %-45s %s\n", st.Source.Version, st.Source.Path, applied)
		}
	case "version":
		if *version == "" {
			exitOn(fmt.Errorf("missing -version"), "version")
		}
		exitOn(runner.To(ctx, *version), "version")
		logg.Info(logg.WithField(ctx, "version", *version), "schema moved to version")
	default:
		exitOn(fmt.Errorf("unknown -cmd value %q", *cmd), "usage")
	}
}

func exitOn(err error, step string) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "migrate %s: %v\n", step, err)
	os.Exit(1)
}
