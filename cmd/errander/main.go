package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/errander/config"
	srv "github.com/mohammad-safakhou/errander/internal/server"
)

func main() {
	var cfgPath string

	root := &cobra.Command{Use: "errander"}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file")

	var serveAddr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if serveAddr == "" {
				serveAddr = os.Getenv("ERRANDER_HTTP_ADDR")
			}
			return srv.Run(cfg, serveAddr)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")

	plan := &cobra.Command{
		Use:   "plan [text]",
		Short: "Translate an instruction into steps and print them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			deps, err := srv.Build(cfg)
			if err != nil {
				return err
			}
			p := deps.Planner.Plan(context.Background(), strings.Join(args, " "))
			out, err := json.MarshalIndent(p, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			if p.Empty() {
				fmt.Fprintln(os.Stderr, "could not understand the instruction")
			}
			return nil
		},
	}

	sweep := &cobra.Command{
		Use:   "sweep [monitors|briefings|watches|alerts|all]",
		Short: "Run all due persisted jobs once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			deps, err := srv.Build(cfg)
			if err != nil {
				return err
			}
			ctx := context.Background()

			type sweepFn func(context.Context) (processed, changed int, err error)
			sweeps := map[string]sweepFn{
				"monitors": func(ctx context.Context) (int, int, error) {
					s, err := deps.Sweeper.SweepMonitors(ctx)
					return s.Processed, s.Changed, err
				},
				"briefings": func(ctx context.Context) (int, int, error) {
					s, err := deps.Sweeper.SweepBriefings(ctx)
					return s.Processed, s.Changed, err
				},
				"watches": func(ctx context.Context) (int, int, error) {
					s, err := deps.Sweeper.SweepCompetitorWatches(ctx)
					return s.Processed, s.Changed, err
				},
				"alerts": func(ctx context.Context) (int, int, error) {
					s, err := deps.Sweeper.SweepJobAlerts(ctx)
					return s.Processed, s.Changed, err
				},
			}

			names := []string{args[0]}
			if args[0] == "all" {
				names = []string{"monitors", "briefings", "watches", "alerts"}
			}
			for _, name := range names {
				fn, ok := sweeps[name]
				if !ok {
					return fmt.Errorf("unknown sweep %q", name)
				}
				processed, changed, err := fn(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("%s: processed=%d changed=%d\n", name, processed, changed)
			}
			return nil
		},
	}

	var migDir, direction string
	var steps int
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			dsn, err := cfg.Storage.Postgres.DSN()
			if err != nil {
				return err
			}
			return srv.Migrate(migDir, dsn, direction, steps)
		},
	}
	migrateCmd.Flags().StringVar(&migDir, "dir", "file://migrations", "migrations source")
	migrateCmd.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrateCmd.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")

	root.AddCommand(serve, plan, sweep, migrateCmd)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
