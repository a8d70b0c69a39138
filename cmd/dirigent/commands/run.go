package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tosin2013/dirigent/pkg/cache"
	"github.com/tosin2013/dirigent/pkg/directive"
	"github.com/tosin2013/dirigent/pkg/engine"
	"github.com/tosin2013/dirigent/pkg/policy"
	"github.com/tosin2013/dirigent/pkg/registry"
	"github.com/tosin2013/dirigent/pkg/telemetry"
)

func newRunCommand() *cobra.Command {
	var (
		workDir      string
		cacheDB      string
		timeout      time.Duration
		fsOps        int
		memoryBytes  int64
		allowNetwork bool
		noPolicies   bool
	)

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Execute a directive file in the sandbox",
		Long: `Execute a directive file. The file is decoded (JSON or YAML),
validated, gated through admission policies, and run with the built-in
executors under the configured resource limits. The execution result is
printed as JSON on stdout.

By default results are cached in memory for the life of the process;
--cache-db persists them in a SQLite database across runs.`,
		Example: `  # Run a directive with default limits
  dirigent run plan.yaml

  # Allow network operations and persist the cache
  dirigent run --allow-network --cache-db ~/.dirigent/cache.db plan.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger, err := newCLILogger()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var resp *directive.Response
			if strings.HasSuffix(args[0], ".json") {
				resp, err = directive.DecodeJSON(data)
			} else {
				resp, err = directive.DecodeYAML(data)
			}
			if err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}

			var store cache.Cache
			if cacheDB != "" {
				sqlite, err := cache.OpenSQLiteCache(ctx, cache.SQLiteConfig{Path: cacheDB})
				if err != nil {
					return fmt.Errorf("open cache database: %w", err)
				}
				store = sqlite
			} else {
				store = cache.NewMemoryCache(time.Minute)
			}
			defer store.Close()

			reg := registry.New()
			for _, r := range registry.EchoExecutors() {
				reg.MustRegister(r)
			}
			for _, r := range registry.CacheExecutors(store) {
				reg.MustRegister(r)
			}

			metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: true, Namespace: "dirigent"})
			if err != nil {
				return err
			}

			cfg := engine.Config{
				Registry: reg,
				Cache:    store,
				Logger:   logger,
				Metrics:  metrics,
			}
			if !noPolicies {
				gate, err := policy.NewGate(logger)
				if err != nil {
					return err
				}
				cfg.Policies = gate
			}
			eng, err := engine.New(cfg)
			if err != nil {
				return err
			}

			limits := directive.DefaultLimits()
			if timeout > 0 {
				limits.Timeout = timeout
			}
			if fsOps > 0 {
				limits.FSOperations = fsOps
			}
			if memoryBytes > 0 {
				limits.MemoryBytes = memoryBytes
			}
			limits.NetworkAllowed = allowNetwork

			if workDir == "" {
				workDir, _ = os.Getwd()
			}
			sandbox := directive.NewSandboxContext(workDir, environMap(), limits)

			result := eng.Run(ctx, resp, sandbox)

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(result); err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("directive failed: %s", result.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&workDir, "workdir", "", "sandbox working directory (default: current directory)")
	cmd.Flags().StringVar(&cacheDB, "cache-db", "", "SQLite cache database path (default: in-memory cache)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "aggregate execution timeout (default 30s)")
	cmd.Flags().IntVar(&fsOps, "fs-ops", 0, "filesystem operation budget (default 100)")
	cmd.Flags().Int64Var(&memoryBytes, "memory", 0, "heap ceiling in bytes (default unlimited)")
	cmd.Flags().BoolVar(&allowNetwork, "allow-network", false, "permit network-trait operations")
	cmd.Flags().BoolVar(&noPolicies, "no-policies", false, "skip the admission policy gate")

	return cmd
}

func environMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}
