// Copyright 2026 The Stackpilot Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package up implements the command that launches and supervises the
// configured process stack.
package up

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stackpilot/stackpilot/internal/aggregator"
	"github.com/stackpilot/stackpilot/internal/commands/shared"
	"github.com/stackpilot/stackpilot/internal/config"
	"github.com/stackpilot/stackpilot/internal/log"
	"github.com/stackpilot/stackpilot/internal/supervisor"
)

// NewCommand creates the up command
func NewCommand() *cobra.Command {
	var (
		port        int
		gracePeriod time.Duration
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Launch and supervise the process stack",
		Long: `Up starts every configured task in order, with the log aggregator
first, and keeps the stack running as a single unit.

The first task to exit, for any reason, brings the whole stack down:
every remaining task is asked to terminate and stackpilot waits up to
the grace period for confirmation. Nothing is ever restarted.

Exit status:
  0      never returned by a supervised run; shutdown is always a failure
  1      a task exited, or startup failed
  2      the configuration is invalid
  128+N  a terminate signal N was received; the signal is re-raised`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(shared.GetConfigPath())
			if err != nil {
				return shared.NewConfigError("failed to load config", err)
			}

			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("grace-period") {
				cfg.GracePeriod = config.Duration(gracePeriod)
			}
			if err := cfg.Validate(); err != nil {
				return shared.NewConfigError("invalid config", err)
			}

			if dryRun {
				printPlan(cmd, cfg)
				return nil
			}

			return runStack(cfg)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Override the application port exported as PORT")
	cmd.Flags().DurationVar(&gracePeriod, "grace-period", 0, "Override how long shutdown waits for tasks to confirm termination")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the launch plan without starting anything")

	return cmd
}

func runStack(cfg *config.Config) error {
	logger := log.New(logConfig(cfg))

	specs := cfg.LaunchSpecs()
	exits := supervisor.NewExitChannel(len(specs) + 1)

	tasks := make([]supervisor.Task, 0, len(specs)+1)
	tasks = append(tasks, aggregator.New(aggregator.Config{
		Name:  cfg.AggregatorName(),
		Paths: cfg.Logs.Paths,
	}, exits, logger))
	for _, spec := range specs {
		tasks = append(tasks, supervisor.NewProcTask(spec, exits, logger))
	}

	sup := supervisor.New(tasks, exits, supervisor.Options{
		GracePeriod: cfg.GracePeriod.Std(),
		Port:        cfg.Port,
		Logger:      logger,
	})

	st := sup.Run()
	switch {
	case st.Signal != nil:
		os.Exit(supervisor.Reraise(st.Signal))
		return nil
	case st.Err != nil:
		return shared.NewRunError("startup failed", st.Err)
	default:
		return shared.NewRunError(fmt.Sprintf("task %q exited", st.TriggerTask), nil)
	}
}

// logConfig merges environment-derived logging settings with the config
// file's log section. The file wins where both set a value.
func logConfig(cfg *config.Config) *log.Config {
	lc := log.FromEnv()
	if cfg.Log.Level != "" {
		lc.Level = cfg.Log.Level
	}
	if cfg.Log.Format != "" {
		lc.Format = log.Format(cfg.Log.Format)
	}
	if cfg.Log.AddSource {
		lc.AddSource = true
	}
	if shared.GetVerbose() {
		lc.Level = "debug"
	}
	if shared.GetQuiet() {
		lc.Level = "error"
	}
	return lc
}

func printPlan(cmd *cobra.Command, cfg *config.Config) {
	grace := cfg.GracePeriod.Std()
	if grace <= 0 {
		grace = supervisor.DefaultGracePeriod
	}

	cmd.Printf("grace period: %s\n", grace)
	if cfg.Port > 0 {
		cmd.Printf("port: %d\n", cfg.Port)
	}

	cmd.Printf("1. %s (log aggregator", cfg.AggregatorName())
	if len(cfg.Logs.Paths) > 0 {
		cmd.Printf(": %s", strings.Join(cfg.Logs.Paths, ", "))
	}
	cmd.Println(")")

	for i, spec := range cfg.LaunchSpecs() {
		cmd.Printf("%d. %s: %s", i+2, spec.Name, strings.Join(spec.Command, " "))
		if keys := envKeys(spec.Env); len(keys) > 0 {
			cmd.Printf(" [env: %s]", strings.Join(keys, ", "))
		}
		if spec.Settle > 0 {
			cmd.Printf(" (settle %s)", spec.Settle)
		}
		cmd.Println()
	}
}

func envKeys(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
