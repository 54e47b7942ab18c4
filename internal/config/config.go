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

// Package config resolves the launch plan: which child processes to
// run, in what order, with what environment, and which log files the
// aggregator follows. The supervisor consumes the result as opaque
// launch specs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stackpilot/stackpilot/internal/aggregator"
	"github.com/stackpilot/stackpilot/internal/supervisor"
)

// DefaultConfigFile is looked for in the working directory when no
// --config flag is given.
const DefaultConfigFile = "stackpilot.yaml"

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Duration supports the human "5s"/"500ms" syntax in yaml.
type Duration time.Duration

// UnmarshalYAML implements custom YAML unmarshaling via
// time.ParseDuration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts to a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the complete stackpilot configuration.
type Config struct {
	// Port is the application server's listen port. Exported to every
	// task as PORT unless the task sets its own.
	Port int `yaml:"port"`

	// GracePeriod bounds how long shutdown waits for children to
	// confirm termination. Zero means the supervisor default.
	GracePeriod Duration `yaml:"grace_period,omitempty"`

	// Logs configures the log-aggregator task.
	Logs LogsConfig `yaml:"logs"`

	// Tasks are the child processes, in startup order. The aggregator
	// always starts before the first of them.
	Tasks []TaskConfig `yaml:"tasks"`

	// Log configures the supervisor's own diagnostics.
	Log LogConfig `yaml:"log,omitempty"`
}

// LogsConfig configures the log-aggregator task.
type LogsConfig struct {
	// Name overrides the aggregator's task name.
	Name string `yaml:"name,omitempty"`

	// Paths are the log files to follow. Missing files are created.
	Paths []string `yaml:"paths"`
}

// TaskConfig describes one supervised child process.
type TaskConfig struct {
	// Name uniquely identifies the task.
	Name string `yaml:"name"`

	// Command is the argv to execute.
	Command []string `yaml:"command"`

	// Env holds extra environment variables for the child.
	Env map[string]string `yaml:"env,omitempty"`

	// Settle pauses startup after this task before launching the next,
	// for tasks later ones depend on being ready.
	Settle Duration `yaml:"settle,omitempty"`
}

// LogConfig configures the supervisor's own log output.
type LogConfig struct {
	// Level sets the minimum log level (debug, info, warn, error).
	Level string `yaml:"level,omitempty"`

	// Format sets the output format (json, text).
	Format string `yaml:"format,omitempty"`

	// AddSource adds source file and line information to logs.
	AddSource bool `yaml:"add_source,omitempty"`
}

// Load reads, defaults, environment-overrides and validates the
// configuration at path. An empty path means DefaultConfigFile.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadFromEnv applies environment variable overrides.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("STACKPILOT_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Port = port
		}
	}
	if val := os.Getenv("STACKPILOT_GRACE_PERIOD"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.GracePeriod = Duration(duration)
		}
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	if len(c.Tasks) == 0 {
		return fmt.Errorf("%w: no tasks defined", ErrInvalidConfig)
	}

	aggName := c.Logs.Name
	if aggName == "" {
		aggName = aggregator.DefaultName
	}

	seen := map[string]bool{aggName: true}
	for i, task := range c.Tasks {
		if task.Name == "" {
			return fmt.Errorf("%w: task %d has no name", ErrInvalidConfig, i)
		}
		if seen[task.Name] {
			return fmt.Errorf("%w: duplicate task name %q", ErrInvalidConfig, task.Name)
		}
		seen[task.Name] = true

		if len(task.Command) == 0 {
			return fmt.Errorf("%w: task %q has no command", ErrInvalidConfig, task.Name)
		}
		if task.Settle < 0 {
			return fmt.Errorf("%w: task %q has negative settle", ErrInvalidConfig, task.Name)
		}
	}

	for i, p := range c.Logs.Paths {
		if p == "" {
			return fmt.Errorf("%w: logs path %d is empty", ErrInvalidConfig, i)
		}
	}
	return nil
}

// LaunchSpecs converts the task list into supervisor launch specs, in
// startup order. The application port is exported to each child as
// PORT unless the task's own env already sets it.
func (c *Config) LaunchSpecs() []supervisor.LaunchSpec {
	specs := make([]supervisor.LaunchSpec, 0, len(c.Tasks))
	for _, task := range c.Tasks {
		env := make(map[string]string, len(task.Env)+1)
		if c.Port > 0 {
			env["PORT"] = strconv.Itoa(c.Port)
		}
		for k, v := range task.Env {
			env[k] = v
		}
		specs = append(specs, supervisor.LaunchSpec{
			Name:    task.Name,
			Command: task.Command,
			Env:     env,
			Settle:  task.Settle.Std(),
		})
	}
	return specs
}

// AggregatorName returns the aggregator task's configured name.
func (c *Config) AggregatorName() string {
	if c.Logs.Name != "" {
		return c.Logs.Name
	}
	return aggregator.DefaultName
}
