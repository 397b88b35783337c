// Package config loads the settings shared by the job functions and the CLI.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Lllllllleong/explorationjobs/internal/gcp"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when CONFIG_PATH is not set.
const DefaultPath = "expjobs.yaml"

// Config holds the GCP resources the jobs use and per-job tuning.
type Config struct {
	ProjectID         string `yaml:"project_id"`
	FirestoreDatabase string `yaml:"firestore_database"`
	ResultsBucket     string `yaml:"results_bucket"`
	AssetsBucket      string `yaml:"assets_bucket"`
	WorkflowID        string `yaml:"workflow_id"`
	WorkflowLocation  string `yaml:"workflow_location"`

	// Shards overrides the shard count of individual jobs, by job name.
	Shards map[string]int `yaml:"shards"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		WorkflowID:       "exploration-job-orchestrator",
		WorkflowLocation: "us-central1",
		Shards:           map[string]int{},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if cfg.Shards == nil {
		cfg.Shards = map[string]int{}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads the file named by CONFIG_PATH, or DefaultPath.
func LoadDefault() (*Config, error) {
	return Load(gcp.GetEnv("CONFIG_PATH", DefaultPath))
}

// applyEnvOverrides applies environment variable overrides.
// JOB_SHARDS takes a comma separated list of name=count pairs.
func (c *Config) applyEnvOverrides() error {
	c.ProjectID = gcp.GetEnv("PROJECT_ID", c.ProjectID)
	c.FirestoreDatabase = gcp.GetEnv("FIRESTORE_DATABASE", c.FirestoreDatabase)
	c.ResultsBucket = gcp.GetEnv("RESULTS_BUCKET", c.ResultsBucket)
	c.AssetsBucket = gcp.GetEnv("ASSETS_BUCKET", c.AssetsBucket)
	c.WorkflowID = gcp.GetEnv("WORKFLOW_ID", c.WorkflowID)
	c.WorkflowLocation = gcp.GetEnv("WORKFLOW_LOCATION", c.WorkflowLocation)

	shards := strings.TrimSpace(os.Getenv("JOB_SHARDS"))
	if shards == "" {
		return nil
	}
	for _, pair := range strings.Split(shards, ",") {
		name, count, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return fmt.Errorf("invalid JOB_SHARDS entry %q: expected name=count", pair)
		}
		n, err := strconv.Atoi(count)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid JOB_SHARDS count for %s: %q", name, count)
		}
		c.Shards[name] = n
	}
	return nil
}

// ShardsFor returns the configured shard count of a job, or 0 to use the
// job's own default.
func (c *Config) ShardsFor(jobName string) int {
	return c.Shards[jobName]
}

// Validate checks the settings every job run needs.
func (c *Config) Validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	if c.ResultsBucket == "" {
		return fmt.Errorf("RESULTS_BUCKET environment variable must be set")
	}
	for name, n := range c.Shards {
		if n <= 0 {
			return fmt.Errorf("shard count for %s must be positive, got %d", name, n)
		}
	}
	return nil
}
