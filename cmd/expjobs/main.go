// Command expjobs lists, enqueues and runs the exploration maintenance jobs.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Lllllllleong/explorationjobs/internal/jobs"
	"github.com/Lllllllleong/explorationjobs/internal/mapreduce"
	"github.com/Lllllllleong/explorationjobs/internal/models"
	"github.com/Lllllllleong/explorationjobs/internal/services"
	"github.com/spf13/cobra"
)

var (
	configPath string
	shards     int
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "expjobs",
	Short: "Batch maintenance jobs over stored explorations",
	Long: `expjobs runs map/reduce maintenance jobs over the exploration store:
schema migration, validation audits, math extraction and cleanup.

Jobs are normally enqueued and run by the job workflow. "run" executes a job
in-process against the configured project instead.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		if configPath != "" {
			return os.Setenv("CONFIG_PATH", configPath)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the available jobs",
	Args:  cobra.NoArgs,
	RunE:  listJobs,
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [job-name]",
	Short: "Queue a job and start its workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  enqueueJob,
}

var runCmd = &cobra.Command{
	Use:   "run [job-name]",
	Short: "Run a job in-process and print its outputs",
	Args:  cobra.ExactArgs(1),
	RunE:  runJob,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config (default $CONFIG_PATH or expjobs.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	enqueueCmd.Flags().IntVar(&shards, "shards", 0, "number of map shards (default: job setting)")
	runCmd.Flags().IntVar(&shards, "shards", 0, "number of map shards (default: job setting)")

	rootCmd.AddCommand(listCmd, enqueueCmd, runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func listJobs(cmd *cobra.Command, _ []string) error {
	reg := mapreduce.NewRegistry()
	jobs.Register(reg, jobs.Deps{})

	w := cmd.OutOrStdout()
	for _, name := range reg.Names() {
		j, _ := reg.Lookup(name)
		kinds := make([]string, 0, len(j.EntityKinds()))
		for _, k := range j.EntityKinds() {
			kinds = append(kinds, string(k))
		}
		fmt.Fprintf(w, "%-55s shards=%-3d kinds=%s\n", name, mapreduce.ShardCount(j), strings.Join(kinds, ","))
	}
	return nil
}

func enqueueJob(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	enqueuer, err := services.NewEnqueuer(ctx)
	if err != nil {
		return err
	}
	res, err := enqueuer.Process(ctx, &models.EnqueueJobRequest{JobName: args[0], ShardCount: shards})
	if err != nil {
		return err
	}
	return printJSON(cmd, res)
}

func runJob(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	runner, err := services.NewJobRunner(ctx)
	if err != nil {
		return err
	}
	res, err := runner.RunNow(ctx, args[0], shards)
	if err != nil {
		return err
	}
	return printJSON(cmd, res)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
