package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/drover/pkg/client"
	"github.com/cuemby/drover/pkg/config"
	"github.com/cuemby/drover/pkg/log"
	"github.com/cuemby/drover/pkg/master"
	"github.com/cuemby/drover/pkg/metrics"
	"github.com/cuemby/drover/pkg/worker"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "drover",
	Short: "Drover - Lightweight compute-dispatch cluster",
	Long: `Drover is a small distributed compute cluster: a master accepts job
submissions, picks the least-loaded worker, runs the job there and returns
the output to the client. One binary runs all three roles.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Drover version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to drover.yaml (defaults apply without one)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(masterCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(submitCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func loadConfig() (config.Config, error) {
	path, _ := rootCmd.PersistentFlags().GetString("config")
	return config.Load(path)
}

var masterCmd = &cobra.Command{
	Use:   "master",
	Short: "Run the cluster coordinator",
	Long: `Run the Drover master: the worker registration, client submission and
utilization endpoints, plus the dispatcher that moves jobs to the current
least-loaded worker.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		metrics.SetVersion(Version)

		m := master.New(master.FromConfig(cfg))
		if err := m.Start(); err != nil {
			return fmt.Errorf("failed to start master: %w", err)
		}

		// Mirror cluster events into the debug log.
		sub := m.Events().Subscribe()
		go func() {
			for event := range sub {
				log.Logger.Debug().
					Str("event", string(event.Type)).
					Str("message", event.Message).
					Msg("Cluster event")
			}
		}()

		waitForSignal()
		m.Stop()
		return nil
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker <master-host>",
	Short: "Run a compute node",
	Long: `Run a Drover worker: register with the master at the given host, report
CPU utilization, and execute dispatched jobs one at a time.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		w := worker.New(worker.FromConfig(cfg, args[0]))
		if err := w.Start(); err != nil {
			return fmt.Errorf("failed to start worker: %w", err)
		}

		fmt.Printf("Worker registered with master\n")
		fmt.Printf("  Worker ID: %d\n", w.ID())
		fmt.Printf("  Exec endpoint: %s\n", w.ExecAddr())

		waitForSignal()
		w.Stop()
		return nil
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit <executable> <input>",
	Short: "Submit a job and wait for its output",
	Long: `Submit a job to the master: upload the executable and input file, wait
for the cluster to run it, and write the returned output file into the
output directory.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		masterHost, _ := cmd.Flags().GetString("master")
		outDir, _ := cmd.Flags().GetString("out-dir")
		addr := net.JoinHostPort(masterHost, strconv.Itoa(cfg.Master.SubmissionPort))

		outPath, err := client.SubmitFiles(addr, args[0], args[1], outDir)
		if err != nil {
			return fmt.Errorf("submission failed: %w", err)
		}

		data, err := os.ReadFile(outPath)
		if err != nil {
			return err
		}

		fmt.Printf("Job output written to %s:\n%s\n", outPath, data)
		return nil
	},
}

func init() {
	submitCmd.Flags().String("master", "127.0.0.1", "Master host (IPv4 literal or hostname)")
	submitCmd.Flags().String("out-dir", ".", "Directory to write the job output into")
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	fmt.Println("\nShutting down...")
}
