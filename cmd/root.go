package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wipesim/wipesim/sim/env"
	"github.com/wipesim/wipesim/sim/telemetry"
	"github.com/wipesim/wipesim/sim/trace"
)

var (
	configPath  string    // YAML environment config
	presetName  string    // Built-in scenario used when no config is given
	seed        int64     // Overrides random_seed when set
	episodes    int       // Number of episodes to run
	agentName   string    // Built-in agent choosing actions
	fixedAction []float64 // Action of the constant agent
	stepLimit   int       // Safety cap on steps per episode
	logLevel    string    // Log verbosity level
	metricsAddr string    // Listen address of the Prometheus endpoint
	traceSpans  string    // OpenTelemetry span exporter
	traceOut    string    // File receiving the YAML episode trace
	traceLevel  string    // Detail of the episode trace
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "wipesim",
	Short: "Discrete-event wireless network simulator with an RL environment surface",
}

// runCmd drives episodes with a built-in agent and prints a JSON summary
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run episodes of the environment with a built-in agent",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		cfg, err := resolveConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		shutdown, err := telemetry.InitTracing(cmd.Context(), telemetry.TracingConfig{
			Enabled:  traceSpans != "" && traceSpans != "none",
			Exporter: traceSpans,
			Output:   os.Stderr,
		})
		if err != nil {
			logrus.Fatalf("tracing: %v", err)
		}
		defer telemetry.ShutdownWithTimeout(context.Background(), shutdown)

		opts := runOptions{
			Episodes:  episodes,
			Agent:     agentName,
			Action:    fixedAction,
			StepLimit: stepLimit,
		}
		if traceOut != "" {
			if !trace.IsValidTraceLevel(traceLevel) {
				logrus.Fatalf("Invalid trace level: %s", traceLevel)
			}
			opts.Trace = trace.NewEpisodeTrace(trace.TraceConfig{Level: trace.TraceLevel(traceLevel)})
		}
		if metricsAddr != "" {
			reg := prometheus.NewRegistry()
			collector, err := telemetry.NewCollector(reg)
			if err != nil {
				logrus.Fatalf("metrics: %v", err)
			}
			opts.Collector = collector
			stop := serveMetrics(metricsAddr, collector)
			defer stop()
		}

		logrus.Infof("Starting %d episode(s): %d nodes, %s MAC, agent %s, seed %d",
			episodes, cfg.NumNodes, cfg.MAC, agentName, cfg.RandomSeed)
		report, err := runEpisodes(cmd.Context(), cfg, opts)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
			logrus.Fatalf("writing report: %v", err)
		}
		if opts.Trace != nil {
			if err := opts.Trace.SaveYAML(traceOut); err != nil {
				logrus.Fatalf("%v", err)
			}
			logrus.Infof("Trace written to %s", traceOut)
		}
		logrus.Info("Simulation complete.")
	},
}

// validateCmd checks a config without running it
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate an environment config",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		cfg, err := resolveConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if _, err := env.New(cfg); err != nil {
			logrus.Fatalf("%v", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "config OK: %d nodes, %s MAC, reward %s, termination %s\n",
			cfg.NumNodes, cfg.MAC, rewardName(cfg), cfg.Termination.Policy)
	},
}

// spacesCmd prints the declared action and observation spaces
var spacesCmd = &cobra.Command{
	Use:   "spaces",
	Short: "Print the action and observation spaces of a config",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		cfg, err := resolveConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		e, err := env.New(cfg)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if err := writeJSON(cmd.OutOrStdout(), describeSpaces(e)); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

func rewardName(cfg env.Config) string {
	if cfg.Reward != nil {
		return cfg.Reward.Name()
	}
	return cfg.RewardFn
}

// serveMetrics exposes the collector on addr until the returned func is called.
func serveMetrics(addr string, c *telemetry.Collector) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("metrics server: %v", err)
		}
	}()
	logrus.Infof("Serving metrics on %s/metrics", addr)
	return func() {
		if err := srv.Shutdown(context.Background()); err != nil {
			logrus.Warnf("metrics server shutdown: %v", err)
		}
	}
}

// SpacesReport describes the declared spaces of an environment.
type SpacesReport struct {
	Action           string `json:"action"`
	ActionShape      []int  `json:"action_shape"`
	Observation      string `json:"observation"`
	ObservationShape []int  `json:"observation_shape"`
}

func describeSpaces(e *env.Env) SpacesReport {
	return SpacesReport{
		Action:           e.ActionSpace().String(),
		ActionShape:      e.ActionSpace().Shape(),
		Observation:      e.ObservationSpace().String(),
		ObservationShape: e.ObservationSpace().Shape(),
	}
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func addConfigFlags(c *cobra.Command) {
	c.Flags().StringVar(&configPath, "config", "", "Path to a YAML environment config")
	c.Flags().StringVar(&presetName, "preset", "", "Built-in scenario (counter-traffic, aloha-contention, sinr-capture)")
	c.Flags().Int64Var(&seed, "seed", 42, "Seed overriding random_seed")
	c.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
}

// init sets up CLI flags and subcommands
func init() {
	for _, c := range []*cobra.Command{runCmd, validateCmd, spacesCmd} {
		addConfigFlags(c)
	}

	runCmd.Flags().IntVar(&episodes, "episodes", 1, "Number of episodes")
	runCmd.Flags().StringVar(&agentName, "agent", "round-robin", "Agent (constant, round-robin, random, longest-queue)")
	runCmd.Flags().Float64SliceVar(&fixedAction, "action", nil, "Comma-separated action of the constant agent")
	runCmd.Flags().IntVar(&stepLimit, "step-limit", 100000, "Maximum steps per episode")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	runCmd.Flags().StringVar(&traceSpans, "trace-spans", "none", "OpenTelemetry span exporter (none, stdout)")
	runCmd.Flags().StringVar(&traceOut, "trace-out", "", "Write a YAML episode trace to this file")
	runCmd.Flags().StringVar(&traceLevel, "trace-level", string(trace.TraceLevelSteps), "Episode trace detail (steps, transmissions)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(spacesCmd)
}
