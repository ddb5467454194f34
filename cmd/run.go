package cmd

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/wipesim/wipesim/sim/env"
	"github.com/wipesim/wipesim/sim/telemetry"
	"github.com/wipesim/wipesim/sim/trace"
)

type runOptions struct {
	Episodes  int
	Agent     string
	Action    []float64
	StepLimit int
	Collector *telemetry.Collector
	Trace     *trace.EpisodeTrace
}

// EpisodeSummary is the per-episode part of the run report.
type EpisodeSummary struct {
	Episode     int     `json:"episode"`
	EpisodeID   string  `json:"episode_id"`
	Steps       int     `json:"steps"`
	TotalReward float64 `json:"total_reward"`
	Delivered   int     `json:"delivered"`
	Failed      int     `json:"failed"`
	Dropped     int     `json:"dropped"`
	SimTimeUs   int64   `json:"sim_time_us"`
	Truncated   bool    `json:"truncated,omitempty"`
}

// RunReport is printed by `wipesim run`.
type RunReport struct {
	Agent    string              `json:"agent"`
	Seed     int64               `json:"seed"`
	Episodes []EpisodeSummary    `json:"episodes"`
	Trace    *trace.TraceSummary `json:"trace,omitempty"`
}

// runEpisodes plays opts.Episodes episodes of cfg with a built-in agent.
func runEpisodes(ctx context.Context, cfg env.Config, opts runOptions) (*RunReport, error) {
	if opts.Episodes <= 0 {
		return nil, fmt.Errorf("episodes must be positive, got %d", opts.Episodes)
	}
	var envOpts []env.Option
	if opts.Collector != nil {
		envOpts = append(envOpts, env.WithCollector(opts.Collector))
	}
	if opts.Trace != nil {
		envOpts = append(envOpts, env.WithTrace(opts.Trace))
	}
	e, err := env.New(cfg, envOpts...)
	if err != nil {
		return nil, err
	}
	agent, err := newAgent(opts.Agent, e.ActionSpace(), cfg.NumNodes, opts.Action, cfg.RandomSeed)
	if err != nil {
		return nil, err
	}

	report := &RunReport{Agent: agent.Name(), Seed: cfg.RandomSeed}
	for ep := 0; ep < opts.Episodes; ep++ {
		summary, err := playEpisode(ctx, e, agent, opts.StepLimit)
		if err != nil {
			return nil, fmt.Errorf("episode %d: %w", ep+1, err)
		}
		logrus.Infof("Episode %d (%s): %d steps, reward %.3f", summary.Episode, summary.EpisodeID, summary.Steps, summary.TotalReward)
		report.Episodes = append(report.Episodes, summary)
	}
	if opts.Trace != nil {
		report.Trace = trace.Summarize(opts.Trace)
	}
	return report, nil
}

func playEpisode(ctx context.Context, e *env.Env, agent Agent, limit int) (EpisodeSummary, error) {
	obs, err := e.ResetContext(ctx)
	if err != nil {
		return EpisodeSummary{}, err
	}
	agent.Reset()
	summary := EpisodeSummary{Episode: e.Episode(), EpisodeID: e.EpisodeID().String()}
	for {
		res, err := e.StepContext(ctx, agent.Act(obs))
		if err != nil {
			return summary, err
		}
		summary.Steps++
		summary.TotalReward += res.Reward
		summary.Delivered += res.Info["delivered"].(int)
		summary.Failed += res.Info["failed"].(int)
		summary.Dropped += res.Info["dropped"].(int)
		obs = res.Observation
		if res.Done {
			break
		}
		if limit > 0 && summary.Steps >= limit {
			logrus.Warnf("Episode %d stopped at the step limit (%d) before it was done", summary.Episode, limit)
			summary.Truncated = true
			break
		}
	}
	summary.SimTimeUs = int64(e.Now())
	return summary, nil
}
