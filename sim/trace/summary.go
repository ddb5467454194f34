package trace

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// TraceSummary aggregates statistics from an EpisodeTrace.
type TraceSummary struct {
	TotalSteps   int     `yaml:"total_steps" json:"total_steps"`
	Episodes     int     `yaml:"episodes" json:"episodes"`
	TotalReward  float64 `yaml:"total_reward" json:"total_reward"`
	MeanReward   float64 `yaml:"mean_reward" json:"mean_reward"`
	StdDevReward float64 `yaml:"stddev_reward" json:"stddev_reward"`
	Delivered    int     `yaml:"delivered" json:"delivered"`
	Failed       int     `yaml:"failed" json:"failed"`
	// DeliveryRatio is delivered / (delivered + failed), 0 with no outcomes.
	DeliveryRatio float64 `yaml:"delivery_ratio" json:"delivery_ratio"`
	// NodeDistribution maps a node name to the number of steps it was chosen.
	NodeDistribution map[string]int `yaml:"node_distribution" json:"node_distribution"`

	Transmissions int     `yaml:"transmissions" json:"transmissions"`
	Corrupted     int     `yaml:"corrupted" json:"corrupted"`
	AirtimeP50    float64 `yaml:"airtime_p50" json:"airtime_p50"`
	AirtimeP90    float64 `yaml:"airtime_p90" json:"airtime_p90"`
}

// Summarize computes aggregate statistics from an EpisodeTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(et *EpisodeTrace) *TraceSummary {
	summary := &TraceSummary{
		NodeDistribution: make(map[string]int),
	}
	if et == nil {
		return summary
	}

	summary.TotalSteps = len(et.Steps)
	if len(et.Steps) > 0 {
		rewards := make([]float64, len(et.Steps))
		episodes := make(map[int]bool)
		for i, s := range et.Steps {
			rewards[i] = s.Reward
			summary.TotalReward += s.Reward
			summary.Delivered += s.Delivered
			summary.Failed += s.Failed
			summary.NodeDistribution[s.Node]++
			episodes[s.Episode] = true
		}
		summary.Episodes = len(episodes)
		summary.MeanReward, summary.StdDevReward = stat.MeanStdDev(rewards, nil)
		if len(rewards) == 1 {
			summary.StdDevReward = 0
		}
	}
	if outcomes := summary.Delivered + summary.Failed; outcomes > 0 {
		summary.DeliveryRatio = float64(summary.Delivered) / float64(outcomes)
	}

	summary.Transmissions = len(et.Transmissions)
	if len(et.Transmissions) > 0 {
		airtime := make([]float64, len(et.Transmissions))
		for i, tx := range et.Transmissions {
			airtime[i] = float64(tx.End - tx.Start)
			if tx.Corrupted {
				summary.Corrupted++
			}
		}
		sort.Float64s(airtime)
		summary.AirtimeP50 = stat.Quantile(0.5, stat.Empirical, airtime, nil)
		summary.AirtimeP90 = stat.Quantile(0.9, stat.Empirical, airtime, nil)
	}
	return summary
}
