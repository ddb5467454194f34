package trace

import (
	"math"
	"testing"
)

func TestSummarize_EmptyTrace_ZeroValues(t *testing.T) {
	// GIVEN an empty trace
	et := NewEpisodeTrace(TraceConfig{Level: TraceLevelTransmissions})

	// WHEN summarized
	summary := Summarize(et)

	// THEN all counts are zero
	if summary.TotalSteps != 0 || summary.Transmissions != 0 {
		t.Errorf("expected zero counts, got %+v", summary)
	}
	if summary.MeanReward != 0 || summary.DeliveryRatio != 0 {
		t.Error("expected zero reward and ratio")
	}
	if len(summary.NodeDistribution) != 0 {
		t.Error("expected empty node distribution")
	}
}

func TestSummarize_NilTrace_ZeroValues(t *testing.T) {
	summary := Summarize(nil)
	if summary == nil {
		t.Fatal("expected non-nil summary")
	}
	if summary.TotalSteps != 0 {
		t.Errorf("expected 0 steps, got %d", summary.TotalSteps)
	}
}

func TestSummarize_PopulatedTrace_CorrectStatistics(t *testing.T) {
	// GIVEN steps over two episodes and four transmissions
	et := NewEpisodeTrace(TraceConfig{Level: TraceLevelTransmissions})
	et.RecordStep(StepRecord{Episode: 1, Node: "node-0", Reward: 1, Delivered: 3})
	et.RecordStep(StepRecord{Episode: 1, Node: "node-1", Reward: 3, Delivered: 1, Failed: 1})
	et.RecordStep(StepRecord{Episode: 2, Node: "node-0", Reward: 2, Delivered: 2, Failed: 1})
	for i, d := range []int64{10, 20, 30, 40} {
		et.RecordTransmission(TransmissionRecord{ID: uint64(i + 1), Start: 0, End: d, Corrupted: i == 3})
	}

	// WHEN summarized
	summary := Summarize(et)

	// THEN aggregates match
	if summary.TotalSteps != 3 || summary.Episodes != 2 {
		t.Errorf("expected 3 steps over 2 episodes, got %d over %d", summary.TotalSteps, summary.Episodes)
	}
	if summary.TotalReward != 6 || summary.MeanReward != 2 {
		t.Errorf("expected total 6 mean 2, got %v %v", summary.TotalReward, summary.MeanReward)
	}
	if math.Abs(summary.StdDevReward-1) > 1e-12 {
		t.Errorf("expected sample stddev 1, got %v", summary.StdDevReward)
	}
	if summary.DeliveryRatio != 0.75 {
		t.Errorf("expected delivery ratio 0.75, got %v", summary.DeliveryRatio)
	}
	if summary.NodeDistribution["node-0"] != 2 || summary.NodeDistribution["node-1"] != 1 {
		t.Errorf("unexpected distribution %v", summary.NodeDistribution)
	}
	if summary.Corrupted != 1 {
		t.Errorf("expected 1 corrupted, got %d", summary.Corrupted)
	}
	if summary.AirtimeP50 != 20 || summary.AirtimeP90 != 40 {
		t.Errorf("expected p50=20 p90=40, got %v %v", summary.AirtimeP50, summary.AirtimeP90)
	}
}

func TestSummarize_SingleStep_ZeroStdDev(t *testing.T) {
	et := NewEpisodeTrace(TraceConfig{Level: TraceLevelSteps})
	et.RecordStep(StepRecord{Episode: 1, Reward: 5})

	summary := Summarize(et)

	if summary.StdDevReward != 0 {
		t.Errorf("expected 0 stddev for one sample, got %v", summary.StdDevReward)
	}
}
