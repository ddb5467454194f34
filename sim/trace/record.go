// Package trace records the decisions and transmissions of an episode for
// offline analysis. It stores plain data and does not import the simulator.
package trace

// StepRecord captures one agent decision and what it produced. Delivered
// and Failed count sender outcomes during the step.
type StepRecord struct {
	Episode   int     `yaml:"episode"`
	Step      int     `yaml:"step"`
	Clock     int64   `yaml:"clock"`
	Action    []int   `yaml:"action"`
	Node      string  `yaml:"node"`
	Reason    string  `yaml:"reason"`
	Reward    float64 `yaml:"reward"`
	Delivered int     `yaml:"delivered"`
	Failed    int     `yaml:"failed"`
	Done      bool    `yaml:"done,omitempty"`
}

// TransmissionRecord captures one finished transmission on the medium.
type TransmissionRecord struct {
	Episode   int     `yaml:"episode"`
	ID        uint64  `yaml:"id"`
	Sender    string  `yaml:"sender"`
	Resource  int     `yaml:"resource"`
	Start     int64   `yaml:"start"`
	End       int64   `yaml:"end"`
	PowerDBm  float64 `yaml:"power_dbm"`
	Overlaps  int     `yaml:"overlaps"`
	Corrupted bool    `yaml:"corrupted"`
}
