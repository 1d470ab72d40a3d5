package controller

import (
	"time"

	"syscontrol/pkg/config"
	"syscontrol/pkg/history"
)

// Action scaling direction
type Action string

const (
	ActionScaleUp   Action = "scale_up"
	ActionScaleDown Action = "scale_down"
	ActionHold      Action = "hold"
)

// Observation is the fused input of one evaluation cycle: instantaneous host
// metrics plus recent workload history. Built fresh each cycle, never reused.
// Nil fields mean the signal was unavailable this cycle.
type Observation struct {
	CPUPercent    *float64                  `json:"cpu_percent,omitempty"`
	MemoryPercent *float64                  `json:"memory_percent,omitempty"`
	DiskPercent   *float64                  `json:"disk_percent,omitempty"`
	QueueDepth    *int64                    `json:"queue_depth,omitempty"`
	Activity      *history.ActivitySnapshot `json:"recent_db_activity,omitempty"`
	SampledAt     time.Time                 `json:"sampled_at"`
}

// Recommendation is the policy's verdict for one cycle. TargetReplicas is
// zero (absent in JSON) when orchestration is not enabled for the process.
type Recommendation struct {
	Action         Action  `json:"action"`
	TargetWorkers  int     `json:"target_workers"`
	TargetReplicas int     `json:"target_replicas,omitempty"`
	Pressure       float64 `json:"pressure"`
	Reason         string  `json:"reason"`
}

// AppliedState is the loop's process-resident state between cycles. Owned
// exclusively by the control loop; the policy receives a copy and returns
// the next value.
type AppliedState struct {
	CurrentReplicas  int
	CurrentWorkers   int
	LastEvaluation   time.Time
	LastDirection    Action // last honored non-hold action
	PendingDirection Action // raw signal direction awaiting hysteresis confirmation
	PendingCycles    int    // consecutive cycles the pending direction has persisted
}

// PolicyConfig is the subset of configuration the pure policy evaluates
// against.
type PolicyConfig struct {
	MinReplicas        int
	MaxReplicas        int
	MinWorkers         int
	MaxWorkers         int
	Step               int
	ScaleUpThreshold   float64
	ScaleDownThreshold float64
	HysteresisCycles   int
	QueueSaturation    int
	Orchestration      bool
}

// PolicyConfigFrom derives the policy view of the controller configuration.
func PolicyConfigFrom(c config.ControllerConfig, orchestration bool) PolicyConfig {
	return PolicyConfig{
		MinReplicas:        c.MinReplicas,
		MaxReplicas:        c.MaxReplicas,
		MinWorkers:         c.MinWorkers,
		MaxWorkers:         c.MaxWorkers,
		Step:               c.Step,
		ScaleUpThreshold:   c.ScaleUpThreshold,
		ScaleDownThreshold: c.ScaleDownThreshold,
		HysteresisCycles:   c.HysteresisCycles,
		QueueSaturation:    c.QueueSaturation,
		Orchestration:      orchestration,
	}
}
