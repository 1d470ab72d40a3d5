package controller

import "fmt"

// Pressure weights. Renormalized over the signals actually present, so a
// missing queue backend never drags the score toward zero.
const (
	weightCPU    = 0.4
	weightMemory = 0.3
	weightQueue  = 0.3
)

// Evaluate maps an observation and the current applied state to a bounded
// scaling recommendation plus the next applied state. Pure and
// deterministic: no I/O, no clock reads, no mutation of its inputs.
func Evaluate(obs Observation, st AppliedState, cfg PolicyConfig) (Recommendation, AppliedState) {
	next := st

	pressure, ok := pressureScore(obs, cfg)
	if !ok {
		next.PendingDirection = ""
		next.PendingCycles = 0
		return holdRecommendation(st, cfg, 0, "insufficient data: no cpu, memory or queue signal available"), next
	}

	signal := signalDirection(pressure, cfg)
	switch {
	case signal == ActionHold:
		next.PendingDirection = ""
		next.PendingCycles = 0
	case signal == st.PendingDirection:
		next.PendingCycles = st.PendingCycles + 1
	default:
		next.PendingDirection = signal
		next.PendingCycles = 1
	}

	if signal == ActionHold {
		reason := fmt.Sprintf("pressure %.2f within thresholds [%.2f, %.2f]",
			pressure, cfg.ScaleDownThreshold, cfg.ScaleUpThreshold)
		return holdRecommendation(st, cfg, pressure, reason), next
	}

	// A direction reversal must persist before it is honored, to prevent
	// flapping. Repeats of the last honored direction pass through.
	if reversal := st.LastDirection != "" && st.LastDirection != signal; reversal && next.PendingCycles < cfg.HysteresisCycles {
		reason := fmt.Sprintf("hysteresis: suppressed %s after %s (signal persisted %d/%d cycles), pressure %.2f",
			signal, st.LastDirection, next.PendingCycles, cfg.HysteresisCycles, pressure)
		return holdRecommendation(st, cfg, pressure, reason), next
	}

	current, minBound, maxBound := appliedBounds(st, cfg)

	switch signal {
	case ActionScaleUp:
		if current >= maxBound {
			reason := fmt.Sprintf("pressure %.2f above threshold %.2f but already at max (%d)",
				pressure, cfg.ScaleUpThreshold, maxBound)
			return holdRecommendation(st, cfg, pressure, reason), next
		}
		target := clampInt(current+cfg.Step, minBound, maxBound)
		reason := fmt.Sprintf("pressure %.2f above threshold %.2f, scaling %d -> %d",
			pressure, cfg.ScaleUpThreshold, current, target)
		next.LastDirection = ActionScaleUp
		return buildRecommendation(ActionScaleUp, target, st, cfg, pressure, reason), next

	default: // ActionScaleDown
		if current <= minBound {
			reason := fmt.Sprintf("pressure %.2f below threshold %.2f but already at min (%d)",
				pressure, cfg.ScaleDownThreshold, minBound)
			return holdRecommendation(st, cfg, pressure, reason), next
		}
		target := clampInt(current-cfg.Step, minBound, maxBound)
		reason := fmt.Sprintf("pressure %.2f below threshold %.2f, scaling %d -> %d",
			pressure, cfg.ScaleDownThreshold, current, target)
		next.LastDirection = ActionScaleDown
		return buildRecommendation(ActionScaleDown, target, st, cfg, pressure, reason), next
	}
}

// pressureScore computes the normalized weighted pressure over the signals
// present in the observation. ok=false when no usable signal exists.
func pressureScore(obs Observation, cfg PolicyConfig) (float64, bool) {
	sum := 0.0
	weightSum := 0.0

	if obs.CPUPercent != nil {
		sum += weightCPU * clampUnit(*obs.CPUPercent/100)
		weightSum += weightCPU
	}
	if obs.MemoryPercent != nil {
		sum += weightMemory * clampUnit(*obs.MemoryPercent/100)
		weightSum += weightMemory
	}
	if obs.QueueDepth != nil && cfg.QueueSaturation > 0 {
		sum += weightQueue * clampUnit(float64(*obs.QueueDepth)/float64(cfg.QueueSaturation))
		weightSum += weightQueue
	}

	if weightSum == 0 {
		return 0, false
	}
	return sum / weightSum, true
}

func signalDirection(pressure float64, cfg PolicyConfig) Action {
	switch {
	case pressure > cfg.ScaleUpThreshold:
		return ActionScaleUp
	case pressure < cfg.ScaleDownThreshold:
		return ActionScaleDown
	default:
		return ActionHold
	}
}

// appliedBounds selects the count and bounds the directional rules gate on:
// replicas when orchestration is enabled, otherwise workers.
func appliedBounds(st AppliedState, cfg PolicyConfig) (current, minBound, maxBound int) {
	if cfg.Orchestration {
		return clampInt(st.CurrentReplicas, cfg.MinReplicas, cfg.MaxReplicas), cfg.MinReplicas, cfg.MaxReplicas
	}
	return clampInt(st.CurrentWorkers, cfg.MinWorkers, cfg.MaxWorkers), cfg.MinWorkers, cfg.MaxWorkers
}

func holdRecommendation(st AppliedState, cfg PolicyConfig, pressure float64, reason string) Recommendation {
	current, minBound, maxBound := appliedBounds(st, cfg)
	return buildRecommendation(ActionHold, clampInt(current, minBound, maxBound), st, cfg, pressure, reason)
}

// buildRecommendation derives both targets from the decided action. Targets
// are clamped to their bounds unconditionally: the bound invariant holds
// even if the arithmetic above ever regresses.
func buildRecommendation(action Action, target int, st AppliedState, cfg PolicyConfig, pressure float64, reason string) Recommendation {
	rec := Recommendation{
		Action:   action,
		Pressure: pressure,
		Reason:   reason,
	}

	workers := clampInt(st.CurrentWorkers, cfg.MinWorkers, cfg.MaxWorkers)
	switch action {
	case ActionScaleUp:
		workers = clampInt(workers+cfg.Step, cfg.MinWorkers, cfg.MaxWorkers)
	case ActionScaleDown:
		workers = clampInt(workers-cfg.Step, cfg.MinWorkers, cfg.MaxWorkers)
	}
	if workers < 1 {
		workers = 1
	}
	rec.TargetWorkers = workers

	if cfg.Orchestration {
		rec.TargetReplicas = clampInt(target, cfg.MinReplicas, cfg.MaxReplicas)
	}
	return rec
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
