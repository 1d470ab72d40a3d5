package actuator

import (
	"context"

	"syscontrol/pkg/config"
	"syscontrol/pkg/controller"
	"syscontrol/pkg/logger"
)

// New resolves the actuation adapter once at startup. When orchestration is
// disabled or the API cannot be reached, the unavailable variant is returned
// and actuation stays disabled for the process lifetime, with no per-cycle
// reconnect attempts.
func New(cfg *config.Config) controller.Actuator {
	if !cfg.K8s.Enabled {
		logger.Info("orchestration not configured, replica actuation disabled")
		return Unavailable()
	}

	adapter, err := NewKubeAdapter(cfg)
	if err != nil {
		logger.Warnf("orchestration unavailable, replica actuation disabled for this process: %v", err)
		return Unavailable()
	}
	return adapter
}

// unavailableAdapter is the permanently-disabled variant. Skipping actuation
// is a normal, expected path, not a failure.
type unavailableAdapter struct{}

// Unavailable returns the adapter used when no orchestration backend exists.
func Unavailable() controller.Actuator {
	return unavailableAdapter{}
}

func (unavailableAdapter) Apply(ctx context.Context, rec controller.Recommendation) controller.Outcome {
	return controller.Outcome{
		Status: controller.OutcomeSkipped,
		Detail: "orchestration unavailable",
	}
}

func (unavailableAdapter) CurrentReplicas(ctx context.Context) (int, bool) {
	return 0, false
}

func (unavailableAdapter) Enabled() bool { return false }
