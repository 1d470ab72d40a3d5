package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"syscontrol/pkg/config"
	"syscontrol/pkg/history"
	"syscontrol/pkg/logger"
	"syscontrol/pkg/probe"
	"syscontrol/pkg/store/mysql/model"
)

// OutcomeStatus classifies what the actuator did with a recommendation.
type OutcomeStatus string

const (
	OutcomeApplied OutcomeStatus = "applied"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeFailed  OutcomeStatus = "failed"
)

// Outcome is the result of one actuation attempt.
type Outcome struct {
	Status   OutcomeStatus
	Detail   string
	Replicas int // replica count after an applied change
}

// String renders the outcome as recorded in the decision audit trail.
func (o Outcome) String() string {
	return fmt.Sprintf("%s: %s", o.Status, o.Detail)
}

// Sampler provides instantaneous host metrics.
type Sampler interface {
	Sample(ctx context.Context) probe.HostMetrics
}

// HistorySource provides recent workload activity.
type HistorySource interface {
	RecentActivity(ctx context.Context, window time.Duration) history.ActivitySnapshot
}

// Actuator applies replica recommendations to the orchestration backend.
type Actuator interface {
	// Apply attempts to set the absolute replica target. Never returns an
	// error: failures are expressed as Outcome and retried implicitly by
	// the next cycle.
	Apply(ctx context.Context, rec Recommendation) Outcome

	// CurrentReplicas reads the deployment's current replica count.
	// ok=false when orchestration is unavailable.
	CurrentReplicas(ctx context.Context) (int, bool)

	// Enabled reports whether orchestration was resolved at startup.
	Enabled() bool
}

// Recorder persists decision audit records.
type Recorder interface {
	Record(ctx context.Context, observation, recommendation interface{}, actionsTaken []string) (*model.Decision, error)
}

// Loop drives the periodic evaluation cycle:
// sample + history -> evaluate -> actuate -> record. At most one cycle runs
// at a time; a tick that fires mid-cycle is skipped, not queued.
type Loop struct {
	cfg      config.ControllerConfig
	policy   PolicyConfig
	sampler  Sampler
	reader   HistorySource
	actuator Actuator
	recorder Recorder
	lock     EvaluationLock

	mu       sync.Mutex
	state    AppliedState
	running  bool
	inFlight bool
	stopCh   chan struct{}

	cycleWg sync.WaitGroup
	loopWg  sync.WaitGroup
}

// NewLoop wires a control loop from its collaborators. lock may be nil
// (single-instance mode) and recorder may be nil (no audit persistence).
func NewLoop(
	cfg config.ControllerConfig,
	sampler Sampler,
	reader HistorySource,
	actuator Actuator,
	recorder Recorder,
	lock EvaluationLock,
) *Loop {
	if lock == nil {
		lock = NewRedisEvaluationLock(nil, "")
	}
	return &Loop{
		cfg:      cfg,
		policy:   PolicyConfigFrom(cfg, actuator.Enabled()),
		sampler:  sampler,
		reader:   reader,
		actuator: actuator,
		recorder: recorder,
		lock:     lock,
		state: AppliedState{
			CurrentReplicas: cfg.MinReplicas,
			CurrentWorkers:  cfg.MinWorkers,
		},
	}
}

// Start launches the control loop. The initial replica count is read from
// the actuator when available so the first decision works against reality.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return fmt.Errorf("controller is already running")
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.mu.Unlock()

	if replicas, ok := l.actuator.CurrentReplicas(ctx); ok {
		l.mu.Lock()
		l.state.CurrentReplicas = replicas
		l.mu.Unlock()
	}

	logger.InfoCtx(ctx, "starting controller, interval: %d seconds", l.cfg.Interval)

	l.loopWg.Add(1)
	go l.run(ctx)
	return nil
}

// Stop signals the loop to stop and waits for an in-progress cycle to
// finish, so actuation is never abandoned mid-flight.
func (l *Loop) Stop() error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return fmt.Errorf("controller is not running")
	}
	l.running = false
	close(l.stopCh)
	l.mu.Unlock()

	l.loopWg.Wait()
	l.cycleWg.Wait()

	logger.Info("controller stopped")
	return nil
}

// State returns a copy of the applied state (for status reporting).
func (l *Loop) State() AppliedState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) run(ctx context.Context) {
	defer l.loopWg.Done()

	ticker := time.NewTicker(time.Duration(l.cfg.Interval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !l.beginCycle() {
				logger.WarnCtx(ctx, "previous evaluation cycle still running, skipping this tick")
				continue
			}
			l.cycleWg.Add(1)
			go func() {
				defer l.cycleWg.Done()
				defer l.endCycle()
				l.RunOnce(ctx)
			}()
		}
	}
}

func (l *Loop) beginCycle() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight {
		return false
	}
	l.inFlight = true
	return true
}

func (l *Loop) endCycle() {
	l.mu.Lock()
	l.inFlight = false
	l.mu.Unlock()
}

// RunOnce executes a single evaluation cycle. Every failure inside the
// cycle is contained here: the loop itself never terminates because one
// cycle went wrong.
func (l *Loop) RunOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCtx(ctx, "evaluation cycle panicked: %v", r)
		}
	}()

	acquired, err := l.lock.TryLock(ctx)
	if err != nil {
		logger.WarnCtx(ctx, "failed to acquire evaluation lock: %v", err)
		return
	}
	if !acquired {
		logger.DebugCtx(ctx, "evaluation lock held by another instance, skipping cycle")
		return
	}
	defer func() {
		if err := l.lock.Unlock(ctx); err != nil {
			logger.WarnCtx(ctx, "failed to release evaluation lock: %v", err)
		}
	}()

	obs := l.observe(ctx)

	l.mu.Lock()
	state := l.state
	l.mu.Unlock()

	rec, next := Evaluate(obs, state, l.policy)
	logger.InfoCtx(ctx, "recommendation: action=%s, pressure=%.2f, target_workers=%d, target_replicas=%d, reason=%s",
		rec.Action, rec.Pressure, rec.TargetWorkers, rec.TargetReplicas, rec.Reason)

	outcome := l.actuator.Apply(ctx, rec)
	actions := []string{outcome.String()}
	if rec.TargetWorkers != state.CurrentWorkers {
		actions = append(actions, fmt.Sprintf("worker target recorded: %d (applied externally)", rec.TargetWorkers))
	}

	if l.recorder != nil {
		recordCtx, cancel := context.WithTimeout(ctx, time.Duration(l.cfg.QueryTimeout)*time.Second)
		defer cancel()
		if _, err := l.recorder.Record(recordCtx, obs, rec, actions); err != nil {
			// Observability loss is preferred over availability loss: the
			// cycle result stands, the next cycle runs regardless.
			logger.ErrorCtx(ctx, "failed to persist decision: %v", err)
		}
	}

	next.LastEvaluation = time.Now().UTC()
	next.CurrentWorkers = rec.TargetWorkers
	if outcome.Status == OutcomeApplied {
		next.CurrentReplicas = outcome.Replicas
	} else if replicas, ok := l.actuator.CurrentReplicas(ctx); ok {
		next.CurrentReplicas = replicas
	}

	l.mu.Lock()
	l.state = next
	l.mu.Unlock()
}

// observe samples host metrics and workload history concurrently; both
// complete (or time out internally) before evaluation begins.
func (l *Loop) observe(ctx context.Context) Observation {
	var (
		metrics  probe.HostMetrics
		snapshot history.ActivitySnapshot
		wg       sync.WaitGroup
	)

	window := time.Duration(l.cfg.HistoryWindow) * time.Minute

	wg.Add(2)
	go func() {
		defer wg.Done()
		metrics = l.sampler.Sample(ctx)
	}()
	go func() {
		defer wg.Done()
		snapshot = l.reader.RecentActivity(ctx, window)
	}()
	wg.Wait()

	obs := Observation{
		CPUPercent:    metrics.CPUPercent,
		MemoryPercent: metrics.MemoryPercent,
		DiskPercent:   metrics.DiskPercent,
		QueueDepth:    snapshot.QueueDepth,
		SampledAt:     metrics.SampledAt,
	}
	if obs.SampledAt.IsZero() {
		obs.SampledAt = time.Now().UTC()
	}
	if !snapshot.Degraded {
		activity := snapshot
		obs.Activity = &activity
	}
	return obs
}
