package controller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syscontrol/pkg/config"
	"syscontrol/pkg/history"
	"syscontrol/pkg/probe"
	"syscontrol/pkg/store/mysql/model"
)

type stubSampler struct {
	metrics probe.HostMetrics
}

func (s *stubSampler) Sample(ctx context.Context) probe.HostMetrics {
	return s.metrics
}

type stubHistory struct {
	snapshot history.ActivitySnapshot
}

func (s *stubHistory) RecentActivity(ctx context.Context, window time.Duration) history.ActivitySnapshot {
	return s.snapshot
}

type stubActuator struct {
	enabled  bool
	outcome  Outcome
	replicas int
	known    bool
	applied  []Recommendation
}

func (s *stubActuator) Apply(ctx context.Context, rec Recommendation) Outcome {
	s.applied = append(s.applied, rec)
	return s.outcome
}

func (s *stubActuator) CurrentReplicas(ctx context.Context) (int, bool) {
	return s.replicas, s.known
}

func (s *stubActuator) Enabled() bool { return s.enabled }

type recordedCall struct {
	observation    interface{}
	recommendation interface{}
	actions        []string
}

type stubRecorder struct {
	calls []recordedCall
}

func (s *stubRecorder) Record(ctx context.Context, observation, recommendation interface{}, actionsTaken []string) (*model.Decision, error) {
	s.calls = append(s.calls, recordedCall{observation, recommendation, actionsTaken})
	return &model.Decision{}, nil
}

func testControllerConfig() config.ControllerConfig {
	return config.ControllerConfig{
		Interval:           60,
		MinReplicas:        1,
		MaxReplicas:        5,
		MinWorkers:         1,
		MaxWorkers:         5,
		Step:               1,
		ScaleUpThreshold:   0.8,
		ScaleDownThreshold: 0.3,
		HysteresisCycles:   3,
		QueueSaturation:    50,
		HistoryWindow:      60,
		ProbeTimeout:       1,
		QueryTimeout:       5,
		ActuateTimeout:     10,
	}
}

func highPressureMetrics() probe.HostMetrics {
	cpu, mem := 95.0, 90.0
	return probe.HostMetrics{
		CPUPercent:    &cpu,
		MemoryPercent: &mem,
		SampledAt:     time.Now().UTC(),
	}
}

func TestRunOnce_RecordsSkipWhenOrchestrationUnavailable(t *testing.T) {
	sampler := &stubSampler{metrics: highPressureMetrics()}
	reader := &stubHistory{snapshot: history.ActivitySnapshot{Degraded: true}}
	act := &stubActuator{
		enabled: false,
		outcome: Outcome{Status: OutcomeSkipped, Detail: "orchestration unavailable"},
	}
	recorder := &stubRecorder{}

	loop := NewLoop(testControllerConfig(), sampler, reader, act, recorder, nil)
	loop.RunOnce(context.Background())

	require.Len(t, recorder.calls, 1)
	assert.Contains(t, recorder.calls[0].actions, "skipped: orchestration unavailable")

	rec, ok := recorder.calls[0].recommendation.(Recommendation)
	require.True(t, ok)
	assert.Equal(t, ActionScaleUp, rec.Action)
	assert.Equal(t, 0, rec.TargetReplicas, "no replica target without orchestration")
	assert.Equal(t, 2, rec.TargetWorkers)
}

func TestRunOnce_AppliedOutcomeUpdatesReplicas(t *testing.T) {
	sampler := &stubSampler{metrics: highPressureMetrics()}
	reader := &stubHistory{snapshot: history.ActivitySnapshot{Degraded: true}}
	act := &stubActuator{
		enabled:  true,
		outcome:  Outcome{Status: OutcomeApplied, Detail: "scaled", Replicas: 2},
		replicas: 1,
		known:    true,
	}
	recorder := &stubRecorder{}

	loop := NewLoop(testControllerConfig(), sampler, reader, act, recorder, nil)
	loop.RunOnce(context.Background())

	require.Len(t, act.applied, 1)
	assert.Equal(t, ActionScaleUp, act.applied[0].Action)
	assert.Equal(t, 2, act.applied[0].TargetReplicas)
	assert.Equal(t, 2, loop.State().CurrentReplicas)
	assert.Equal(t, 2, loop.State().CurrentWorkers)
}

func TestRunOnce_DegradedHistoryStillEvaluates(t *testing.T) {
	sampler := &stubSampler{metrics: highPressureMetrics()}
	reader := &stubHistory{snapshot: history.ActivitySnapshot{Degraded: true}}
	act := &stubActuator{enabled: true, outcome: Outcome{Status: OutcomeApplied, Replicas: 2}, replicas: 1, known: true}
	recorder := &stubRecorder{}

	loop := NewLoop(testControllerConfig(), sampler, reader, act, recorder, nil)
	loop.RunOnce(context.Background())

	require.Len(t, recorder.calls, 1)
	obs, ok := recorder.calls[0].observation.(Observation)
	require.True(t, ok)
	assert.Nil(t, obs.QueueDepth)
	assert.Nil(t, obs.Activity, "degraded history must not appear in the observation")

	rec := recorder.calls[0].recommendation.(Recommendation)
	assert.Equal(t, ActionScaleUp, rec.Action, "cpu and memory alone are enough to evaluate")
}

func TestRunOnce_NilRecorderDoesNotPanic(t *testing.T) {
	sampler := &stubSampler{metrics: highPressureMetrics()}
	reader := &stubHistory{snapshot: history.ActivitySnapshot{Degraded: true}}
	act := &stubActuator{enabled: false, outcome: Outcome{Status: OutcomeSkipped, Detail: "orchestration unavailable"}}

	loop := NewLoop(testControllerConfig(), sampler, reader, act, nil, nil)
	assert.NotPanics(t, func() {
		loop.RunOnce(context.Background())
	})
}

func TestRunOnce_QueueDepthFlowsIntoObservation(t *testing.T) {
	depth := int64(50)
	cpu, mem := 95.0, 90.0
	sampler := &stubSampler{metrics: probe.HostMetrics{CPUPercent: &cpu, MemoryPercent: &mem, SampledAt: time.Now().UTC()}}
	reader := &stubHistory{snapshot: history.ActivitySnapshot{QueueDepth: &depth}}
	act := &stubActuator{enabled: true, outcome: Outcome{Status: OutcomeApplied, Replicas: 3}, replicas: 2, known: true}
	recorder := &stubRecorder{}

	loop := NewLoop(testControllerConfig(), sampler, reader, act, recorder, nil)
	loop.RunOnce(context.Background())

	require.Len(t, recorder.calls, 1)
	obs := recorder.calls[0].observation.(Observation)
	require.NotNil(t, obs.QueueDepth)
	assert.Equal(t, int64(50), *obs.QueueDepth)
	require.NotNil(t, obs.Activity)

	rec := recorder.calls[0].recommendation.(Recommendation)
	assert.Equal(t, ActionScaleUp, rec.Action)
	assert.InDelta(t, 0.95, rec.Pressure, 0.001)
}

func TestLoop_OnlyOneCycleInFlight(t *testing.T) {
	sampler := &stubSampler{metrics: highPressureMetrics()}
	reader := &stubHistory{snapshot: history.ActivitySnapshot{Degraded: true}}
	act := &stubActuator{enabled: false, outcome: Outcome{Status: OutcomeSkipped, Detail: "orchestration unavailable"}}

	loop := NewLoop(testControllerConfig(), sampler, reader, act, &stubRecorder{}, nil)

	assert.True(t, loop.beginCycle())
	assert.False(t, loop.beginCycle(), "a second cycle must not start while one is in flight")
	loop.endCycle()
	assert.True(t, loop.beginCycle())
	loop.endCycle()
}

func TestLoop_StartStop(t *testing.T) {
	sampler := &stubSampler{metrics: highPressureMetrics()}
	reader := &stubHistory{snapshot: history.ActivitySnapshot{Degraded: true}}
	act := &stubActuator{enabled: true, outcome: Outcome{Status: OutcomeApplied, Replicas: 3}, replicas: 3, known: true}

	loop := NewLoop(testControllerConfig(), sampler, reader, act, &stubRecorder{}, nil)

	require.NoError(t, loop.Start(context.Background()))
	assert.Error(t, loop.Start(context.Background()), "double start must fail")

	// Initial replica count is seeded from the actuator.
	assert.Equal(t, 3, loop.State().CurrentReplicas)

	require.NoError(t, loop.Stop())
	assert.Error(t, loop.Stop(), "double stop must fail")
}
