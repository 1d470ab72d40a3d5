package actuator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	autoscalingv1 "k8s.io/api/autoscaling/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"syscontrol/pkg/controller"
)

// fakeScaleClientset wires the scale subresource of a single deployment onto
// a fake clientset, tracking the replica count in memory.
func fakeScaleClientset(t *testing.T, initialReplicas int32) (*fake.Clientset, *int32) {
	t.Helper()

	replicas := initialReplicas
	clientset := fake.NewSimpleClientset()

	clientset.PrependReactor("get", "deployments", func(action k8stesting.Action) (bool, runtime.Object, error) {
		if action.GetSubresource() != "scale" {
			return false, nil, nil
		}
		scale := &autoscalingv1.Scale{
			ObjectMeta: metav1.ObjectMeta{Name: "workers", Namespace: "default"},
			Spec:       autoscalingv1.ScaleSpec{Replicas: replicas},
		}
		return true, scale, nil
	})
	clientset.PrependReactor("update", "deployments", func(action k8stesting.Action) (bool, runtime.Object, error) {
		if action.GetSubresource() != "scale" {
			return false, nil, nil
		}
		scale := action.(k8stesting.UpdateAction).GetObject().(*autoscalingv1.Scale)
		replicas = scale.Spec.Replicas
		return true, scale, nil
	})

	return clientset, &replicas
}

func newTestAdapter(t *testing.T, initialReplicas int32) (*KubeAdapter, *int32) {
	t.Helper()
	clientset, replicas := fakeScaleClientset(t, initialReplicas)
	adapter := NewKubeAdapterWithClient(clientset, "default", "workers", 1, 5, time.Second)
	return adapter, replicas
}

func scaleUpRecommendation(target int) controller.Recommendation {
	return controller.Recommendation{
		Action:         controller.ActionScaleUp,
		TargetReplicas: target,
		TargetWorkers:  target,
	}
}

func TestKubeAdapter_ApplySetsAbsoluteTarget(t *testing.T) {
	adapter, replicas := newTestAdapter(t, 2)
	ctx := context.Background()

	outcome := adapter.Apply(ctx, scaleUpRecommendation(3))

	assert.Equal(t, controller.OutcomeApplied, outcome.Status)
	assert.Equal(t, 3, outcome.Replicas)
	assert.Contains(t, outcome.Detail, "from 2 to 3")
	assert.Equal(t, int32(3), *replicas)
}

func TestKubeAdapter_ApplyIsIdempotent(t *testing.T) {
	adapter, replicas := newTestAdapter(t, 3)
	ctx := context.Background()

	// Applying the current count again changes nothing
	outcome := adapter.Apply(ctx, scaleUpRecommendation(3))

	assert.Equal(t, controller.OutcomeApplied, outcome.Status)
	assert.Equal(t, 3, outcome.Replicas)
	assert.Contains(t, outcome.Detail, "already at 3 replicas")
	assert.Equal(t, int32(3), *replicas)
}

func TestKubeAdapter_ApplyClampsTarget(t *testing.T) {
	adapter, replicas := newTestAdapter(t, 2)
	ctx := context.Background()

	outcome := adapter.Apply(ctx, scaleUpRecommendation(100))

	assert.Equal(t, controller.OutcomeApplied, outcome.Status)
	assert.Equal(t, 5, outcome.Replicas, "target must be clamped to the ceiling")
	assert.Equal(t, int32(5), *replicas)

	outcome = adapter.Apply(ctx, controller.Recommendation{
		Action:         controller.ActionScaleDown,
		TargetReplicas: -10,
	})
	assert.Equal(t, controller.OutcomeApplied, outcome.Status)
	assert.Equal(t, 1, outcome.Replicas, "target must be clamped to the floor")
}

func TestKubeAdapter_HoldSkipsActuation(t *testing.T) {
	adapter, replicas := newTestAdapter(t, 2)

	outcome := adapter.Apply(context.Background(), controller.Recommendation{Action: controller.ActionHold})

	assert.Equal(t, controller.OutcomeSkipped, outcome.Status)
	assert.Equal(t, int32(2), *replicas, "a hold must not touch the deployment")
}

func TestKubeAdapter_FailureEntersBackoff(t *testing.T) {
	clientset, _ := fakeScaleClientset(t, 2)
	clientset.PrependReactor("get", "deployments", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("connection refused")
	})

	adapter := NewKubeAdapterWithClient(clientset, "default", "workers", 1, 5, time.Second)
	ctx := context.Background()

	outcome := adapter.Apply(ctx, scaleUpRecommendation(3))
	assert.Equal(t, controller.OutcomeFailed, outcome.Status)
	assert.Contains(t, outcome.Detail, "connection refused")

	// Subsequent applies are skipped while the backoff is active
	outcome = adapter.Apply(ctx, scaleUpRecommendation(3))
	assert.Equal(t, controller.OutcomeSkipped, outcome.Status)
	assert.Contains(t, outcome.Detail, "failure backoff")
}

func TestKubeAdapter_CurrentReplicas(t *testing.T) {
	adapter, _ := newTestAdapter(t, 4)

	replicas, ok := adapter.CurrentReplicas(context.Background())
	require.True(t, ok)
	assert.Equal(t, 4, replicas)
}

func TestUnavailableAdapter(t *testing.T) {
	adapter := Unavailable()
	ctx := context.Background()

	assert.False(t, adapter.Enabled())

	outcome := adapter.Apply(ctx, scaleUpRecommendation(3))
	assert.Equal(t, "skipped: orchestration unavailable", outcome.String())

	_, ok := adapter.CurrentReplicas(ctx)
	assert.False(t, ok)
}
