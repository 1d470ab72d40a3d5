package actuator

import (
	"context"
	"fmt"
	"sync"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"syscontrol/pkg/config"
	"syscontrol/pkg/controller"
	"syscontrol/pkg/logger"
)

const (
	backoffInitial = 30 * time.Second
	backoffMax     = 5 * time.Minute
)

// KubeAdapter applies replica targets to a Kubernetes deployment through the
// scale subresource. It always sets an absolute target, so repeated
// applications of the same recommendation are idempotent.
type KubeAdapter struct {
	client      kubernetes.Interface
	namespace   string
	deployment  string
	minReplicas int
	maxReplicas int
	timeout     time.Duration

	mu        sync.Mutex
	failures  int
	retryAt   time.Time
	lastKnown int
	hasKnown  bool
}

// NewKubeAdapter builds the Kubernetes client (in-cluster first, kubeconfig
// fallback) and verifies the target deployment is readable.
func NewKubeAdapter(cfg *config.Config) (*KubeAdapter, error) {
	restConfig, err := buildRestConfig(cfg.K8s.Kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to load kubernetes config: %w", err)
	}

	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	adapter := &KubeAdapter{
		client:      client,
		namespace:   cfg.K8s.Namespace,
		deployment:  cfg.K8s.Deployment,
		minReplicas: cfg.Controller.MinReplicas,
		maxReplicas: cfg.Controller.MaxReplicas,
		timeout:     time.Duration(cfg.Controller.ActuateTimeout) * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), adapter.timeout)
	defer cancel()
	replicas, ok := adapter.CurrentReplicas(ctx)
	if !ok {
		return nil, fmt.Errorf("deployment %s/%s is not readable", cfg.K8s.Namespace, cfg.K8s.Deployment)
	}

	logger.Infof("orchestration ready: deployment %s/%s at %d replicas", cfg.K8s.Namespace, cfg.K8s.Deployment, replicas)
	return adapter, nil
}

// NewKubeAdapterWithClient wires an adapter over an existing clientset.
func NewKubeAdapterWithClient(client kubernetes.Interface, namespace, deployment string, minReplicas, maxReplicas int, timeout time.Duration) *KubeAdapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &KubeAdapter{
		client:      client,
		namespace:   namespace,
		deployment:  deployment,
		minReplicas: minReplicas,
		maxReplicas: maxReplicas,
		timeout:     timeout,
	}
}

func (a *KubeAdapter) Enabled() bool { return true }

// Apply sets the deployment's replica count to the recommendation's target.
// The target is clamped to the configured bounds here again, independently
// of the policy's own clamp.
func (a *KubeAdapter) Apply(ctx context.Context, rec controller.Recommendation) controller.Outcome {
	if rec.Action == controller.ActionHold {
		return controller.Outcome{
			Status:   controller.OutcomeSkipped,
			Detail:   "hold recommendation, no actuation",
			Replicas: a.cachedReplicas(),
		}
	}

	if until, cooling := a.inBackoff(); cooling {
		return controller.Outcome{
			Status: controller.OutcomeSkipped,
			Detail: fmt.Sprintf("orchestration in failure backoff until %s", until.Format(time.RFC3339)),
		}
	}

	target := clamp(rec.TargetReplicas, a.minReplicas, a.maxReplicas)

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	scale, err := a.client.AppsV1().Deployments(a.namespace).GetScale(callCtx, a.deployment, metav1.GetOptions{})
	if err != nil {
		a.recordFailure()
		return controller.Outcome{
			Status: controller.OutcomeFailed,
			Detail: fmt.Sprintf("could not read scale of %s/%s: %v", a.namespace, a.deployment, err),
		}
	}

	current := int(scale.Spec.Replicas)
	if current == target {
		a.recordSuccess(target)
		return controller.Outcome{
			Status:   controller.OutcomeApplied,
			Detail:   fmt.Sprintf("deployment %s/%s already at %d replicas", a.namespace, a.deployment, target),
			Replicas: target,
		}
	}

	scale.Spec.Replicas = int32(target)
	if _, err := a.client.AppsV1().Deployments(a.namespace).UpdateScale(callCtx, a.deployment, scale, metav1.UpdateOptions{}); err != nil {
		a.recordFailure()
		return controller.Outcome{
			Status: controller.OutcomeFailed,
			Detail: fmt.Sprintf("could not scale %s/%s to %d replicas: %v", a.namespace, a.deployment, target, err),
		}
	}

	a.recordSuccess(target)
	logger.InfoCtx(ctx, "scaled deployment %s/%s from %d to %d replicas", a.namespace, a.deployment, current, target)
	return controller.Outcome{
		Status:   controller.OutcomeApplied,
		Detail:   fmt.Sprintf("scaled deployment %s/%s from %d to %d replicas", a.namespace, a.deployment, current, target),
		Replicas: target,
	}
}

// CurrentReplicas reads the deployment's desired replica count. During
// failure backoff the last known value is returned instead of hitting the
// API again.
func (a *KubeAdapter) CurrentReplicas(ctx context.Context) (int, bool) {
	if _, cooling := a.inBackoff(); cooling {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.lastKnown, a.hasKnown
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	scale, err := a.client.AppsV1().Deployments(a.namespace).GetScale(callCtx, a.deployment, metav1.GetOptions{})
	if err != nil {
		logger.WarnCtx(ctx, "failed to read replicas of %s/%s: %v", a.namespace, a.deployment, err)
		a.recordFailure()
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.lastKnown, a.hasKnown
	}

	replicas := int(scale.Spec.Replicas)
	a.recordSuccess(replicas)
	return replicas, true
}

func (a *KubeAdapter) cachedReplicas() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastKnown
}

func (a *KubeAdapter) inBackoff() (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failures == 0 || !time.Now().Before(a.retryAt) {
		return time.Time{}, false
	}
	return a.retryAt, true
}

func (a *KubeAdapter) recordFailure() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures++
	backoff := backoffInitial << (a.failures - 1)
	if backoff > backoffMax || backoff <= 0 {
		backoff = backoffMax
	}
	a.retryAt = time.Now().Add(backoff)
}

func (a *KubeAdapter) recordSuccess(replicas int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures = 0
	a.retryAt = time.Time{}
	a.lastKnown = replicas
	a.hasKnown = true
}

func buildRestConfig(kubeconfig string) (*rest.Config, error) {
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}
	if kubeconfig == "" {
		kubeconfig = clientcmd.NewDefaultClientConfigLoadingRules().GetDefaultFilename()
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfig)
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
