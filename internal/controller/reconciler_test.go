package controller

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/vulcan-ci/vulcan/internal/cache"
)

type fakeMetrics struct{ pending int }

func (f *fakeMetrics) QueueMetrics(ctx context.Context, tenantID, machineGroup string) (int, error) {
	return f.pending, nil
}

func newTestCache(t *testing.T) *cache.RedisCache {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCache(cache.Config{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	return c
}

func TestReconciler_Desired_Boundaries(t *testing.T) {
	r := &Reconciler{cfg: Config{MinReplicas: 0, MaxReplicas: 10, TargetPendingPerWorker: 1.0}}
	require.Equal(t, 0, r.Desired(0))
	require.Equal(t, 1, r.Desired(1))
	require.Equal(t, 10, r.Desired(100))
}

func TestReconciler_ScaleUpIsImmediate(t *testing.T) {
	redisCache := newTestCache(t)
	scaler := NewFakeScaler(0)
	metrics := &fakeMetrics{pending: 5}
	r := New(Config{
		TenantID: "t1", MachineGroup: "default",
		DeploymentName: "workers", DeploymentNamespace: "ci",
		MinReplicas: 0, MaxReplicas: 10, TargetPendingPerWorker: 1.0,
		ScaleDownDelay: 5 * time.Minute,
	}, metrics, scaler, redisCache, nil)

	require.NoError(t, r.Reconcile(context.Background()))
	got, _ := scaler.GetReplicas(context.Background(), "workers", "ci")
	require.Equal(t, 5, got)
}

func TestReconciler_ScaleDownSuppressedByCooldown(t *testing.T) {
	redisCache := newTestCache(t)
	scaler := NewFakeScaler(5)
	metrics := &fakeMetrics{pending: 0}
	r := New(Config{
		TenantID: "t1", MachineGroup: "default",
		DeploymentName: "workers", DeploymentNamespace: "ci",
		MinReplicas: 0, MaxReplicas: 10, TargetPendingPerWorker: 1.0,
		ScaleDownDelay: 5 * time.Minute,
	}, metrics, scaler, redisCache, nil)

	require.NoError(t, r.cache.SetLastScaleDown(context.Background(), r.cooldownKey, time.Now()))
	require.NoError(t, r.Reconcile(context.Background()))

	got, _ := scaler.GetReplicas(context.Background(), "workers", "ci")
	require.Equal(t, 5, got, "scale-down should be suppressed within the cooldown window")
}

func TestReconciler_ScaleDownAfterCooldownExpires(t *testing.T) {
	redisCache := newTestCache(t)
	scaler := NewFakeScaler(5)
	metrics := &fakeMetrics{pending: 0}
	r := New(Config{
		TenantID: "t1", MachineGroup: "default",
		DeploymentName: "workers", DeploymentNamespace: "ci",
		MinReplicas: 0, MaxReplicas: 10, TargetPendingPerWorker: 1.0,
		ScaleDownDelay: 1 * time.Millisecond,
	}, metrics, scaler, redisCache, nil)

	require.NoError(t, r.cache.SetLastScaleDown(context.Background(), r.cooldownKey, time.Now().Add(-time.Hour)))
	require.NoError(t, r.Reconcile(context.Background()))

	got, _ := scaler.GetReplicas(context.Background(), "workers", "ci")
	require.Equal(t, 0, got)
}

func TestReconciler_NeverBelowMinReplicas(t *testing.T) {
	redisCache := newTestCache(t)
	scaler := NewFakeScaler(2)
	metrics := &fakeMetrics{pending: 0}
	r := New(Config{
		TenantID: "t1", MachineGroup: "default",
		DeploymentName: "workers", DeploymentNamespace: "ci",
		MinReplicas: 2, MaxReplicas: 10, TargetPendingPerWorker: 1.0,
		ScaleDownDelay: 0,
	}, metrics, scaler, redisCache, nil)

	require.NoError(t, r.Reconcile(context.Background()))
	got, _ := scaler.GetReplicas(context.Background(), "workers", "ci")
	require.Equal(t, 2, got)
}
