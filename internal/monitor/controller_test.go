package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chamuda-arangalla/EDUGuard/internal/aggregation"
	"github.com/chamuda-arangalla/EDUGuard/internal/capture"
	"github.com/chamuda-arangalla/EDUGuard/internal/classifier"
	"github.com/chamuda-arangalla/EDUGuard/internal/models"
	"github.com/chamuda-arangalla/EDUGuard/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeDevice 测试用摄像头
type fakeDevice struct {
	open    bool
	openErr error
}

func (d *fakeDevice) Open() error {
	if d.openErr != nil {
		return d.openErr
	}
	d.open = true
	return nil
}

func (d *fakeDevice) Close() error {
	d.open = false
	return nil
}

func (d *fakeDevice) Active() bool { return d.open }

// fakeSource 测试用事件源：测试通过 events 通道注入事件
type fakeSource struct {
	events  chan models.ClassificationEvent
	openErr error
}

func newFakeSource() *fakeSource {
	return &fakeSource{events: make(chan models.ClassificationEvent, 16)}
}

func (s *fakeSource) Open(ctx context.Context, userID string) (classifier.Stream, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	return &fakeStream{events: s.events}, nil
}

type fakeStream struct {
	events chan models.ClassificationEvent
}

func (s *fakeStream) Next(ctx context.Context) (models.ClassificationEvent, error) {
	select {
	case <-ctx.Done():
		return models.ClassificationEvent{}, ctx.Err()
	case ev, ok := <-s.events:
		if !ok {
			return models.ClassificationEvent{}, classifier.ErrStreamClosed
		}
		return ev, nil
	}
}

func (s *fakeStream) Close() error { return nil }

func setupController(t *testing.T, source classifier.Source, device capture.Device) (*Controller, *aggregation.Engine, *repository.MemoryGateway, *capture.Manager) {
	t.Helper()

	cfg := models.DefaultMonitorConfigs()[models.MonitorPosture]
	manager := capture.NewManager(device, zap.NewNop())
	engine := aggregation.NewEngine(zap.NewNop())
	gw := repository.NewMemoryGateway()
	fallback := classifier.NewBaselineSource(cfg, 5*time.Millisecond)

	c := NewController("user-1", cfg, manager, source, fallback, engine, gw, nil, zap.NewNop())
	return c, engine, gw, manager
}

func TestController_StartConsumesEvents(t *testing.T) {
	source := newFakeSource()
	c, engine, gw, _ := setupController(t, source, &fakeDevice{})
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))

	status := c.Status()
	assert.Equal(t, models.SessionRunning, status.State)
	assert.True(t, status.IsMonitoring)
	assert.False(t, status.Degraded)
	assert.True(t, status.CaptureActive)
	require.NotNil(t, status.StartedAt)

	source.events <- models.ClassificationEvent{
		MonitorType: models.MonitorPosture,
		UserID:      "user-1",
		Timestamp:   time.Now(),
		Label:       "Bad Posture",
	}

	cfg := models.DefaultMonitorConfigs()[models.MonitorPosture]
	require.Eventually(t, func() bool {
		return engine.Summarize("user-1", cfg, 5*time.Minute, time.Now()).SampleCount == 1
	}, time.Second, 5*time.Millisecond)

	// 事件同时持久化
	require.Eventually(t, func() bool {
		events, err := gw.QueryEvents(ctx, "user-1", models.MonitorPosture, time.Now().Add(-time.Minute))
		return err == nil && len(events) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Stop(ctx))
}

func TestController_StartIdempotentWhenRunning(t *testing.T) {
	source := newFakeSource()
	c, _, _, manager := setupController(t, source, &fakeDevice{})
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Start(ctx))

	// 幂等启动不重复占用租约
	assert.Equal(t, 1, manager.Holders())
	require.NoError(t, c.Stop(ctx))
}

func TestController_DeviceUnavailable(t *testing.T) {
	source := newFakeSource()
	c, _, _, _ := setupController(t, source, &fakeDevice{openErr: errors.New("device busy")})

	err := c.Start(context.Background())
	assert.ErrorIs(t, err, capture.ErrDeviceUnavailable)
	assert.Equal(t, models.SessionIdle, c.Status().State)
}

func TestController_DegradedFallback(t *testing.T) {
	source := newFakeSource()
	source.openErr = classifier.ErrModelUnavailable
	c, engine, _, _ := setupController(t, source, &fakeDevice{})
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))

	status := c.Status()
	assert.Equal(t, models.SessionRunning, status.State)
	assert.True(t, status.Degraded)

	// 降级会话产生合成基线事件
	cfg := models.DefaultMonitorConfigs()[models.MonitorPosture]
	require.Eventually(t, func() bool {
		stats := engine.Summarize("user-1", cfg, 5*time.Minute, time.Now())
		return stats.LabelCounts["Good Posture"] >= 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Stop(ctx))
}

func TestController_SourceOpenFailureReleasesLease(t *testing.T) {
	source := newFakeSource()
	source.openErr = errors.New("broker exploded")
	c, _, _, manager := setupController(t, source, &fakeDevice{})

	err := c.Start(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, manager.Holders())
	assert.False(t, manager.Active())
	assert.Equal(t, models.SessionIdle, c.Status().State)
}

func TestController_StopReleasesLease(t *testing.T) {
	source := newFakeSource()
	c, _, _, manager := setupController(t, source, &fakeDevice{})
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	assert.Equal(t, 1, manager.Holders())

	require.NoError(t, c.Stop(ctx))
	assert.Equal(t, 0, manager.Holders())
	assert.False(t, manager.Active())
	assert.Equal(t, models.SessionIdle, c.Status().State)
}

func TestController_StopIdempotentWhenIdle(t *testing.T) {
	source := newFakeSource()
	c, _, _, _ := setupController(t, source, &fakeDevice{})

	require.NoError(t, c.Stop(context.Background()))
}

func TestController_StreamClosureEndsSession(t *testing.T) {
	source := newFakeSource()
	c, _, _, manager := setupController(t, source, &fakeDevice{})

	require.NoError(t, c.Start(context.Background()))
	close(source.events)

	require.Eventually(t, func() bool {
		return c.Status().State == models.SessionIdle
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, manager.Holders())
}

func TestController_OnExitInvokedOnStreamFailure(t *testing.T) {
	source := newFakeSource()

	cfg := models.DefaultMonitorConfigs()[models.MonitorPosture]
	manager := capture.NewManager(&fakeDevice{}, zap.NewNop())
	engine := aggregation.NewEngine(zap.NewNop())
	gw := repository.NewMemoryGateway()
	fallback := classifier.NewBaselineSource(cfg, 5*time.Millisecond)

	exited := make(chan struct{})
	c := NewController("user-1", cfg, manager, source, fallback, engine, gw,
		func() { close(exited) }, zap.NewNop())

	require.NoError(t, c.Start(context.Background()))
	close(source.events)

	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("onExit not invoked after stream failure")
	}
	require.Eventually(t, func() bool {
		return c.Status().State == models.SessionIdle
	}, time.Second, 5*time.Millisecond)
}

func TestController_RestartAfterStop(t *testing.T) {
	source := newFakeSource()
	c, _, _, manager := setupController(t, source, &fakeDevice{})
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Start(ctx))

	assert.Equal(t, models.SessionRunning, c.Status().State)
	assert.Equal(t, 1, manager.Holders())
	require.NoError(t, c.Stop(ctx))
}
