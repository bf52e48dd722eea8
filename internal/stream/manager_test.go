package stream

import (
	"sync"
	"testing"
	"time"

	"github.com/huskyapply/gateway/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestManager(cfg Config) *Manager {
	return NewManager(cfg, zerolog.Nop())
}

func TestManagerSubscribeAndPublish(t *testing.T) {
	m := newTestManager(Config{})
	defer m.Stop()

	sub, err := m.Subscribe("job-1")
	require.NoError(t, err)
	require.Equal(t, "job-1", sub.JobID())
	require.Equal(t, 1, m.ActiveConnections())

	ev := &models.StatusEvent{Status: models.StatusProcessing, Timestamp: time.Now()}
	require.Equal(t, 1, m.Publish("job-1", StatusMessage(ev)))

	msg := <-sub.Events()
	require.Equal(t, EventStatus, msg.Name)
	require.Equal(t, models.StatusProcessing, msg.Event.Status)
}

func TestManagerFanoutIsPerJob(t *testing.T) {
	m := newTestManager(Config{})
	defer m.Stop()

	subA1, err := m.Subscribe("job-a")
	require.NoError(t, err)
	subA2, err := m.Subscribe("job-a")
	require.NoError(t, err)
	subB, err := m.Subscribe("job-b")
	require.NoError(t, err)

	ev := &models.StatusEvent{Status: models.StatusProcessing}
	require.Equal(t, 2, m.Publish("job-a", StatusMessage(ev)))

	<-subA1.Events()
	<-subA2.Events()
	select {
	case <-subB.Events():
		t.Fatal("job-b subscriber received job-a frame")
	default:
	}
}

func TestManagerPublishPreservesOrder(t *testing.T) {
	m := newTestManager(Config{})
	defer m.Stop()

	sub, err := m.Subscribe("job-1")
	require.NoError(t, err)

	for _, st := range []models.Status{models.StatusProcessing, models.StatusProcessing, models.StatusCompleted} {
		m.Publish("job-1", StatusMessage(&models.StatusEvent{Status: st}))
	}

	first := <-sub.Events()
	second := <-sub.Events()
	third := <-sub.Events()
	require.Equal(t, models.StatusProcessing, first.Event.Status)
	require.Equal(t, models.StatusProcessing, second.Event.Status)
	require.Equal(t, models.StatusCompleted, third.Event.Status)
	require.True(t, third.Terminal())
}

func TestManagerNoSubscribersIsNoOp(t *testing.T) {
	m := newTestManager(Config{})
	defer m.Stop()

	require.Equal(t, 0, m.Publish("nobody-home", StatusMessage(&models.StatusEvent{Status: models.StatusCompleted})))
	require.Equal(t, 0, m.Heartbeat("nobody-home"))

	stats := m.Stats()
	require.Zero(t, stats.Sent)
	require.Zero(t, stats.Dropped)
}

func TestManagerConnectionLimit(t *testing.T) {
	m := newTestManager(Config{MaxConnections: 2})
	defer m.Stop()

	first, err := m.Subscribe("job-1")
	require.NoError(t, err)
	_, err = m.Subscribe("job-2")
	require.NoError(t, err)

	// At the cap: refused without registering.
	_, err = m.Subscribe("job-3")
	require.ErrorIs(t, err, ErrConnectionLimit)
	require.Equal(t, 2, m.ActiveConnections())
	require.Equal(t, int64(2), m.Stats().Created)

	// Capacity freed by a termination is usable again.
	first.Terminate(ReasonCompleted, nil)
	_, err = m.Subscribe("job-3")
	require.NoError(t, err)
	require.Equal(t, 2, m.ActiveConnections())
}

func TestManagerSlowSubscriberIsTerminated(t *testing.T) {
	m := newTestManager(Config{SendBuffer: 1})
	defer m.Stop()

	slow, err := m.Subscribe("job-1")
	require.NoError(t, err)
	healthy, err := m.Subscribe("job-1")
	require.NoError(t, err)

	ev := StatusMessage(&models.StatusEvent{Status: models.StatusProcessing})

	// First frame fills the slow subscriber's buffer, second overflows it.
	require.Equal(t, 2, m.Publish("job-1", ev))
	<-healthy.Events()
	delivered := m.Publish("job-1", ev)
	require.Equal(t, 1, delivered, "only the draining subscriber should receive the frame")

	<-slow.Done()
	reason, cause := slow.Reason()
	require.Equal(t, ReasonError, reason)
	require.ErrorIs(t, cause, ErrSlowSubscriber)

	// The healthy subscriber is untouched and still receives frames.
	select {
	case <-healthy.Done():
		t.Fatal("healthy subscriber was terminated")
	default:
	}
	require.Equal(t, 1, m.ActiveConnections())
	require.Equal(t, int64(1), m.Stats().Dropped)
}

func TestSubscriptionTerminateIsExactlyOnce(t *testing.T) {
	m := newTestManager(Config{})
	defer m.Stop()

	sub, err := m.Subscribe("job-1")
	require.NoError(t, err)

	reasons := []CloseReason{ReasonCompleted, ReasonTimeout, ReasonError}
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(r CloseReason) {
			defer wg.Done()
			sub.Terminate(r, nil)
		}(reasons[i%len(reasons)])
	}
	wg.Wait()

	<-sub.Done()
	require.Equal(t, int64(1), m.Stats().Removed)
	require.Equal(t, 0, m.ActiveConnections())

	reason, _ := sub.Reason()
	require.Contains(t, reasons, reason)
}

func TestManagerHeartbeat(t *testing.T) {
	m := newTestManager(Config{})
	defer m.Stop()

	sub, err := m.Subscribe("job-1")
	require.NoError(t, err)

	require.Equal(t, 1, m.Heartbeat("job-1"))
	msg := <-sub.Events()
	require.Equal(t, EventHeartbeat, msg.Name)
	require.Equal(t, "ping", msg.Data)
	require.Equal(t, int64(1), m.Stats().Heartbeats)
}

func TestManagerHeartbeatLoop(t *testing.T) {
	m := newTestManager(Config{HeartbeatInterval: 10 * time.Millisecond})
	m.Start()
	defer m.Stop()

	sub, err := m.Subscribe("job-1")
	require.NoError(t, err)

	select {
	case msg := <-sub.Events():
		require.Equal(t, EventHeartbeat, msg.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat delivered")
	}
}

func TestManagerJanitorReapsStaleConnections(t *testing.T) {
	m := newTestManager(Config{
		MaxConnectionAge: 20 * time.Millisecond,
		CleanupInterval:  10 * time.Millisecond,
	})
	m.Start()
	defer m.Stop()

	sub, err := m.Subscribe("job-1")
	require.NoError(t, err)

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("janitor never reaped the connection")
	}
	reason, _ := sub.Reason()
	require.Equal(t, ReasonTimeout, reason)
	require.Equal(t, 0, m.ActiveConnections())
}

func TestManagerStop(t *testing.T) {
	m := newTestManager(Config{})
	m.Start()

	sub, err := m.Subscribe("job-1")
	require.NoError(t, err)

	m.Stop()

	<-sub.Done()
	reason, _ := sub.Reason()
	require.Equal(t, ReasonCompleted, reason)
	require.Equal(t, 0, m.ActiveConnections())

	_, err = m.Subscribe("job-2")
	require.ErrorIs(t, err, ErrManagerStopped)

	// Stop is idempotent.
	m.Stop()
}

func TestStatusMessageNaming(t *testing.T) {
	t.Run("terminal events are status frames", func(t *testing.T) {
		msg := StatusMessage(&models.StatusEvent{Status: models.StatusCompleted, GeneratedText: "done"})
		require.Equal(t, EventStatus, msg.Name)
		require.Empty(t, msg.ID)
		require.True(t, msg.Terminal())
	})

	t.Run("partial updates are streaming frames with ids", func(t *testing.T) {
		msg := StatusMessage(&models.StatusEvent{
			Status:        models.StatusProcessing,
			StreamingData: &models.StreamingData{Progress: 0.5},
		})
		require.Equal(t, EventStreaming, msg.Name)
		require.NotEmpty(t, msg.ID)
		require.False(t, msg.Terminal())
	})

	t.Run("plain progress is a status frame", func(t *testing.T) {
		msg := StatusMessage(&models.StatusEvent{Status: models.StatusProcessing})
		require.Equal(t, EventStatus, msg.Name)
	})
}
