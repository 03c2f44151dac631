package alert

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nitpack/tgfilebotter2/internal/metrics"
	"github.com/nitpack/tgfilebotter2/internal/telegram/telegramtest"
)

func TestTelegramNotifierDelivers(t *testing.T) {
	api := telegramtest.NewFake()
	n := NewTelegramNotifier(api, 500, zaptest.NewLogger(t), metrics.New(nil))
	n.Start()
	defer n.Stop()

	n.Notify(CategoryHealth, "bot b1 is down")

	require.Eventually(t, func() bool {
		return len(api.Messages()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	msg := api.Messages()[0]
	assert.Equal(t, int64(500), msg.ChatID)
	assert.Equal(t, "⚠️ [health] bot b1 is down", msg.Text)
}

func TestTelegramNotifierStopDrainsQueue(t *testing.T) {
	api := telegramtest.NewFake()
	n := NewTelegramNotifier(api, 500, zaptest.NewLogger(t), metrics.New(nil))
	n.Start()

	for i := 0; i < 5; i++ {
		n.Notify(CategorySession, fmt.Sprintf("note %d", i))
	}
	n.Stop()

	assert.Len(t, api.Messages(), 5)

	// Late alerts after Stop are dropped, not delivered and not a panic.
	n.Notify(CategorySession, "too late")
	assert.Len(t, api.Messages(), 5)

	// Stop is idempotent.
	n.Stop()
}

func TestTelegramNotifierShedsLoadWhenQueueIsFull(t *testing.T) {
	api := telegramtest.NewFake()
	n := NewTelegramNotifier(api, 500, zaptest.NewLogger(t), metrics.New(nil))

	// No worker running: the queue fills up and the rest must be
	// dropped without blocking the caller.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < queueSize+10; i++ {
			n.Notify(CategoryForward, fmt.Sprintf("note %d", i))
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a full queue")
	}

	n.Start()
	n.Stop()
	assert.Len(t, api.Messages(), queueSize)
}

func TestTelegramNotifierSurvivesDeliveryFailure(t *testing.T) {
	api := telegramtest.NewFake()
	api.SetSendErr(errors.New("telegram: gone"))
	n := NewTelegramNotifier(api, 500, zaptest.NewLogger(t), metrics.New(nil))
	n.Start()

	n.Notify(CategoryHealth, "undeliverable")
	n.Stop()

	assert.Empty(t, api.Messages())
}

func TestNotifyCountsAlertsByCategory(t *testing.T) {
	m := metrics.New(nil)
	api := telegramtest.NewFake()
	n := NewTelegramNotifier(api, 500, zaptest.NewLogger(t), m)
	n.Start()
	defer n.Stop()

	n.Notify(CategoryHealth, "one")
	n.Notify(CategoryHealth, "two")
	n.Notify(CategoryRegistration, "three")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.AlertsTotal.WithLabelValues(CategoryHealth)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AlertsTotal.WithLabelValues(CategoryRegistration)))
}

func TestNopNotifier(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop{}.Notify(CategorySession, "into the void")
	})
}
