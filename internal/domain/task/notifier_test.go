package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWaiter struct {
	calls chan struct{}
	err   error
	sleep time.Duration
}

func (s *stubWaiter) WaitForNotification(ctx context.Context) error {
	select {
	case s.calls <- struct{}{}:
	default:
	}

	if s.sleep > 0 {
		timer := time.NewTimer(s.sleep)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if s.err != nil {
		return s.err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return nil
}

func TestNewNotifierRequiresWaiter(t *testing.T) {
	notifier, err := NewNotifier(NotifierOptions{})
	require.ErrorIs(t, err, ErrWaiterRequired)
	assert.Nil(t, notifier)
}

func TestNotifier_SubscribeReceivesNotifications(t *testing.T) {
	waiter := &stubWaiter{
		calls: make(chan struct{}, 4),
		sleep: 10 * time.Millisecond,
	}
	notifier, err := NewNotifier(NotifierOptions{Waiter: waiter})
	require.NoError(t, err)
	defer notifier.StopAll()

	unsub, ch := notifier.Subscribe()
	defer unsub()

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a notification")
	}
}

func TestNotifier_BroadcastsToAllSubscribers(t *testing.T) {
	waiter := &stubWaiter{
		calls: make(chan struct{}, 4),
		sleep: 10 * time.Millisecond,
	}
	notifier, err := NewNotifier(NotifierOptions{Waiter: waiter})
	require.NoError(t, err)
	defer notifier.StopAll()

	unsubA, chA := notifier.Subscribe()
	defer unsubA()
	unsubB, chB := notifier.Subscribe()
	defer unsubB()

	for name, ch := range map[string]<-chan struct{}{"a": chA, "b": chB} {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("subscriber %s never notified", name)
		}
	}
}

func TestNotifier_BackoffAfterWaiterError(t *testing.T) {
	waiter := &stubWaiter{
		calls: make(chan struct{}, 16),
		err:   errors.New("connection dropped"),
	}
	notifier, err := NewNotifier(NotifierOptions{
		Waiter:  waiter,
		Backoff: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	defer notifier.StopAll()

	unsub, ch := notifier.Subscribe()
	defer unsub()

	// the listener keeps broadcasting despite waiter errors
	for i := 0; i < 2; i++ {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatal("listener stopped after waiter error")
		}
	}
}

func TestNotifier_UnsubscribeClosesChannel(t *testing.T) {
	waiter := &stubWaiter{
		calls: make(chan struct{}, 4),
		sleep: time.Hour,
	}
	notifier, err := NewNotifier(NotifierOptions{Waiter: waiter})
	require.NoError(t, err)
	defer notifier.StopAll()

	unsub, ch := notifier.Subscribe()
	unsub()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after unsubscribe")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}

	// repeated unsubscribe is a no-op
	unsub()
}

func TestNotifier_StopAllClosesSubscribers(t *testing.T) {
	waiter := &stubWaiter{
		calls: make(chan struct{}, 4),
		sleep: time.Hour,
	}
	notifier, err := NewNotifier(NotifierOptions{Waiter: waiter})
	require.NoError(t, err)

	_, chA := notifier.Subscribe()
	_, chB := notifier.Subscribe()

	notifier.StopAll()

	for name, ch := range map[string]<-chan struct{}{"a": chA, "b": chB} {
		select {
		case _, ok := <-ch:
			assert.False(t, ok, "subscriber %s should observe a closed channel", name)
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s channel not closed", name)
		}
	}
}

func TestNotifier_ListenerRestartsAfterLastUnsubscribe(t *testing.T) {
	waiter := &stubWaiter{
		calls: make(chan struct{}, 16),
		sleep: 10 * time.Millisecond,
	}
	notifier, err := NewNotifier(NotifierOptions{Waiter: waiter})
	require.NoError(t, err)
	defer notifier.StopAll()

	unsub, _ := notifier.Subscribe()
	unsub()

	unsub2, ch := notifier.Subscribe()
	defer unsub2()

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not restart for a new subscription")
	}
}
