package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	md "pinfeed.io/pinfeed/models"
)

func TestLocalNotifier_FanOut(t *testing.T) {
	n := NewLocalNotifier()
	a, b := n.Subscribe(), n.Subscribe()

	ev := md.PinEvent{Type: md.PinCreated, PinID: "pin-1"}
	n.Publish(ev)

	for _, ch := range []<-chan md.PinEvent{a, b} {
		select {
		case got := <-ch:
			assert.Equal(t, ev, got)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestLocalNotifier_SlowSubscriberNeverBlocksPublish(t *testing.T) {
	n := NewLocalNotifier()
	n.Subscribe() // nobody drains this channel
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			n.Publish(md.PinEvent{Type: md.PinDeleted, PinID: "pin-x"})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestLocalNotifier_CloseClosesSubscribers(t *testing.T) {
	n := NewLocalNotifier()
	ch := n.Subscribe()
	require.Nil(t, n.Close())
	_, open := <-ch
	assert.False(t, open, "subscriber channel must be closed")
}
