// Package events broadcasts pin mutations to interested observers, kept
// deliberately separate from the feed query contract - queries stay pure
// reads whether or not anyone listens.
package events

import (
	"encoding/json"
	"sync"

	"github.com/go-redis/redis"
	log "github.com/sirupsen/logrus"
	pe "pinfeed.io/pinfeed/errors"
	md "pinfeed.io/pinfeed/models"
)

// Channel is the pub/sub channel pin events travel on.
const Channel = "pinfeed.pin-events"

// Notifier publishes pin mutation events. Publishing is best-effort: a lost
// event costs an observer a refresh cycle, never data.
type Notifier interface {
	Publish(ev md.PinEvent)
	Close() *pe.PinErr
}

// RedisNotifier publishes events over Redis pub/sub so observers in other
// processes see them.
type RedisNotifier struct {
	DB *redis.Client
}

func (n *RedisNotifier) Publish(ev md.PinEvent) {
	clog := log.WithField("pinID", ev.PinID).WithField("eventType", ev.Type)
	b, err := json.Marshal(ev)
	if err != nil {
		clog.WithError(err).Error("error marshalling pin event")
		return
	}
	if _, err := n.DB.Publish(Channel, b).Result(); err != nil {
		clog.WithError(err).Error("error publishing pin event")
	}
}

func (n *RedisNotifier) Close() *pe.PinErr {
	if err := n.DB.Close(); err != nil {
		return pe.ErrServiceFailure("failed closing Redis client").WithCause(err)
	}
	return nil
}

// LocalNotifier fans events out to in-process subscribers. It is the
// fallback when Redis is absent at startup, mirroring how the pin store
// falls back to demo mode.
type LocalNotifier struct {
	mu   sync.RWMutex
	subs []chan md.PinEvent
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{}
}

// Subscribe returns a channel carrying future events. Slow consumers drop
// events instead of blocking publishers.
func (n *LocalNotifier) Subscribe() <-chan md.PinEvent {
	ch := make(chan md.PinEvent, 16)
	n.mu.Lock()
	n.subs = append(n.subs, ch)
	n.mu.Unlock()
	return ch
}

func (n *LocalNotifier) Publish(ev md.PinEvent) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, ch := range n.subs {
		select {
		case ch <- ev:
		default:
			log.WithField("pinID", ev.PinID).Debug("dropping pin event for slow subscriber")
		}
	}
}

func (n *LocalNotifier) Close() *pe.PinErr {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		close(ch)
	}
	n.subs = nil
	return nil
}
