package mocks

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/absmach/flcoord/pkg/mqtt"
)

var _ mqtt.PubSub = (*Broker)(nil)

// Broker is an in-process stand-in for an MQTT broker that every party of
// a test shares as its PubSub. Messages are JSON round-tripped like on the
// wire and delivered asynchronously.
type Broker struct {
	mu        sync.RWMutex
	subs      map[string]mqtt.Handler
	published []Message
	wg        sync.WaitGroup
}

type Message struct {
	Topic   string
	Payload map[string]any
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]mqtt.Handler)}
}

func (b *Broker) Publish(_ context.Context, topic string, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}

	b.mu.Lock()
	b.published = append(b.published, Message{Topic: topic, Payload: payload})
	var handlers []mqtt.Handler
	for pattern, h := range b.subs {
		if Matches(pattern, topic) {
			handlers = append(handlers, h)
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			_ = h(topic, payload)
		}()
	}

	return nil
}

func (b *Broker) Subscribe(_ context.Context, topic string, handler mqtt.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs[topic] = handler

	return nil
}

func (b *Broker) Unsubscribe(_ context.Context, topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subs, topic)

	return nil
}

func (b *Broker) Disconnect(_ context.Context) error {
	return nil
}

// Wait blocks until every delivery started so far has returned.
func (b *Broker) Wait() {
	b.wg.Wait()
}

// Published returns the messages sent to topics matching pattern.
func (b *Broker) Published(pattern string) []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Message
	for _, m := range b.published {
		if Matches(pattern, m.Topic) {
			out = append(out, m)
		}
	}

	return out
}

// Matches reports whether topic matches an MQTT subscription pattern with
// + and # wildcards.
func Matches(pattern, topic string) bool {
	p := strings.Split(pattern, "/")
	t := strings.Split(topic, "/")
	for i, part := range p {
		if part == "#" {
			return true
		}
		if i >= len(t) {
			return false
		}
		if part != "+" && part != t[i] {
			return false
		}
	}

	return len(p) == len(t)
}
