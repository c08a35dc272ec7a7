package msg

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Topic partitions published messages by kind.
type Topic int

// Topics published inside the twin.
const (
	Status Topic = iota
	Update
	Fault
	Alert
)

// Subscriber channels are buffered so a publish never blocks on a slow
// consumer. A subscriber that falls a full buffer behind is evicted.
const chanBufferSize = 8

// Publisher is an interface for objects that allow subscription to their events
type Publisher interface {
	Subscribe(uuid.UUID, Topic) (<-chan Msg, error)
	Unsubscribe(uuid.UUID)
}

// Msg is a single published event.
type Msg struct {
	sender  uuid.UUID
	topic   Topic
	payload interface{}
}

// New is the Msg factory function
func New(sender uuid.UUID, topic Topic, payload interface{}) Msg {
	return Msg{sender, topic, payload}
}

// PID returns the sender's PID
func (v Msg) PID() uuid.UUID {
	return v.sender
}

// Topic returns the message's topic
func (v Msg) Topic() Topic {
	return v.topic
}

// Payload returns the message data
func (v Msg) Payload() interface{} {
	return v.payload
}

// PubSub fans published messages out to all subscribers of a topic.
// Delivery failure is isolated per subscriber: the failing subscriber is
// dropped and the publish continues to the remainder.
type PubSub struct {
	mux    *sync.Mutex
	pid    uuid.UUID
	subs   map[Topic]map[uuid.UUID]chan Msg
	closed bool
}

// NewPublisher returns a PubSub publishing on behalf of sender pid.
func NewPublisher(pid uuid.UUID) *PubSub {
	subs := make(map[Topic]map[uuid.UUID]chan Msg)
	return &PubSub{&sync.Mutex{}, pid, subs, false}
}

// PID returns the publisher's PID
func (p *PubSub) PID() uuid.UUID {
	return p.pid
}

// Subscribe returns a channel carrying messages published on topic.
// Messages published before the subscription are never replayed.
func (p *PubSub) Subscribe(pid uuid.UUID, topic Topic) (<-chan Msg, error) {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.closed {
		return nil, errors.New("publisher stopped")
	}
	if _, ok := p.subs[topic]; !ok {
		p.subs[topic] = make(map[uuid.UUID]chan Msg)
	}
	ch := make(chan Msg, chanBufferSize)
	p.subs[topic][pid] = ch
	return ch, nil
}

// Subscribers returns the current subscriber count for topic.
func (p *PubSub) Subscribers(topic Topic) int {
	p.mux.Lock()
	defer p.mux.Unlock()
	return len(p.subs[topic])
}

// Unsubscribe drops pid from all topics and closes its channels.
func (p *PubSub) Unsubscribe(pid uuid.UUID) {
	p.mux.Lock()
	defer p.mux.Unlock()
	for _, subs := range p.subs {
		if ch, ok := subs[pid]; ok {
			delete(subs, pid)
			close(ch)
		}
	}
}

// Publish delivers payload to every current subscriber of topic. The send
// never blocks: a subscriber whose buffer is full is treated as failed and
// evicted, the remaining subscribers still receive the message.
func (p *PubSub) Publish(topic Topic, payload interface{}) {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.closed {
		return
	}
	m := New(p.pid, topic, payload)
	for pid, ch := range p.subs[topic] {
		select {
		case ch <- m:
		default:
			delete(p.subs[topic], pid)
			close(ch)
		}
	}
}

// Stop closes all subscriber channels and rejects further subscriptions.
func (p *PubSub) Stop() {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for topic, subs := range p.subs {
		for pid, ch := range subs {
			delete(subs, pid)
			close(ch)
		}
		delete(p.subs, topic)
	}
}
