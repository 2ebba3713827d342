// Package bridge exchanges opaque memory-card and save-state payloads with an
// embedded emulator. Requests are broadcast to every known target and answered
// asynchronously; a request that sees no answer before its timeout resolves to
// an absent result instead of an error.
package bridge

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Target is an embedded emulator context reachable by message passing.
type Target interface {
	Name() string
	Post(e Envelope) error
}

type Bridge struct {
	log *zap.SugaredLogger

	targetsLock sync.RWMutex
	targets     []Target

	// guards pending and observers; inbound dispatch and request
	// registration both happen under it.
	lock         sync.Mutex
	pending      map[MessageType][]*pendingRequest
	observers    map[int]func(Envelope)
	nextObserver int
}

type pendingRequest struct {
	response MessageType
	// buffered; receives the payload at most once:
	result chan []byte
}

func New(log *zap.SugaredLogger) *Bridge {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Bridge{
		log:       log,
		targets:   make([]Target, 0, 2),
		pending:   make(map[MessageType][]*pendingRequest),
		observers: make(map[int]func(Envelope)),
	}
}

func (b *Bridge) Attach(t Target) {
	b.targetsLock.Lock()
	defer b.targetsLock.Unlock()
	b.targets = append(b.targets, t)
	b.log.Infof("bridge: attached target %s", t.Name())
}

func (b *Bridge) Detach(t Target) {
	b.targetsLock.Lock()
	defer b.targetsLock.Unlock()

	for i, tt := range b.targets {
		if tt == t {
			b.targets = append(b.targets[:i], b.targets[i+1:]...)
			b.log.Infof("bridge: detached target %s", t.Name())
			break
		}
	}
}

// Targets returns a snapshot of the currently known targets.
func (b *Bridge) Targets() []Target {
	b.targetsLock.RLock()
	defer b.targetsLock.RUnlock()
	list := make([]Target, len(b.targets))
	copy(list, b.targets)
	return list
}

// broadcast posts to every known target and reports how many accepted it.
func (b *Bridge) broadcast(e Envelope) (accepted int) {
	for _, t := range b.Targets() {
		if err := t.Post(e); err != nil {
			b.log.Warnf("bridge: post %s to %s: %v", e.Type, t.Name(), err)
			continue
		}
		accepted++
	}
	return
}

// Push broadcasts a one-way tagged payload to every known target. It returns
// the number of targets that accepted the message; nothing is acknowledged.
func (b *Bridge) Push(tag MessageType, payload []byte) int {
	if payload == nil {
		payload = []byte{}
	}
	n := b.broadcast(NewEnvelope(tag, payload))
	b.log.Debugf("bridge: push %s (%d bytes) to %d targets", tag, len(payload), n)
	return n
}

// Request broadcasts requestTag and waits for the first valid envelope tagged
// responseTag. It returns the decoded payload, or false when timeout elapses
// or ctx is done first. Pending requests for the same responseTag are
// answered oldest first, one envelope each.
func (b *Bridge) Request(ctx context.Context, requestTag, responseTag MessageType, timeout time.Duration) ([]byte, bool) {
	p := &pendingRequest{
		response: responseTag,
		result:   make(chan []byte, 1),
	}

	// the listener must be active before anyone can see the request:
	b.lock.Lock()
	b.pending[responseTag] = append(b.pending[responseTag], p)
	b.lock.Unlock()

	n := b.broadcast(Envelope{Type: requestTag})
	b.log.Debugf("bridge: request %s sent to %d targets; awaiting %s for %v", requestTag, n, responseTag, timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data := <-p.result:
		return data, true
	case <-timer.C:
	case <-ctx.Done():
	}

	if b.withdraw(p) {
		b.log.Debugf("bridge: request %s timed out after %v", requestTag, timeout)
		return nil, false
	}

	// dispatch resolved p before we could withdraw it:
	return <-p.result, true
}

// withdraw deregisters p and reports whether it was still awaiting.
func (b *Bridge) withdraw(p *pendingRequest) bool {
	b.lock.Lock()
	defer b.lock.Unlock()

	queue := b.pending[p.response]
	for i, q := range queue {
		if q == p {
			queue = append(queue[:i], queue[i+1:]...)
			if len(queue) == 0 {
				delete(b.pending, p.response)
			} else {
				b.pending[p.response] = queue
			}
			return true
		}
	}
	return false
}

// Pending reports how many requests are awaiting responseTag.
func (b *Bridge) Pending(responseTag MessageType) int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.pending[responseTag])
}

// Subscribe registers fn to observe every valid inbound envelope. The
// returned func removes the observer.
func (b *Bridge) Subscribe(fn func(Envelope)) (cancel func()) {
	b.lock.Lock()
	id := b.nextObserver
	b.nextObserver++
	b.observers[id] = fn
	b.lock.Unlock()

	return func() {
		b.lock.Lock()
		delete(b.observers, id)
		b.lock.Unlock()
	}
}

// DeliverRaw parses and dispatches an inbound JSON envelope. Malformed input
// is dropped.
func (b *Bridge) DeliverRaw(p []byte) {
	e, err := ParseEnvelope(p)
	if err != nil {
		b.log.Debugf("bridge: drop inbound message: %v", err)
		return
	}
	b.Deliver(e)
}

// Deliver dispatches an inbound envelope to the oldest matching pending
// request and then to all observers. Envelopes whose type requires a payload
// but carry none (or carry an undecodable one) are dropped. An empty payload
// reaches observers only.
func (b *Bridge) Deliver(e Envelope) {
	if !e.Type.Valid() {
		b.log.Debugf("bridge: drop inbound message with type %q", e.Type)
		return
	}

	var data []byte
	if e.Type.CarriesPayload() {
		var err error
		data, err = e.Data()
		if err != nil {
			b.log.Debugf("bridge: drop inbound %s: %v", e.Type, err)
			return
		}
	}

	b.lock.Lock()
	// an empty payload answers nothing; the request keeps waiting:
	if len(data) > 0 {
		if queue := b.pending[e.Type]; len(queue) > 0 {
			p := queue[0]
			if len(queue) == 1 {
				delete(b.pending, e.Type)
			} else {
				b.pending[e.Type] = queue[1:]
			}
			p.result <- data
		}
	}
	observers := make([]func(Envelope), 0, len(b.observers))
	for _, fn := range b.observers {
		observers = append(observers, fn)
	}
	b.lock.Unlock()

	for _, fn := range observers {
		fn(e)
	}
}
