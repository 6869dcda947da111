// Package feed republishes sheet broadcasts on a ZeroMQ PUB socket so
// external tooling can observe edits without joining the wire protocol.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"
)

// Event wraps one broadcast message. The Event field is the exact JSON
// object sent to clients; the envelope adds the sheet name and a unique
// event id.
type Event struct {
	ID    string          `json:"id"`
	Sheet string          `json:"sheet"`
	Event json.RawMessage `json:"event"`
}

// Publisher owns the PUB socket. Publish enqueues onto a buffered channel
// and a single goroutine drains it, so callers inside a sheet's critical
// section never block on the socket. Per-sheet event order is preserved
// because enqueueing happens under the sheet's lock.
type Publisher struct {
	sock zmq4.Socket
	ch   chan Event
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// Bind creates a publisher listening on endpoint (e.g. tcp://127.0.0.1:5570).
func Bind(endpoint string) (*Publisher, error) {
	sock := zmq4.NewPub(context.Background())
	if err := sock.Listen(endpoint); err != nil {
		return nil, fmt.Errorf("failed to bind feed to %s: %w", endpoint, err)
	}

	p := &Publisher{
		sock: sock,
		ch:   make(chan Event, 256),
		done: make(chan struct{}),
	}
	go p.loop()
	log.Printf("[status] event feed publishing on %s", endpoint)
	return p, nil
}

func (p *Publisher) loop() {
	defer close(p.done)
	for event := range p.ch {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		if err := p.sock.Send(zmq4.NewMsg(data)); err != nil {
			log.Printf("[error] feed send failed: %v", err)
		}
	}
}

// Publish enqueues one broadcast. When the queue is full the event is
// dropped with a log line rather than stalling the caller.
func (p *Publisher) Publish(sheet string, raw []byte) {
	event := Event{
		ID:    uuid.NewString(),
		Sheet: sheet,
		Event: json.RawMessage(append([]byte(nil), raw...)),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.ch <- event:
	default:
		log.Printf("[error] feed queue full, dropping event for sheet %s", sheet)
	}
}

// Close drains the queue and closes the socket.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()

	<-p.done
	return p.sock.Close()
}
