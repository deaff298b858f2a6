package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// connect dials url with unlimited reconnects. name identifies the
// connection in NATS monitoring.
func connect(url, name string, opts ...nats.Option) (*nats.Conn, error) {
	defaults := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NATSPublisher publishes session and search events as JSON on the subject
// named by their topic.
type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	nc, err := connect(url, "discovery-publisher", opts...)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", topic, err)
	}
	if err := p.conn.Publish(topic, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Flush blocks until the server has processed every published message.
func (p *NATSPublisher) Flush() error {
	return p.conn.Flush()
}

// Close flushes pending publishes, giving up after a second, and closes
// the connection.
func (p *NATSPublisher) Close() error {
	_ = p.conn.FlushTimeout(time.Second)
	p.conn.Close()
	return nil
}

// NATSSubscriber delivers raw event payloads from NATS subjects.
type NATSSubscriber struct {
	conn *nats.Conn
}

// NewNATSSubscriber connects with unlimited reconnects. opts may add
// handlers such as nats.DisconnectErrHandler.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	nc, err := connect(url, "discovery-subscriber", opts...)
	if err != nil {
		return nil, err
	}
	return &NATSSubscriber{conn: nc}, nil
}

// natsFeed forwards messages of one subscription into a bounded channel.
// Messages arriving while the channel is full are dropped so the NATS
// dispatcher never blocks.
type natsFeed struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
	sub    *nats.Subscription
	once   sync.Once
}

func (f *natsFeed) deliver(msg *nats.Msg) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.ch <- msg.Data:
	default:
	}
}

func (f *natsFeed) cancel() {
	f.once.Do(func() {
		if f.sub != nil {
			_ = f.sub.Unsubscribe()
		}
		f.mu.Lock()
		f.closed = true
		// Undelivered payloads are discarded so a receiver sees the close
		// immediately.
	drain:
		for {
			select {
			case <-f.ch:
			default:
				break drain
			}
		}
		close(f.ch)
		f.mu.Unlock()
	})
}

// Subscribe returns a channel of payloads published on topic, which may use
// NATS wildcards such as "discovery.>". The returned cancel unsubscribes and
// closes the channel.
func (s *NATSSubscriber) Subscribe(topic string) (<-chan []byte, func(), error) {
	f := &natsFeed{ch: make(chan []byte, 64)}
	sub, err := s.conn.Subscribe(topic, f.deliver)
	if err != nil {
		f.cancel()
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	f.sub = sub
	// The subscription must reach the server before messages published on
	// other connections are routed to it.
	if err := s.conn.Flush(); err != nil {
		f.cancel()
		return nil, nil, fmt.Errorf("flushing subscription: %w", err)
	}
	return f.ch, f.cancel, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
