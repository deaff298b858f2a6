package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/discovery/internal/events"
)

const (
	// sseReplaySize is how many events each session keeps for
	// Last-Event-ID replay.
	sseReplaySize = 256

	sseClientBuffer      = 64
	sseKeepaliveInterval = 15 * time.Second
)

type sseEvent struct {
	ID    uint64
	Topic string
	Data  []byte
}

// sseHub fans the events of one session out to its streams and keeps the
// most recent ones for replay.
type sseHub struct {
	mu      sync.Mutex
	clients map[*sseClient]struct{}
	lastID  uint64
	replay  []sseEvent // ring, oldest at head once full
	head    int
	done    chan struct{}
	once    sync.Once
}

type sseClient struct {
	topics  []string
	ch      chan sseEvent
	dropped atomic.Int64
}

func newSSEHub() *sseHub {
	return &sseHub{
		clients: make(map[*sseClient]struct{}),
		replay:  make([]sseEvent, 0, sseReplaySize),
		done:    make(chan struct{}),
	}
}

// broadcast assigns the next event id and hands the event to every
// matching client. A client whose buffer is full misses the event.
func (h *sseHub) broadcast(topic string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	evt := sseEvent{ID: h.lastID, Topic: topic, Data: payload}
	if len(h.replay) < sseReplaySize {
		h.replay = append(h.replay, evt)
	} else {
		h.replay[h.head] = evt
		h.head = (h.head + 1) % sseReplaySize
	}

	for c := range h.clients {
		if !c.wants(topic) {
			continue
		}
		select {
		case c.ch <- evt:
		default:
			c.dropped.Add(1)
		}
	}
}

func (h *sseHub) subscribe(topics []string) *sseClient {
	c := &sseClient{topics: topics, ch: make(chan sseEvent, sseClientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *sseHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// close ends every stream of the hub. Safe to call more than once.
func (h *sseHub) close() {
	h.once.Do(func() { close(h.done) })
}

// eventsSince returns the retained events with an id above lastID, oldest
// first.
func (h *sseHub) eventsSince(lastID uint64) []sseEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []sseEvent
	for i := range h.replay {
		evt := h.replay[(h.head+i)%len(h.replay)]
		if evt.ID > lastID {
			out = append(out, evt)
		}
	}
	return out
}

// wants matches topic against the client's filters with NATS-style
// wildcards. No filters means every topic.
func (c *sseClient) wants(topic string) bool {
	if len(c.topics) == 0 {
		return true
	}
	for _, pattern := range c.topics {
		if events.MatchTopic(pattern, topic) {
			return true
		}
	}
	return false
}

// parseTopics splits the comma-separated ?topics= filter.
func parseTopics(raw string) []string {
	var topics []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

func writeSSEEvent(w io.Writer, evt sseEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.ID, evt.Topic, evt.Data)
}

// handleSessionStream handles GET /v1/sessions/{id}/stream. The stream
// carries route, options.<pid> and outcome.<pid> events and ends with a
// "closed" event when the session is closed.
func (s *DiscoveryServer) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Session(r.PathValue("id"), "stream")
	if err != nil {
		writeServiceError(w, err)
		return
	}

	rc := http.NewResponseController(w)
	client := sess.hub.subscribe(parseTopics(r.URL.Query().Get("topics")))
	defer sess.hub.unsubscribe(client)
	defer s.Presence.Watch(sess.ID)()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Warn("session stream cannot flush", "session", sess.ID, "error", err)
		return
	}

	// Last-Event-ID: 0 replays everything still retained.
	if raw := r.Header.Get("Last-Event-ID"); raw != "" {
		if lastID, err := strconv.ParseUint(raw, 10, 64); err == nil {
			for _, evt := range sess.hub.eventsSince(lastID) {
				if client.wants(evt.Topic) {
					writeSSEEvent(w, evt)
				}
			}
			_ = rc.Flush()
		}
	}

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()
	defer func() {
		if n := client.dropped.Load(); n > 0 {
			s.logger.Debug("session stream dropped events", "session", sess.ID, "dropped", n)
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sess.hub.done:
			fmt.Fprint(w, "event:closed\ndata:{}\n\n")
			_ = rc.Flush()
			return
		case evt := <-client.ch:
			writeSSEEvent(w, evt)
			_ = rc.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
			_ = rc.Flush()
		}
	}
}
