package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Channel is one subscriber connection. Implementations must be safe for
// concurrent use; the hub calls Send and Ping from different goroutines.
type Channel interface {
	Send(msg Message) error
	Ping() error
	Close() error
}

// Hub tracks subscribers per job and broadcasts messages to them.
// A channel whose Send or Ping fails is pruned and closed.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[Channel]struct{}
	logger *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[uuid.UUID]map[Channel]struct{}),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Subscribe registers ch for updates about jobID.
func (h *Hub) Subscribe(jobID uuid.UUID, ch Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[Channel]struct{})
	}
	h.subs[jobID][ch] = struct{}{}
	h.logger.Debug("subscriber added", "job_id", jobID, "subscribers", len(h.subs[jobID]))
}

// Unsubscribe removes ch and closes it. Unknown channels are a no-op.
func (h *Hub) Unsubscribe(jobID uuid.UUID, ch Channel) {
	h.mu.Lock()
	set, ok := h.subs[jobID]
	if ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(h.subs, jobID)
		}
	}
	h.mu.Unlock()
	if ok {
		_ = ch.Close()
		h.logger.Debug("subscriber removed", "job_id", jobID)
	}
}

// Broadcast sends msg to every subscriber of msg.JobID. Channels that fail
// to accept the message are removed.
func (h *Hub) Broadcast(msg Message) {
	h.mu.RLock()
	set := h.subs[msg.JobID]
	channels := make([]Channel, 0, len(set))
	for ch := range set {
		channels = append(channels, ch)
	}
	h.mu.RUnlock()

	var dead []Channel
	for _, ch := range channels {
		if err := ch.Send(msg); err != nil {
			h.logger.Warn("dropping subscriber after failed send",
				"job_id", msg.JobID, "type", msg.Type, "error", err)
			dead = append(dead, ch)
		}
	}
	for _, ch := range dead {
		h.Unsubscribe(msg.JobID, ch)
	}
}

// SubscriberCount reports the number of channels subscribed to jobID.
func (h *Hub) SubscriberCount(jobID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[jobID])
}

// TotalSubscribers reports the number of channels across all jobs.
func (h *Hub) TotalSubscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, set := range h.subs {
		total += len(set)
	}
	return total
}

// RunKeepalive pings every subscriber at the given interval until Close is
// called. Channels that fail a ping are pruned. Run in its own goroutine.
func (h *Hub) RunKeepalive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.pingAll()
		}
	}
}

func (h *Hub) pingAll() {
	type sub struct {
		jobID uuid.UUID
		ch    Channel
	}
	h.mu.RLock()
	var all []sub
	for jobID, set := range h.subs {
		for ch := range set {
			all = append(all, sub{jobID, ch})
		}
	}
	h.mu.RUnlock()

	for _, s := range all {
		if err := s.ch.Ping(); err != nil {
			h.logger.Warn("dropping subscriber after failed ping", "job_id", s.jobID, "error", err)
			h.Unsubscribe(s.jobID, s.ch)
		}
	}
}

// Close stops the keepalive loop and closes every subscriber.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })

	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[uuid.UUID]map[Channel]struct{})
	h.mu.Unlock()

	for _, set := range subs {
		for ch := range set {
			_ = ch.Close()
		}
	}
}
