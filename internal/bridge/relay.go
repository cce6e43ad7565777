package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const sendTimeout = 15 * time.Second

// Relay drains queued outbound messages into the external platform. The
// queue is bounded; under sustained back-pressure the oldest entry is
// dropped so recent traffic keeps flowing. Delivery is best-effort.
type Relay struct {
	client Client
	queue  chan OutboundMessage
	logger *slog.Logger

	stop    chan struct{}
	wg      sync.WaitGroup
	started sync.Once
	stopped sync.Once
}

func NewRelay(log *slog.Logger, client Client, queueSize int) *Relay {
	if log == nil {
		log = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Relay{
		client: client,
		queue:  make(chan OutboundMessage, queueSize),
		logger: log.With(slog.String("service", "relay")),
		stop:   make(chan struct{}),
	}
}

// Enqueue queues a message for delivery. It never blocks; when the queue
// is full the oldest queued message is discarded to make room.
func (r *Relay) Enqueue(msg OutboundMessage) {
	for {
		select {
		case r.queue <- msg:
			return
		default:
		}
		select {
		case dropped := <-r.queue:
			r.logger.Warn("relay queue full, dropping oldest",
				"group_id", dropped.GroupID)
		default:
		}
	}
}

// Start launches the delivery worker.
func (r *Relay) Start() {
	r.started.Do(func() {
		r.wg.Add(1)
		go r.run()
	})
}

// Stop halts the delivery worker and waits for it to exit. Messages still
// queued at shutdown are dropped.
func (r *Relay) Stop() {
	r.stopped.Do(func() {
		close(r.stop)
	})
	r.wg.Wait()
}

func (r *Relay) run() {
	defer r.wg.Done()
	for {
		select {
		case <-r.stop:
			return
		case msg := <-r.queue:
			r.deliver(msg)
		}
	}
}

func (r *Relay) deliver(msg OutboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	text := msg.Body
	if msg.AuthorName != "" {
		text = msg.AuthorName + ": " + msg.Body
	}
	if err := r.client.SendMessage(ctx, msg.GroupID, text); err != nil {
		r.logger.Error("relay delivery failed",
			"group_id", msg.GroupID, "error", err)
	}
}
