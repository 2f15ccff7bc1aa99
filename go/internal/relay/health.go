package relay

import (
	"context"
	"fmt"
	"time"
)

type HealthStatus struct {
	Healthy         bool      `json:"healthy"`
	LastEventTime   time.Time `json:"lastEventTime,omitzero"`
	EventsProcessed uint64    `json:"eventsProcessed"`
	EventsFailed    uint64    `json:"eventsFailed"`
	PendingEvents   int       `json:"pendingEvents"`
	NATSConnected   bool      `json:"natsConnected"`
	Errors          []string  `json:"errors"`
}

// connectionState is satisfied by *JetStreamPublisher
type connectionState interface {
	Connected() bool
}

type HealthChecker struct {
	worker *Worker
	conn   connectionState
	// backlog is the queue fill ratio above which the relay is unhealthy
	backlog float64
}

func NewHealthChecker(worker *Worker, conn connectionState) *HealthChecker {
	return &HealthChecker{worker: worker, conn: conn, backlog: 0.9}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}

	// Get worker stats
	status.EventsProcessed, status.EventsFailed, status.LastEventTime = h.worker.Stats()
	status.PendingEvents = len(h.worker.queue)

	// Check NATS connection
	if h.conn != nil {
		status.NATSConnected = h.conn.Connected()
		if !status.NATSConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	limit := int(float64(cap(h.worker.queue)) * h.backlog)
	if status.PendingEvents > limit {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("relay backlog %d of %d", status.PendingEvents, cap(h.worker.queue)))
	}

	if ctx.Err() != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, ctx.Err().Error())
	}

	return status
}
