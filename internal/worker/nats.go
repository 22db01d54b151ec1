package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const natsQueueGroup = "extraction-workers"

// NATSDispatcher publishes job ids to a subject consumed by a queue group,
// so API replicas and worker processes can be scaled independently.
type NATSDispatcher struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

func NewNATSDispatcher(url, subject string, logger *slog.Logger) (*NATSDispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(
		url,
		nats.Name("climate-tracker"),
		nats.Timeout(2*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(60),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSDispatcher{conn: conn, subject: subject, logger: logger}, nil
}

func (d *NATSDispatcher) Close() {
	if d.conn != nil {
		d.conn.Close()
	}
}

func (d *NATSDispatcher) Dispatch(_ context.Context, jobID uuid.UUID) error {
	if err := d.conn.Publish(d.subject, []byte(jobID.String())); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Consume runs handler for every job id delivered to this member of the
// queue group until ctx is cancelled, then drains in-flight messages.
func (d *NATSDispatcher) Consume(ctx context.Context, handler Handler) error {
	sub, err := d.conn.QueueSubscribe(d.subject, natsQueueGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		jobID, err := uuid.ParseBytes(msg.Data)
		if err != nil {
			d.logger.Warn("discarding malformed job message", "payload", string(msg.Data), "error", err)
			return
		}
		handler(context.WithoutCancel(ctx), jobID)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := d.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	d.logger.Info("consuming extraction jobs", "subject", d.subject, "queue", natsQueueGroup)

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := d.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
