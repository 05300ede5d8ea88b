package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
	"github.com/kirillkom/findoc-assistant/internal/infrastructure/resilience"
)

// StatusBus publishes document status events and relays them back to local listeners,
// so every API process can push updates to the live connections it holds.
type StatusBus struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func Connect(url, subject string, options Options) (*StatusBus, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("findoc-assistant"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &StatusBus{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
	}, nil
}

func (b *StatusBus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

// DocumentStatusChanged publishes the event; it satisfies ports.StatusNotifier.
func (b *StatusBus) DocumentStatusChanged(ctx context.Context, event domain.StatusEvent) error {
	payload, err := encodeStatusEvent(event)
	if err != nil {
		return err
	}
	call := func(_ context.Context) error {
		if err := b.conn.Publish(b.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if b.executor != nil {
		err = b.executor.Do(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// Listen relays every event on the subject to handler until ctx is done. Each process
// subscribes on its own, without a queue group, because each one holds different clients.
func (b *StatusBus) Listen(ctx context.Context, handler func(context.Context, domain.StatusEvent) error) error {
	sub, err := b.conn.Subscribe(b.subject, func(msg *nats.Msg) {
		relay(ctx, msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := b.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func relay(ctx context.Context, data []byte, handler func(context.Context, domain.StatusEvent) error) {
	if ctx.Err() != nil {
		return
	}
	event, err := decodeStatusEvent(data)
	if err != nil {
		slog.Warn("nats_status_event_dropped", "error", err)
		return
	}
	if err := handler(ctx, event); err != nil {
		slog.Warn("nats_status_event_handler_failed", "document_id", event.DocumentID, "error", err)
	}
}

func encodeStatusEvent(event domain.StatusEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal status event: %w", err)
	}
	return payload, nil
}

func decodeStatusEvent(data []byte) (domain.StatusEvent, error) {
	var event domain.StatusEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.StatusEvent{}, domain.WrapError(domain.ErrInvalidInput, "decode status event", err)
	}
	if event.DocumentID == "" || !event.Status.Valid() {
		return domain.StatusEvent{}, domain.WrapError(domain.ErrInvalidInput, "decode status event", fmt.Errorf("incomplete event %q", string(data)))
	}
	return event, nil
}
