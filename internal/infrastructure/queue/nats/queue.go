package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/plant-catalogue/internal/infrastructure/resilience"
)

const (
	DefaultEntryCreatedSubject = "catalogue.entry.created"
	DefaultReconcileSubject    = "catalogue.reconcile"

	reconcileQueueGroup = "reconcilers"
)

// EntryCreated is the payload published after a record is persisted.
type EntryCreated struct {
	EntryID    string    `json:"entry_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ReconcileRequest asks a worker to run the reconciliation job.
type ReconcileRequest struct {
	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}

type Queue struct {
	conn             *nats.Conn
	entryCreated     string
	reconcileSubject string
	executor         *resilience.Executor
	logger           *slog.Logger
	now              func() time.Time
}

type Options struct {
	Name                 string
	EntryCreatedSubject  string
	ReconcileSubject     string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url string, options Options) (*Queue, error) {
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
	name := options.Name
	if name == "" {
		name = "plant-catalogue"
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "queue.nats")

	conn, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:             conn,
		entryCreated:     withDefault(options.EntryCreatedSubject, DefaultEntryCreatedSubject),
		reconcileSubject: withDefault(options.ReconcileSubject, DefaultReconcileSubject),
		executor:         options.ResilienceExecutor,
		logger:           logger,
		now:              time.Now,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishEntryCreated(ctx context.Context, entryID string) error {
	return q.publish(ctx, q.entryCreated, EntryCreated{EntryID: entryID, OccurredAt: q.now().UTC()})
}

func (q *Queue) RequestReconcile(ctx context.Context, requestedBy string) error {
	return q.publish(ctx, q.reconcileSubject, ReconcileRequest{RequestedBy: requestedBy, RequestedAt: q.now().UTC()})
}

func (q *Queue) publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", subject, err)
	}
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, data); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(err)
}

// SubscribeReconcileRequests runs handler for every request received by this
// member of the queue group and blocks until ctx is done.
func (q *Queue) SubscribeReconcileRequests(ctx context.Context, handler func(context.Context, ReconcileRequest) error) error {
	sub, err := q.conn.QueueSubscribe(q.reconcileSubject, reconcileQueueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		req, err := decodeReconcileRequest(msg.Data)
		if err != nil {
			q.logger.Warn("reconcile_request_invalid", "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, req); err != nil {
			q.logger.Error("reconcile_request_failed", "requested_by", req.RequestedBy, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// An empty body is accepted so that `nats pub catalogue.reconcile ""` works.
func decodeReconcileRequest(data []byte) (ReconcileRequest, error) {
	var req ReconcileRequest
	if len(data) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return ReconcileRequest{}, fmt.Errorf("decode reconcile request: %w", err)
	}
	return req, nil
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
