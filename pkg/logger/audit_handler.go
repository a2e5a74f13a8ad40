// Package logger — audit_handler.go
//
// AuditHandler is an slog.Handler that asynchronously persists verification
// outcomes to a MongoDB collection, so every verdict the engine hands out
// leaves a queryable trail. It stays off the hot request path:
//
//   - Records are enqueued into a buffered channel (non-blocking).
//   - A single background goroutine drains the channel and performs
//     InsertMany in batches.
//   - If the channel is full the record is dropped; auditing must never
//     block a verification.
//   - Call Close() to flush and disconnect.
//
// Only records carrying a "verdict" attribute are persisted; everything
// else passes through untouched, which lets the handler sit inside a
// MultiHandler next to the console handler.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	auditQueueSize = 4096
	auditBatchSize = 50
	auditDrainTick = 2 * time.Second
)

// AuditRecord is the shape written to MongoDB. Verdict, product and caller
// are promoted to top-level fields so the collection can be indexed and
// filtered without digging through attrs.
type AuditRecord struct {
	Time      time.Time `bson:"time"`
	Verdict   string    `bson:"verdict"`
	ProductID uint64    `bson:"product_id,omitempty"`
	Caller    string    `bson:"caller,omitempty"`
	Role      string    `bson:"role,omitempty"`
	Reason    string    `bson:"reason,omitempty"`
	RequestID string    `bson:"request_id,omitempty"`
	Attrs     bson.M    `bson:"attrs,omitempty"`
}

// AuditHandler persists verdict-carrying slog records to MongoDB.
type AuditHandler struct {
	col    *mongo.Collection
	client *mongo.Client
	queue  chan AuditRecord
	done   chan struct{}
	attrs  []slog.Attr
}

// NewAuditHandler connects to uri and writes into db/collection. The caller
// must eventually call Close().
func NewAuditHandler(uri, db, collection string) (*AuditHandler, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOpts := options.Client().ApplyURI(uri).
		SetConnectTimeout(5 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("audit: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("audit: ping: %w", err)
	}

	col := client.Database(db).Collection(collection)
	_, _ = col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "time", Value: -1}}},
		{Keys: bson.D{{Key: "verdict", Value: 1}, {Key: "time", Value: -1}}},
		{Keys: bson.D{{Key: "product_id", Value: 1}}},
	})

	h := &AuditHandler{
		col:    col,
		client: client,
		queue:  make(chan AuditRecord, auditQueueSize),
		done:   make(chan struct{}),
	}
	go h.drainLoop()
	return h, nil
}

// ─── slog.Handler interface ───────────────────────────────────────────────────

func (h *AuditHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= slog.LevelInfo
}

func (h *AuditHandler) Handle(_ context.Context, r slog.Record) error {
	rec := AuditRecord{Time: r.Time, Attrs: bson.M{}}

	absorb := func(a slog.Attr) {
		switch a.Key {
		case "verdict":
			rec.Verdict = a.Value.String()
		case "product_id":
			if v, ok := a.Value.Any().(uint64); ok {
				rec.ProductID = v
			} else {
				rec.Attrs[a.Key] = a.Value.Any()
			}
		case "caller":
			rec.Caller = a.Value.String()
		case "role":
			rec.Role = a.Value.String()
		case "reason":
			rec.Reason = a.Value.String()
		case "request_id":
			rec.RequestID = a.Value.String()
		default:
			rec.Attrs[a.Key] = a.Value.Any()
		}
	}

	for _, a := range h.attrs {
		absorb(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		absorb(a)
		return true
	})

	// Not a verdict record; nothing to audit.
	if rec.Verdict == "" {
		return nil
	}

	select {
	case h.queue <- rec:
	default:
		// dropped rather than blocking the verification path
	}
	return nil
}

func (h *AuditHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	clone := *h
	clone.attrs = merged
	return &clone
}

func (h *AuditHandler) WithGroup(string) slog.Handler { return h }

// ─── Internals ────────────────────────────────────────────────────────────────

func (h *AuditHandler) drainLoop() {
	ticker := time.NewTicker(auditDrainTick)
	defer ticker.Stop()

	batch := make([]interface{}, 0, auditBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, _ = h.col.InsertMany(ctx, batch)
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case rec := <-h.queue:
			batch = append(batch, rec)
			if len(batch) >= auditBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-h.done:
			for len(h.queue) > 0 {
				batch = append(batch, <-h.queue)
			}
			flush()
			return
		}
	}
}

// Close flushes pending records and disconnects. Safe to call twice.
func (h *AuditHandler) Close() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = h.client.Disconnect(ctx)
}

// ─── Multi-handler fan-out ─────────────────────────────────────────────────────

// MultiHandler fans out to multiple slog.Handlers.
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler returns a handler that sends each record to all hs.
func NewMultiHandler(hs ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: hs}
}

func (m *MultiHandler) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			_ = h.Handle(ctx, r.Clone())
		}
	}
	return nil
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: hs}
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &MultiHandler{handlers: hs}
}
