package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/triage-ai/inspection/internal/metrics"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

// Open parses dsn and returns a pinged ClickHouse connection. TLS is
// enabled unless the DSN already configures it.
func Open(ctx context.Context, dsn string) (driver.Conn, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	return conn, nil
}

// ClickHouseWriter writes inspection events to ClickHouse asynchronously.
// Write() is non-blocking; events are buffered and batch-inserted in a background goroutine.
type ClickHouseWriter struct {
	conn    driver.Conn
	buffer  chan *InspectionEvent
	done    chan struct{}
	flushed chan struct{} // closed by flushLoop when it returns
	logger  *zap.Logger
}

// NewClickHouseWriter connects, ensures the events table exists and starts
// the background flush loop.
func NewClickHouseWriter(ctx context.Context, dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	conn, err := Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := EnsureSchema(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	w := &ClickHouseWriter{
		conn:    conn,
		buffer:  make(chan *InspectionEvent, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}

	go w.flushLoop()
	return w, nil
}

// Write queues an event for async insertion.
// Non-blocking: drops the event if the buffer is full.
func (w *ClickHouseWriter) Write(event *InspectionEvent) {
	select {
	case w.buffer <- event:
	default:
		metrics.EventsDropped.Inc()
		w.logger.Warn("clickhouse buffer full, dropping event",
			zap.String("request_id", event.RequestID),
		)
	}
}

// Close drains buffered events (up to drainTimeout) and closes the
// connection. Safe to call once.
func (w *ClickHouseWriter) Close() {
	close(w.done)
	<-w.flushed
	if err := w.conn.Close(); err != nil {
		w.logger.Warn("clickhouse close failed", zap.Error(err))
	}
}

func (w *ClickHouseWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*InspectionEvent, 0, flushBatch)

	for {
		select {
		case event := <-w.buffer:
			batch = append(batch, event)
			if len(batch) >= flushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case event := <-w.buffer:
					batch = append(batch, event)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

func (w *ClickHouseWriter) flush(events []*InspectionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO inspection_events (
			request_id, timestamp, caller_id, user_id, source,
			prompt_hash, prompt_size, allowed, reason, max_severity,
			finding_types, finding_severities, finding_categories, finding_detectors,
			failed_detector, latency_ms, policy_source
		)
	`)
	if err != nil {
		w.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, e := range events {
		var allowed uint8
		if e.Allowed {
			allowed = 1
		}

		if err := batch.Append(
			e.RequestID,
			e.Timestamp,
			e.CallerID,
			e.UserID,
			e.Source,
			e.PromptHash,
			e.PromptSize,
			allowed,
			e.Reason,
			e.MaxSeverity,
			e.FindingTypes,
			e.FindingSeverities,
			e.FindingCategories,
			e.FindingDetectors,
			e.FailedDetector,
			e.LatencyMs,
			e.PolicySource,
		); err != nil {
			w.logger.Error("clickhouse append event failed",
				zap.String("request_id", e.RequestID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		w.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(events)),
			zap.Error(err),
		)
	}
}

// LogWriter is a fallback EventWriter for local development.
// It logs events as structured JSON via zap.
type LogWriter struct {
	logger *zap.Logger
}

func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *InspectionEvent) {
	w.logger.Info("inspection_event",
		zap.String("request_id", event.RequestID),
		zap.String("caller_id", event.CallerID),
		zap.String("user_id", event.UserID),
		zap.String("source", event.Source),
		zap.Bool("allowed", event.Allowed),
		zap.String("reason", event.Reason),
		zap.String("max_severity", event.MaxSeverity),
		zap.Strings("finding_types", event.FindingTypes),
		zap.String("failed_detector", event.FailedDetector),
		zap.String("prompt_hash", event.PromptHash),
		zap.Uint32("prompt_size", event.PromptSize),
		zap.Float32("latency_ms", event.LatencyMs),
	)
}

func (w *LogWriter) Close() {}
