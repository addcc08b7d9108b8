package storage

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// EventsTable is the ClickHouse table holding inspection events.
const EventsTable = "inspection_events"

const createEventsTable = `
CREATE TABLE IF NOT EXISTS inspection_events (
	request_id         String,
	timestamp          DateTime64(3, 'UTC'),
	caller_id          String,
	user_id            String,
	source             String,
	prompt_hash        FixedString(64),
	prompt_size        UInt32,
	allowed            UInt8,
	reason             String,
	max_severity       LowCardinality(String),
	finding_types      Array(LowCardinality(String)),
	finding_severities Array(LowCardinality(String)),
	finding_categories Array(LowCardinality(String)),
	finding_detectors  Array(LowCardinality(String)),
	failed_detector    LowCardinality(String),
	latency_ms         Float32,
	policy_source      String
)
ENGINE = MergeTree
PARTITION BY toYYYYMM(timestamp)
ORDER BY (timestamp, request_id)
TTL toDateTime(timestamp) + INTERVAL 90 DAY
`

// EnsureSchema creates the events table when it does not exist.
func EnsureSchema(ctx context.Context, conn driver.Conn) error {
	if err := conn.Exec(ctx, createEventsTable); err != nil {
		return fmt.Errorf("create %s: %w", EventsTable, err)
	}
	return nil
}
