// Package chread runs read queries over the inspection_events table.
package chread

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/triage-ai/inspection/internal/storage"
)

// Reader provides read access to the ClickHouse inspection_events table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(ctx context.Context, dsn string, logger *zap.Logger) (*Reader, error) {
	conn, err := storage.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	return &Reader{conn: conn, logger: logger}, nil
}

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// EventRow represents a single row from the inspection_events table.
type EventRow struct {
	RequestID         string    `json:"request_id"`
	Timestamp         time.Time `json:"timestamp"`
	CallerID          string    `json:"caller_id"`
	UserID            string    `json:"user_id"`
	Source            string    `json:"source"`
	PromptHash        string    `json:"prompt_hash"`
	PromptSize        uint32    `json:"prompt_size"`
	Allowed           bool      `json:"allowed"`
	Reason            string    `json:"reason"`
	MaxSeverity       string    `json:"max_severity"`
	FindingTypes      []string  `json:"finding_types"`
	FindingSeverities []string  `json:"finding_severities"`
	FindingCategories []string  `json:"finding_categories"`
	FindingDetectors  []string  `json:"finding_detectors"`
	FailedDetector    string    `json:"failed_detector,omitempty"`
	LatencyMs         float32   `json:"latency_ms"`
	PolicySource      string    `json:"policy_source"`
}

// ListEventsParams holds filters and pagination for event listing.
type ListEventsParams struct {
	CallerID    string
	Allowed     *bool
	UserID      *string
	Source      *string
	FindingType *string
	Severity    *string
	StartTime   *time.Time
	EndTime     *time.Time
	Page        int
	PageSize    int
}

const eventColumns = "request_id, timestamp, caller_id, user_id, source, prompt_hash, prompt_size, " +
	"allowed, reason, max_severity, finding_types, finding_severities, finding_categories, " +
	"finding_detectors, failed_detector, latency_ms, policy_source"

// listFilter builds the WHERE clause and named args for params.
func listFilter(params ListEventsParams) (string, []any) {
	conditions := []string{"1 = 1"}
	var args []any

	if params.CallerID != "" {
		conditions = append(conditions, "caller_id = @caller_id")
		args = append(args, clickhouse.Named("caller_id", params.CallerID))
	}
	if params.Allowed != nil {
		var v uint8
		if *params.Allowed {
			v = 1
		}
		conditions = append(conditions, "allowed = @allowed")
		args = append(args, clickhouse.Named("allowed", v))
	}
	if params.UserID != nil {
		conditions = append(conditions, "user_id = @user_id")
		args = append(args, clickhouse.Named("user_id", *params.UserID))
	}
	if params.Source != nil {
		conditions = append(conditions, "source = @source")
		args = append(args, clickhouse.Named("source", *params.Source))
	}
	if params.FindingType != nil {
		conditions = append(conditions, "has(finding_types, @finding_type)")
		args = append(args, clickhouse.Named("finding_type", *params.FindingType))
	}
	if params.Severity != nil {
		conditions = append(conditions, "has(finding_severities, @severity)")
		args = append(args, clickhouse.Named("severity", *params.Severity))
	}
	if params.StartTime != nil {
		conditions = append(conditions, "timestamp >= @start_time")
		args = append(args, clickhouse.Named("start_time", *params.StartTime))
	}
	if params.EndTime != nil {
		conditions = append(conditions, "timestamp <= @end_time")
		args = append(args, clickhouse.Named("end_time", *params.EndTime))
	}

	return strings.Join(conditions, " AND "), args
}

// ListEvents returns paginated, filtered events (newest first) and the total count.
func (r *Reader) ListEvents(ctx context.Context, params ListEventsParams) ([]EventRow, int, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = 50
	}
	where, args := listFilter(params)
	offset := (params.Page - 1) * params.PageSize

	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM %s WHERE %s", storage.EventsTable, where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListEvents count: %w", err)
	}

	dataQuery := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s ORDER BY timestamp DESC LIMIT @limit OFFSET @offset",
		eventColumns, storage.EventsTable, where,
	)
	args = append(args,
		clickhouse.Named("limit", uint32(params.PageSize)),
		clickhouse.Named("offset", uint32(offset)),
	)

	rows, err := r.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListEvents query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := []EventRow{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListEvents scan: %w", err)
		}
		events = append(events, e)
	}

	return events, int(total), rows.Err()
}

// GetEvent returns a single event by request ID, or nil if not found. A
// non-empty callerID restricts the lookup to that caller's events.
func (r *Reader) GetEvent(ctx context.Context, callerID, requestID string) (*EventRow, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE request_id = @request_id", eventColumns, storage.EventsTable)
	args := []any{clickhouse.Named("request_id", requestID)}
	if callerID != "" {
		query += " AND caller_id = @caller_id"
		args = append(args, clickhouse.Named("caller_id", callerID))
	}

	e, err := scanEvent(r.conn.QueryRow(ctx, query+" LIMIT 1", args...))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("GetEvent: %w", err)
	}
	if e.RequestID == "" {
		return nil, nil
	}
	return &e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (EventRow, error) {
	var e EventRow
	var allowed uint8
	err := s.Scan(
		&e.RequestID, &e.Timestamp, &e.CallerID, &e.UserID, &e.Source,
		&e.PromptHash, &e.PromptSize, &allowed, &e.Reason, &e.MaxSeverity,
		&e.FindingTypes, &e.FindingSeverities, &e.FindingCategories, &e.FindingDetectors,
		&e.FailedDetector, &e.LatencyMs, &e.PolicySource,
	)
	e.Allowed = allowed == 1
	return e, err
}

// SummaryStats holds aggregate counts.
type SummaryStats struct {
	TotalInspections int `json:"total_inspections"`
	Blocked          int `json:"blocked"`
	Flagged          int `json:"flagged"`
	Clean            int `json:"clean"`
	Failed           int `json:"failed"`
}

// TimeSeriesBucket holds an hourly count.
type TimeSeriesBucket struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// TypeCount holds a finding type and its count.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// SeverityCount holds a severity and its count.
type SeverityCount struct {
	Severity string `json:"severity"`
	Count    int    `json:"count"`
}

// LatencyStats holds latency percentiles.
type LatencyStats struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// UserCount holds a user_id and its count.
type UserCount struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

// AnalyticsResult holds all analytics aggregations.
type AnalyticsResult struct {
	Summary            SummaryStats       `json:"summary"`
	BlocksOverTime     []TimeSeriesBucket `json:"blocks_over_time"`
	TopFindingTypes    []TypeCount        `json:"top_finding_types"`
	SeverityBreakdown  []SeverityCount    `json:"severity_breakdown"`
	LatencyPercentiles LatencyStats       `json:"latency_percentiles"`
	TopBlockedUsers    []UserCount        `json:"top_blocked_users"`
}

// GetAnalytics returns aggregated analytics over the given number of days.
// A non-empty callerID restricts every aggregation to that caller.
func (r *Reader) GetAnalytics(ctx context.Context, callerID string, days int) (*AnalyticsResult, error) {
	now := time.Now().UTC()
	rangeStart := now.Add(-time.Duration(days) * 24 * time.Hour)
	dayStart := now.Add(-24 * time.Hour)

	scope := "timestamp >= @range_start"
	baseArgs := []any{clickhouse.Named("range_start", rangeStart)}
	if callerID != "" {
		scope += " AND caller_id = @caller_id"
		baseArgs = append(baseArgs, clickhouse.Named("caller_id", callerID))
	}

	result := &AnalyticsResult{}

	var total, blocked, flagged, clean, failed uint64
	err := r.conn.QueryRow(ctx,
		"SELECT count() AS total, "+
			"countIf(allowed = 0 AND failed_detector = '') AS blocked, "+
			"countIf(allowed = 1 AND length(finding_types) > 0) AS flagged, "+
			"countIf(allowed = 1 AND length(finding_types) = 0) AS clean, "+
			"countIf(failed_detector != '') AS failed "+
			"FROM "+storage.EventsTable+" WHERE "+scope,
		baseArgs...,
	).Scan(&total, &blocked, &flagged, &clean, &failed)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics summary: %w", err)
	}
	result.Summary = SummaryStats{
		TotalInspections: int(total),
		Blocked:          int(blocked),
		Flagged:          int(flagged),
		Clean:            int(clean),
		Failed:           int(failed),
	}

	botRows, err := r.conn.Query(ctx,
		"SELECT toStartOfHour(timestamp) AS hour, count() AS count "+
			"FROM "+storage.EventsTable+" WHERE "+scope+" AND allowed = 0 AND failed_detector = '' "+
			"GROUP BY hour ORDER BY hour",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics blocks_over_time: %w", err)
	}
	defer func() { _ = botRows.Close() }()
	for botRows.Next() {
		var hour time.Time
		var count uint64
		if err := botRows.Scan(&hour, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics blocks_over_time scan: %w", err)
		}
		result.BlocksOverTime = append(result.BlocksOverTime, TimeSeriesBucket{
			Hour:  hour.Format(time.RFC3339),
			Count: int(count),
		})
	}

	typeRows, err := r.conn.Query(ctx,
		"SELECT arrayJoin(finding_types) AS type, count() AS count "+
			"FROM "+storage.EventsTable+" WHERE "+scope+" "+
			"GROUP BY type ORDER BY count DESC LIMIT 10",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics top_finding_types: %w", err)
	}
	defer func() { _ = typeRows.Close() }()
	for typeRows.Next() {
		var typ string
		var count uint64
		if err := typeRows.Scan(&typ, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics top_finding_types scan: %w", err)
		}
		result.TopFindingTypes = append(result.TopFindingTypes, TypeCount{Type: typ, Count: int(count)})
	}

	sevRows, err := r.conn.Query(ctx,
		"SELECT arrayJoin(finding_severities) AS severity, count() AS count "+
			"FROM "+storage.EventsTable+" WHERE "+scope+" "+
			"GROUP BY severity ORDER BY count DESC",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics severity_breakdown: %w", err)
	}
	defer func() { _ = sevRows.Close() }()
	for sevRows.Next() {
		var sev string
		var count uint64
		if err := sevRows.Scan(&sev, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics severity_breakdown scan: %w", err)
		}
		result.SeverityBreakdown = append(result.SeverityBreakdown, SeverityCount{Severity: sev, Count: int(count)})
	}

	// Latency percentiles (last 24h)
	latencyScope := "timestamp >= @day_start"
	latencyArgs := []any{clickhouse.Named("day_start", dayStart)}
	if callerID != "" {
		latencyScope += " AND caller_id = @caller_id"
		latencyArgs = append(latencyArgs, clickhouse.Named("caller_id", callerID))
	}
	var p50, p95, p99 float64
	err = r.conn.QueryRow(ctx,
		"SELECT quantile(0.5)(latency_ms) AS p50, "+
			"quantile(0.95)(latency_ms) AS p95, "+
			"quantile(0.99)(latency_ms) AS p99 "+
			"FROM "+storage.EventsTable+" WHERE "+latencyScope,
		latencyArgs...,
	).Scan(&p50, &p95, &p99)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics latency: %w", err)
	}
	result.LatencyPercentiles = LatencyStats{
		P50: safeFloat(p50), P95: safeFloat(p95), P99: safeFloat(p99),
	}

	userRows, err := r.conn.Query(ctx,
		"SELECT user_id, count() AS count "+
			"FROM "+storage.EventsTable+" WHERE "+scope+" AND allowed = 0 AND user_id != '' "+
			"GROUP BY user_id ORDER BY count DESC LIMIT 10",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics top_users: %w", err)
	}
	defer func() { _ = userRows.Close() }()
	for userRows.Next() {
		var uid string
		var count uint64
		if err := userRows.Scan(&uid, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics top_users scan: %w", err)
		}
		result.TopBlockedUsers = append(result.TopBlockedUsers, UserCount{UserID: uid, Count: int(count)})
	}

	// Ensure slices are non-nil for JSON serialization
	if result.BlocksOverTime == nil {
		result.BlocksOverTime = []TimeSeriesBucket{}
	}
	if result.TopFindingTypes == nil {
		result.TopFindingTypes = []TypeCount{}
	}
	if result.SeverityBreakdown == nil {
		result.SeverityBreakdown = []SeverityCount{}
	}
	if result.TopBlockedUsers == nil {
		result.TopBlockedUsers = []UserCount{}
	}

	return result, nil
}

// safeFloat replaces NaN/Inf with 0.0.
// ClickHouse returns NaN for quantile() on empty result sets.
func safeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0.0
	}
	return f
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
