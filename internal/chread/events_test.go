package chread

import (
	"database/sql"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

func TestListFilter_Empty(t *testing.T) {
	where, args := listFilter(ListEventsParams{})
	if where != "1 = 1" {
		t.Errorf("unexpected where %q", where)
	}
	if len(args) != 0 {
		t.Errorf("expected no args, got %d", len(args))
	}
}

func TestListFilter_AllFilters(t *testing.T) {
	allowed := false
	user := "u-1"
	source := "chat"
	typ := "pii_email"
	sev := "high"
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	where, args := listFilter(ListEventsParams{
		CallerID:    "caller-1",
		Allowed:     &allowed,
		UserID:      &user,
		Source:      &source,
		FindingType: &typ,
		Severity:    &sev,
		StartTime:   &start,
		EndTime:     &end,
	})

	for _, want := range []string{
		"caller_id = @caller_id",
		"allowed = @allowed",
		"user_id = @user_id",
		"source = @source",
		"has(finding_types, @finding_type)",
		"has(finding_severities, @severity)",
		"timestamp >= @start_time",
		"timestamp <= @end_time",
	} {
		if !strings.Contains(where, want) {
			t.Errorf("where clause %q missing %q", where, want)
		}
	}
	if len(args) != 8 {
		t.Fatalf("expected 8 args, got %d", len(args))
	}
	if fmt.Sprint(args[1]) != fmt.Sprint(clickhouse.Named("allowed", uint8(0))) {
		t.Errorf("allowed filter not encoded as UInt8: %v", args[1])
	}
}

func TestSafeFloat(t *testing.T) {
	if safeFloat(math.NaN()) != 0 || safeFloat(math.Inf(1)) != 0 {
		t.Error("expected NaN and Inf to map to 0")
	}
	if safeFloat(1.5) != 1.5 {
		t.Error("expected finite values to pass through")
	}
}

type rowStub struct {
	values []any
	err    error
}

func (r rowStub) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *uint8:
			*p = r.values[i].(uint8)
		case *uint32:
			*p = r.values[i].(uint32)
		case *float32:
			*p = r.values[i].(float32)
		case *time.Time:
			*p = r.values[i].(time.Time)
		case *[]string:
			*p = r.values[i].([]string)
		}
	}
	return nil
}

func TestScanEvent(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e, err := scanEvent(rowStub{values: []any{
		"req-1", ts, "caller-1", "u-1", "chat",
		"abc", uint32(36), uint8(0), "blocked: secret_aws_access_key", "high",
		[]string{"secret_aws_access_key"}, []string{"high"}, []string{"secret"}, []string{"secret_scanner"},
		"", float32(1.5), "embedded:policy.yml",
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.RequestID != "req-1" || e.Allowed || e.PromptSize != 36 || e.MaxSeverity != "high" {
		t.Errorf("unexpected row %+v", e)
	}
	if len(e.FindingTypes) != 1 || e.FindingDetectors[0] != "secret_scanner" {
		t.Errorf("unexpected arrays %+v", e)
	}
}

func TestIsNoRows(t *testing.T) {
	if !isNoRows(fmt.Errorf("wrapped: %w", sql.ErrNoRows)) {
		t.Error("expected wrapped sql.ErrNoRows to match")
	}
	if isNoRows(fmt.Errorf("other")) {
		t.Error("unexpected match")
	}
}
