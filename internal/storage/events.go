package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// EventWriter persists inspection events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *InspectionEvent)
	Close()
}

// InspectionEvent is the stored record of one inspection. It never carries
// the prompt itself, only its hash and size.
type InspectionEvent struct {
	RequestID         string
	Timestamp         time.Time
	CallerID          string
	UserID            string
	Source            string
	PromptHash        string // hex SHA-256 of the prompt
	PromptSize        uint32 // bytes
	Allowed           bool
	Reason            string
	MaxSeverity       string
	FindingTypes      []string
	FindingSeverities []string
	FindingCategories []string
	FindingDetectors  []string
	FailedDetector    string // set when a detector error failed the request
	LatencyMs         float32
	PolicySource      string
}

// HashPrompt returns the hex SHA-256 of prompt.
func HashPrompt(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}
