package models

import "time"

// Run statuses recorded in the history ledger.
const (
	StatusSuccess           = "success"
	StatusSuccessWithErrors = "success_with_errors"
	StatusFallback          = "fallback"
	StatusError             = "error"
)

// Pattern origins.
const (
	OriginOracle   = "oracle"
	OriginUser     = "user"
	OriginHistory  = "history"
	OriginStatic   = "static"
	OriginFallback = "fallback"
)

// RawDocument is one ingested log record. Fields holds the raw document
// body; the configured source field carries the log text, everything else
// is copy-through.
type RawDocument struct {
	Group  string
	Seq    int64
	Fields map[string]string
}

// ParsedDocument is the structured result of applying a pattern.
type ParsedDocument struct {
	Sink   string
	Group  string
	Seq    int64
	Fields map[string]string
}

// UnparsedDocument is a document that failed extraction or was routed to
// the failure sink by a fallback pattern.
type UnparsedDocument struct {
	Sink   string
	Group  string
	Seq    int64
	Raw    string
	Reason string
}

// GroupInfo describes one log source known to the store.
type GroupInfo struct {
	Name     string `json:"name"`
	DocCount int64  `json:"doc_count"`
}

// RunRecord is one immutable history ledger entry, written exactly once
// per pipeline run.
type RunRecord struct {
	ID           string    `json:"id"`
	Group        string    `json:"group"`
	Timestamp    time.Time `json:"timestamp"`
	Status       string    `json:"status"`
	Pattern      string    `json:"pattern"`
	Origin       string    `json:"origin"`
	Score        float64   `json:"score"`
	Fallback     bool      `json:"fallback"`
	Scanned      int64     `json:"scanned"`
	Parsed       int64     `json:"parsed"`
	Failed       int64     `json:"failed"`
	Mismatched   int64     `json:"mismatched"`
	SinkErrors   int64     `json:"sink_errors"`
	ParsedSink   string    `json:"parsed_sink"`
	UnparsedSink string    `json:"unparsed_sink"`
	Error        string    `json:"error,omitempty"`
}

// ParsedSinkName returns the success sink for a group. Sink names are a
// deterministic function of the group name.
func ParsedSinkName(group string) string {
	return group + "_parsed"
}

// UnparsedSinkName returns the failure sink for a group.
func UnparsedSinkName(group string) string {
	return group + "_unparsed"
}
