package store

import (
	"fmt"
	"time"
)

// LogGatewayCall records a generation call for provenance tracking.
// Failures are ignored: the audit trail never blocks a call.
func (s *Store) LogGatewayCall(model, operation, outcome string, duration time.Duration) {
	now := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	s.db.Exec(
		`INSERT INTO gateway_audit (model, operation, outcome, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		model, operation, outcome, duration.Milliseconds(), now,
	)
}

// AuditEntry is one recorded generation call.
type AuditEntry struct {
	Model      string `json:"model"`
	Operation  string `json:"operation"`
	Outcome    string `json:"outcome"`
	DurationMs int64  `json:"duration_ms"`
	CreatedAt  string `json:"created_at"`
}

// RecentCalls returns up to limit audit entries, newest first.
func (s *Store) RecentCalls(limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT model, operation, outcome, duration_ms, created_at
		 FROM gateway_audit ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent calls: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.Model, &e.Operation, &e.Outcome, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("recent calls: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
