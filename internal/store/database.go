package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"taxquery-backend/internal/conversation"
	"taxquery-backend/internal/db"
)

// DatabaseStore stores conversation transcripts in PostgreSQL
type DatabaseStore struct {
	db *db.DB
}

// NewDatabaseStore creates a new database store
func NewDatabaseStore(database *db.DB) *DatabaseStore {
	return &DatabaseStore{db: database}
}

// AppendEntry inserts one transcript entry; an existing position is left as is.
func (ds *DatabaseStore) AppendEntry(ctx context.Context, sessionID string, position int, e conversation.Entry) error {
	if !validSessionID(sessionID) {
		return ErrInvalidSessionID
	}

	// nil stays SQL NULL; JSON is sent as text so pq does not encode it as bytea
	var metricValue any
	if e.MetricValue != nil {
		b, err := json.Marshal(e.MetricValue)
		if err != nil {
			return fmt.Errorf("failed to encode metric value: %w", err)
		}
		metricValue = string(b)
	}

	query := `
		INSERT INTO conversation_entries
			(session_id, position, entry_id, role, source, text, metric_label, metric_value, detailed_breakdown, year, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (session_id, position) DO NOTHING
	`
	_, err := ds.db.ExecContext(ctx, query,
		sessionID,
		position,
		e.ID,
		string(e.Role),
		string(e.Source),
		e.Text,
		nullString(e.MetricLabel),
		metricValue,
		nullString(e.DetailedBreakdown),
		nullInt(e.Year),
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save conversation entry: %w", err)
	}
	return nil
}

// LoadEntries retrieves the transcript of a session in position order
func (ds *DatabaseStore) LoadEntries(ctx context.Context, sessionID string) ([]conversation.Entry, error) {
	if !validSessionID(sessionID) {
		return nil, ErrInvalidSessionID
	}

	query := `
		SELECT entry_id, role, source, text, metric_label, metric_value, detailed_breakdown, year, created_at
		FROM conversation_entries
		WHERE session_id = $1
		ORDER BY position
	`
	rows, err := ds.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation entries: %w", err)
	}
	defer rows.Close()

	var entries []conversation.Entry
	for rows.Next() {
		var (
			e           conversation.Entry
			role        string
			source      string
			label       sql.NullString
			metricValue []byte
			breakdown   sql.NullString
			year        sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &role, &source, &e.Text, &label, &metricValue, &breakdown, &year, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation entry: %w", err)
		}
		e.Role = conversation.Role(role)
		e.Source = conversation.Source(source)
		if label.Valid {
			e.MetricLabel = &label.String
		}
		if breakdown.Valid {
			e.DetailedBreakdown = &breakdown.String
		}
		if year.Valid {
			y := int(year.Int64)
			e.Year = &y
		}
		if len(metricValue) > 0 {
			dec := json.NewDecoder(bytes.NewReader(metricValue))
			dec.UseNumber()
			if err := dec.Decode(&e.MetricValue); err != nil {
				return nil, fmt.Errorf("failed to decode metric value: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load conversation entries: %w", err)
	}
	return entries, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}
