package store

import (
	"database/sql"
	"fmt"

	"github.com/BTreeMap/PostPipe/internal/models"
)

// nilIfEmpty maps an empty string to SQL NULL.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const sessionColumns = `id, stage, iteration_count, reviewer, state, created_at, updated_at`

func scanSession(row rowScanner) (models.Session, error) {
	var (
		sess     models.Session
		reviewer sql.NullString
		state    []byte
	)
	if err := row.Scan(&sess.ID, &sess.Stage, &sess.IterationCount, &reviewer, &state, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return models.Session{}, err
	}
	sess.Reviewer = reviewer.String
	sess.State = state
	return sess, nil
}

func querySessions(db *sql.DB, query string) ([]models.Session, error) {
	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	return sessions, nil
}

func queryReceipts(db *sql.DB) ([]models.Receipt, error) {
	rows, err := db.Query(`SELECT recipient, status, time FROM receipts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	var receipts []models.Receipt
	for rows.Next() {
		var r models.Receipt
		if err := rows.Scan(&r.To, &r.Status, &r.Time); err != nil {
			return nil, fmt.Errorf("failed to scan receipt row: %w", err)
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipt rows: %w", err)
	}
	return receipts, nil
}

func queryResponses(db *sql.DB) ([]models.Response, error) {
	rows, err := db.Query(`SELECT sender, body, time FROM responses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query responses: %w", err)
	}
	defer rows.Close()

	var responses []models.Response
	for rows.Next() {
		var r models.Response
		if err := rows.Scan(&r.From, &r.Body, &r.Time); err != nil {
			return nil, fmt.Errorf("failed to scan response row: %w", err)
		}
		responses = append(responses, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate response rows: %w", err)
	}
	return responses, nil
}
