package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// progressID is the primary key of the only progress row.
const progressID = 1

const selectProgress = `SELECT id, current_row, COALESCE(total_processed, 0), COALESCE(total_skipped, 0),
	pass_id, last_updated FROM classification_progress WHERE id = ?`

// LoadProgress returns the progress record, creating a zeroed one on first use.
// Creation is an insert that ignores an existing row, so repeated or racing
// calls never produce a second record.
func (s *store) LoadProgress(ctx context.Context) (*Progress, error) {
	p, err := s.getProgress(ctx)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(err, "loading progress")
	}

	_, err = s.q.ExecContext(ctx, s.q.Rebind(
		`INSERT INTO classification_progress
		(id, current_row, total_processed, total_skipped, pass_id, last_updated)
		VALUES (?, 0, 0, 0, ?, ?)
		ON CONFLICT (id) DO NOTHING`),
		progressID, uuid.NewString(), time.Now().UTC(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "creating progress")
	}

	p, err = s.getProgress(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "loading progress")
	}
	return p, nil
}

// SaveProgress writes the cursor, counters, pass and timestamp of p.
func (s *store) SaveProgress(ctx context.Context, p *Progress) error {
	res, err := s.q.ExecContext(ctx, s.q.Rebind(
		`UPDATE classification_progress
		SET current_row = ?, total_processed = ?, total_skipped = ?, pass_id = ?, last_updated = ?
		WHERE id = ?`),
		p.CurrentRow, p.TotalProcessed, p.TotalSkipped, p.PassID, p.LastUpdated.UTC(), progressID,
	)
	if err != nil {
		return errors.Wrap(err, "saving progress")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "saving progress")
	}
	if n == 0 {
		return errors.New("saving progress: no progress record")
	}
	return nil
}

func (s *store) getProgress(ctx context.Context) (*Progress, error) {
	var p Progress
	var updated sql.NullTime
	err := s.q.QueryRowxContext(ctx, s.q.Rebind(selectProgress), progressID).Scan(
		&p.ID, &p.CurrentRow, &p.TotalProcessed, &p.TotalSkipped, &p.PassID, &updated,
	)
	if err != nil {
		return nil, err
	}
	if updated.Valid {
		p.LastUpdated = updated.Time
	}
	return &p, nil
}
