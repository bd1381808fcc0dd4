package database

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
)

// AppendSubmission inserts a submission and returns its assigned ID.
func (s *store) AppendSubmission(ctx context.Context, sub *Submission) (int64, error) {
	var id int64
	err := s.q.QueryRowxContext(ctx, s.q.Rebind(
		`INSERT INTO submissions (text, category, platform, status, row_index, pass_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		sub.Text, string(sub.Category), sub.Platform, sub.Status, sub.Row, sub.PassID, sub.Timestamp.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "saving submission")
	}
	sub.ID = id
	return id, nil
}

// CountByCategory returns the number of submissions per category over all time.
func (s *store) CountByCategory(ctx context.Context) (map[Category]int, error) {
	return s.countByCategory(ctx, `SELECT category, COUNT(id) FROM submissions GROUP BY category`)
}

// CountByCategoryForPass returns the number of submissions per category made
// during the given labeling pass.
func (s *store) CountByCategoryForPass(ctx context.Context, passID string) (map[Category]int, error) {
	return s.countByCategory(ctx,
		`SELECT category, COUNT(id) FROM submissions WHERE pass_id = ? GROUP BY category`, passID)
}

// CountSubmissions returns the total number of submissions.
func (s *store) CountSubmissions(ctx context.Context) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, s.q, &n, `SELECT COUNT(*) FROM submissions`); err != nil {
		return 0, errors.Wrap(err, "counting submissions")
	}
	return n, nil
}

// ListSubmissions returns all submissions in insertion order.
func (s *store) ListSubmissions(ctx context.Context) ([]Submission, error) {
	var subs []Submission
	err := sqlx.SelectContext(ctx, s.q, &subs,
		`SELECT id, text, category, platform, COALESCE(status, 'pending') AS status,
		COALESCE(row_index, -1) AS row_index, pass_id, timestamp
		FROM submissions ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "listing submissions")
	}
	return subs, nil
}

func (s *store) countByCategory(ctx context.Context, query string, args ...any) (map[Category]int, error) {
	rows, err := s.q.QueryxContext(ctx, s.q.Rebind(query), args...)
	if err != nil {
		return nil, errors.Wrap(err, "counting by category")
	}
	defer rows.Close()

	counts := make(map[Category]int)
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, errors.Wrap(err, "counting by category")
		}
		counts[Category(cat)] = n
	}
	return counts, errors.Wrap(rows.Err(), "counting by category")
}
