// Package annotate implements the labeling workflow: presenting the item under
// the cursor, recording decisions, and keeping the cursor, the counters and the
// submission log consistent.
package annotate

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TobiSchelling/labeldesk/internal/database"
	"github.com/TobiSchelling/labeldesk/internal/dataset"
)

// AnyRow disables the stale-row check of ClassifyAt and SkipAt.
const AnyRow = -1

// Store is the persistence the controller needs. Every mutating operation runs
// inside one InTx call.
type Store interface {
	database.Queries
	InTx(ctx context.Context, fn func(q database.Queries) error) error
}

// Source is the dataset being labeled.
type Source interface {
	Len() int
	At(i int) (dataset.Item, bool)
}

// Options tunes a Controller. Zero values select defaults.
type Options struct {
	// Platform is the provenance tag stored on every submission.
	Platform string
	// Now returns the current time; defaults to time.Now.
	Now func() time.Time
	// NewPassID returns a fresh labeling-pass id; defaults to a random UUID.
	NewPassID func() string
}

// Controller orchestrates labeling decisions against a Store.
type Controller struct {
	mu       sync.Mutex
	store    Store
	items    Source
	platform string
	now      func() time.Time
	newPass  func() string
	log      *zap.Logger
}

// Result describes the state after a mutating operation.
type Result struct {
	Progress database.Progress
	// Item is the row that was classified or skipped.
	Item dataset.Item
	// SubmissionID is set only by Classify.
	SubmissionID int64
}

// Statistics aggregates progress and submission counts.
type Statistics struct {
	// CountsByCategory covers all submissions ever made, across resets.
	CountsByCategory map[database.Category]int `json:"counts_by_category"`
	// PassCountsByCategory covers the current labeling pass only.
	PassCountsByCategory map[database.Category]int `json:"pass_counts_by_category"`
	TotalSubmissions     int                       `json:"total_submissions"`
	Progress             database.Progress         `json:"progress"`
	TotalRows            int                       `json:"total_rows"`
	Remaining            int                       `json:"remaining"`
	PercentComplete      float64                   `json:"percent_complete"`
	Complete             bool                      `json:"complete"`
}

// New creates a controller over store and items.
func New(store Store, items Source, opts Options, log *zap.Logger) *Controller {
	c := &Controller{
		store:    store,
		items:    items,
		platform: opts.Platform,
		now:      opts.Now,
		newPass:  opts.NewPassID,
		log:      log,
	}
	if c.platform == "" {
		c.platform = database.DefaultPlatform
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newPass == nil {
		c.newPass = uuid.NewString
	}
	return c
}

// TotalRows returns the dataset length.
func (c *Controller) TotalRows() int {
	return c.items.Len()
}

// Current returns the item under the cursor. done is true once the cursor has
// reached the end of the dataset.
func (c *Controller) Current(ctx context.Context) (item dataset.Item, done bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.store.LoadProgress(ctx)
	if err != nil {
		return dataset.Item{}, false, markStore(err, "loading current item")
	}
	item, ok := c.items.At(p.CurrentRow)
	if !ok {
		return dataset.Item{}, true, nil
	}
	return item, false, nil
}

// Classify records category for the current item and advances the cursor.
func (c *Controller) Classify(ctx context.Context, category string) (*Result, error) {
	return c.ClassifyAt(ctx, AnyRow, category)
}

// ClassifyAt is Classify guarded by the row the caller saw: unless row is
// AnyRow, the call fails with ErrStaleRow when the cursor has moved.
func (c *Controller) ClassifyAt(ctx context.Context, row int, category string) (*Result, error) {
	cat := database.Category(category)
	if !cat.Valid() {
		return nil, errors.Wrapf(ErrInvalidCategory, "%q", category)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var res Result
	err := c.run(ctx, "classify", func(q database.Queries) error {
		p, err := q.LoadProgress(ctx)
		if err != nil {
			return err
		}
		item, err := c.itemAt(p, row)
		if err != nil {
			return err
		}

		now := c.now().UTC()
		id, err := q.AppendSubmission(ctx, &database.Submission{
			Text:      item.Text,
			Category:  cat,
			Platform:  c.platform,
			Status:    database.StatusPending,
			Row:       item.Position,
			PassID:    p.PassID,
			Timestamp: now,
		})
		if err != nil {
			return err
		}

		p.CurrentRow++
		p.TotalProcessed++
		p.LastUpdated = now
		if err := q.SaveProgress(ctx, p); err != nil {
			return err
		}
		res = Result{Progress: *p, Item: item, SubmissionID: id}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("classified",
		zap.Int("row", res.Item.Position),
		zap.String("category", string(cat)),
		zap.Int64("submission_id", res.SubmissionID),
		zap.Int("next_row", res.Progress.CurrentRow),
	)
	return &res, nil
}

// Skip advances the cursor past the current item without recording a submission.
func (c *Controller) Skip(ctx context.Context) (*Result, error) {
	return c.SkipAt(ctx, AnyRow)
}

// SkipAt is Skip guarded by the row the caller saw, like ClassifyAt.
func (c *Controller) SkipAt(ctx context.Context, row int) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var res Result
	err := c.run(ctx, "skip", func(q database.Queries) error {
		p, err := q.LoadProgress(ctx)
		if err != nil {
			return err
		}
		item, err := c.itemAt(p, row)
		if err != nil {
			return err
		}

		p.CurrentRow++
		p.TotalSkipped++
		p.LastUpdated = c.now().UTC()
		if err := q.SaveProgress(ctx, p); err != nil {
			return err
		}
		res = Result{Progress: *p, Item: item}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("skipped", zap.Int("row", res.Item.Position), zap.Int("next_row", res.Progress.CurrentRow))
	return &res, nil
}

// Reset moves the cursor back to the first row, zeroes the counters and starts
// a new labeling pass. Existing submissions are kept.
func (c *Controller) Reset(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var res Result
	err := c.run(ctx, "reset", func(q database.Queries) error {
		p, err := q.LoadProgress(ctx)
		if err != nil {
			return err
		}
		p.CurrentRow = 0
		p.TotalProcessed = 0
		p.TotalSkipped = 0
		p.PassID = c.newPass()
		p.LastUpdated = c.now().UTC()
		if err := q.SaveProgress(ctx, p); err != nil {
			return err
		}
		res = Result{Progress: *p}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("progress reset", zap.String("pass_id", res.Progress.PassID))
	return &res, nil
}

// JumpTo moves the cursor to row without touching the counters.
func (c *Controller) JumpTo(ctx context.Context, row int) (*Result, error) {
	if n := c.items.Len(); row < 0 || row >= n {
		return nil, errors.Wrapf(ErrOutOfRange, "row %d not in [0, %d)", row, n)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var res Result
	err := c.run(ctx, "jump", func(q database.Queries) error {
		p, err := q.LoadProgress(ctx)
		if err != nil {
			return err
		}
		from := p.CurrentRow
		p.CurrentRow = row
		p.LastUpdated = c.now().UTC()
		if err := q.SaveProgress(ctx, p); err != nil {
			return err
		}
		res = Result{Progress: *p}
		c.log.Info("cursor moved", zap.Int("from", from), zap.Int("to", row))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Statistics returns counts by category and the progress record, read in one
// transaction.
func (c *Controller) Statistics(ctx context.Context) (*Statistics, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.items.Len()
	stats := &Statistics{TotalRows: total}
	err := c.run(ctx, "statistics", func(q database.Queries) error {
		p, err := q.LoadProgress(ctx)
		if err != nil {
			return err
		}
		stats.Progress = *p

		if stats.CountsByCategory, err = q.CountByCategory(ctx); err != nil {
			return err
		}
		if stats.PassCountsByCategory, err = q.CountByCategoryForPass(ctx, p.PassID); err != nil {
			return err
		}
		stats.TotalSubmissions, err = q.CountSubmissions(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	cur := stats.Progress.CurrentRow
	stats.Complete = cur >= total
	stats.Remaining = max(total-cur, 0)
	if total > 0 {
		stats.PercentComplete = min(float64(cur)/float64(total)*100, 100)
	} else {
		stats.PercentComplete = 100
	}
	return stats, nil
}

// Submissions returns every recorded decision in insertion order.
func (c *Controller) Submissions(ctx context.Context) ([]database.Submission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	subs, err := c.store.ListSubmissions(ctx)
	if err != nil {
		return nil, markStore(err, "listing submissions")
	}
	return subs, nil
}

// itemAt returns the item under the cursor of p, enforcing the completion
// state and the caller's expected row.
func (c *Controller) itemAt(p *database.Progress, expect int) (dataset.Item, error) {
	item, ok := c.items.At(p.CurrentRow)
	if !ok {
		return dataset.Item{}, ErrComplete
	}
	if expect != AnyRow && expect != p.CurrentRow {
		return dataset.Item{}, errors.Wrapf(ErrStaleRow, "expected row %d, cursor is at %d", expect, p.CurrentRow)
	}
	return item, nil
}

// run executes fn in a transaction. Anything other than a request rejection
// comes back marked as ErrStoreUnavailable.
func (c *Controller) run(ctx context.Context, op string, fn func(q database.Queries) error) error {
	err := c.store.InTx(ctx, fn)
	if err == nil || isRejection(err) {
		return err
	}
	c.log.Error("store operation failed", zap.String("operation", op), zap.Error(err))
	return markStore(err, op)
}

func markStore(err error, op string) error {
	return errors.Mark(errors.Wrap(err, op), ErrStoreUnavailable)
}
