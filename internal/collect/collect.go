// Package collect builds dataset snapshots from RSS/Atom feeds.
package collect

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/TobiSchelling/labeldesk/internal/config"
	"github.com/TobiSchelling/labeldesk/internal/dataset"
	"github.com/TobiSchelling/labeldesk/internal/fetch"
)

const userAgent = "labeldesk/1.0 (annotation dataset collector)"

// TextFetcher returns the full text of a page.
type TextFetcher interface {
	Text(ctx context.Context, pageURL string) (string, error)
}

// Result holds the results of a collection run.
type Result struct {
	TotalFound int
	Kept       int
	Duplicates int
	TooShort   int
	FullText   int
	Sources    map[string]int
}

// Collector turns feed entries into dataset items.
type Collector struct {
	feedParser *FeedParser
	fetcher    TextFetcher
	minLength  int
	label      *string
	log        *zap.Logger
}

// NewCollector creates a collector for the configured feeds. Full-text
// fetching is enabled by collect.fetch_full_text.
func NewCollector(cfg *config.Config, log *zap.Logger) *Collector {
	feeds := make([]FeedConfig, len(cfg.Collect.Feeds))
	for i, f := range cfg.Collect.Feeds {
		feeds[i] = FeedConfig{URL: f.URL, Name: f.Name}
	}

	c := &Collector{
		feedParser: NewFeedParser(feeds, log),
		minLength:  cfg.Collect.MinTextLength,
		log:        log,
	}
	if cfg.Collect.FetchFullText {
		c.fetcher = fetch.NewContentFetcher(15*time.Second, userAgent, log)
	}
	if cfg.Collect.Label != "" {
		label := cfg.Collect.Label
		c.label = &label
	}
	return c
}

// Collect parses every feed and returns deduplicated items in feed order.
func (c *Collector) Collect(ctx context.Context) ([]dataset.Item, *Result) {
	r := &Result{Sources: make(map[string]int)}
	entries := c.feedParser.ParseAll(ctx)
	r.TotalFound = len(entries)
	return c.build(ctx, entries, r), r
}

func (c *Collector) build(ctx context.Context, entries []FeedEntry, r *Result) []dataset.Item {
	seen := make(map[string]struct{}, len(entries))
	var items []dataset.Item

	for _, entry := range entries {
		if _, dup := seen[entry.URL]; dup {
			r.Duplicates++
			continue
		}
		seen[entry.URL] = struct{}{}

		if c.fetcher != nil && len(entry.Content) < fetch.MinTextLength {
			text, err := c.fetcher.Text(ctx, entry.URL)
			if err != nil {
				c.log.Debug("full text unavailable", zap.String("url", entry.URL), zap.Error(err))
			} else {
				entry.Content = text
				r.FullText++
			}
		}

		text := entry.Text()
		if len(text) < c.minLength {
			r.TooShort++
			continue
		}

		items = append(items, dataset.Item{
			Position:      len(items),
			Text:          text,
			OriginalLabel: c.label,
		})
		r.Sources[entry.Source]++
	}
	r.Kept = len(items)

	c.log.Info("collection complete",
		zap.Int("found", r.TotalFound),
		zap.Int("kept", r.Kept),
		zap.Int("duplicates", r.Duplicates),
		zap.Int("too_short", r.TooShort),
	)
	return items
}

// WriteSnapshot writes items as a new dataset CSV. An existing file is never
// overwritten, and a failed write leaves no file behind.
func WriteSnapshot(path string, items []dataset.Item) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "creating snapshot directory")
	}
	return writeExclusive(path, func(w io.Writer) error {
		return dataset.Write(w, items)
	})
}

func writeExclusive(path string, write func(io.Writer) error) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return errors.Newf("%s already exists; choose a new snapshot path", path)
		}
		return errors.Wrap(err, "creating snapshot")
	}
	err = write(f)
	if cerr := f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err == nil {
		return nil
	}
	err = errors.Wrap(err, "writing snapshot")
	if rerr := os.Remove(path); rerr != nil {
		err = errors.WithSecondaryError(err, rerr)
	}
	return err
}
