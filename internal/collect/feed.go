package collect

import (
	"context"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
)

const maxPerFeed = 50

// FeedEntry represents a parsed feed entry.
type FeedEntry struct {
	URL       string
	Title     string
	Published time.Time // zero when the feed carries no date
	Content   string
	Source    string
}

// Text is the string presented to the labeler: the title, followed by the
// body when the feed carries one that is not just a repeat of the title.
func (e FeedEntry) Text() string {
	if e.Content == "" || e.Content == e.Title {
		return e.Title
	}
	if strings.HasPrefix(e.Content, e.Title) {
		return e.Content
	}
	return e.Title + "\n\n" + e.Content
}

// FeedConfig represents a single feed configuration.
type FeedConfig struct {
	URL  string
	Name string
}

// FeedParser parses RSS/Atom feeds.
type FeedParser struct {
	feeds  []FeedConfig
	parser *gofeed.Parser
	log    *zap.Logger
}

// NewFeedParser creates a new FeedParser.
func NewFeedParser(feeds []FeedConfig, log *zap.Logger) *FeedParser {
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	return &FeedParser{feeds: feeds, parser: parser, log: log}
}

// ParseAll parses all configured feeds. A feed that fails is logged and
// skipped; the others still contribute.
func (fp *FeedParser) ParseAll(ctx context.Context) []FeedEntry {
	var all []FeedEntry
	for _, fc := range fp.feeds {
		name := fc.Name
		if name == "" {
			name = extractSourceName(fc.URL)
		}

		entries, err := fp.parseFeed(ctx, fc.URL, name)
		if err != nil {
			fp.log.Warn("failed to parse feed", zap.String("url", fc.URL), zap.Error(err))
			continue
		}
		all = append(all, entries...)
		fp.log.Info("parsed feed", zap.String("source", name), zap.Int("entries", len(entries)))
	}
	return all
}

func (fp *FeedParser) parseFeed(ctx context.Context, feedURL, sourceName string) ([]FeedEntry, error) {
	feed, err := fp.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, err
	}

	var entries []FeedEntry
	for _, item := range feed.Items {
		if len(entries) >= maxPerFeed {
			break
		}
		if entry := parseItem(item, sourceName); entry != nil {
			entries = append(entries, *entry)
		}
	}
	return entries, nil
}

func parseItem(item *gofeed.Item, source string) *FeedEntry {
	itemURL := item.Link
	if itemURL == "" {
		itemURL = item.GUID
	}
	if itemURL == "" {
		return nil
	}

	title := stripHTML(item.Title)
	if title == "" {
		return nil
	}

	var published time.Time
	if item.PublishedParsed != nil {
		published = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		published = *item.UpdatedParsed
	}

	var content string
	if item.Content != "" {
		content = stripHTML(item.Content)
	} else if item.Description != "" {
		content = stripHTML(item.Description)
	}

	return &FeedEntry{
		URL:       itemURL,
		Title:     title,
		Published: published,
		Content:   content,
		Source:    source,
	}
}

func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(html.UnescapeString(result.String())), " ")
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "old.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	name := host
	if len(parts) >= 2 {
		name = parts[len(parts)-2]
	}
	if path := strings.Trim(u.Path, "/"); strings.HasPrefix(path, "r/") {
		// Subreddit feeds are named by community.
		sub, _, _ := strings.Cut(strings.TrimPrefix(path, "r/"), "/")
		return "r/" + sub
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
