// Package dataset loads the ordered, read-only items presented for labeling.
package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
)

// Default column names of a dataset CSV.
const (
	DefaultTextColumn  = "text"
	DefaultLabelColumn = "label"
)

// Item is a single row to label. Position is its identity.
type Item struct {
	Position      int
	Text          string
	OriginalLabel *string
}

// LabelOrNA returns the original label, or "N/A" when absent.
func (it Item) LabelOrNA() string {
	if it.OriginalLabel == nil {
		return "N/A"
	}
	return *it.OriginalLabel
}

// Dataset is an immutable, position-addressed sequence of items.
type Dataset struct {
	items []Item
}

// Columns selects which CSV columns hold the text and the original label.
type Columns struct {
	Text  string
	Label string
}

// New builds a dataset from texts and optional labels. labels may be nil or
// shorter than texts; missing entries are absent labels.
func New(texts []string, labels []*string) *Dataset {
	items := make([]Item, len(texts))
	for i, text := range texts {
		items[i] = Item{Position: i, Text: text}
		if i < len(labels) {
			items[i].OriginalLabel = labels[i]
		}
	}
	return &Dataset{items: items}
}

// Load reads a dataset CSV file.
func Load(path string, cols Columns) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening dataset")
	}
	defer f.Close()

	ds, err := Read(f, cols)
	if err != nil {
		return nil, errors.Wrapf(err, "reading dataset %s", path)
	}
	return ds, nil
}

// Read parses a CSV stream with a header row. The text column must exist; a
// missing label column or an empty label cell means the label is absent.
func Read(r io.Reader, cols Columns) (*Dataset, error) {
	if cols.Text == "" {
		cols.Text = DefaultTextColumn
	}
	if cols.Label == "" {
		cols.Label = DefaultLabelColumn
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return &Dataset{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading header")
	}

	textIdx, labelIdx := -1, -1
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		switch name {
		case cols.Text:
			textIdx = i
		case cols.Label:
			labelIdx = i
		}
	}
	if textIdx < 0 {
		return nil, errors.Newf("text column %q not found in header %v", cols.Text, header)
	}

	ds := &Dataset{}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading row %d", len(ds.items))
		}

		item := Item{Position: len(ds.items)}
		if textIdx < len(rec) {
			item.Text = rec[textIdx]
		}
		if labelIdx >= 0 && labelIdx < len(rec) && rec[labelIdx] != "" {
			label := rec[labelIdx]
			item.OriginalLabel = &label
		}
		ds.items = append(ds.items, item)
	}
	return ds, nil
}

// Len returns the number of items.
func (d *Dataset) Len() int {
	return len(d.items)
}

// At returns the item at position i.
func (d *Dataset) At(i int) (Item, bool) {
	if i < 0 || i >= len(d.items) {
		return Item{}, false
	}
	return d.items[i], true
}

// Write emits items as a dataset CSV with the default header.
func Write(w io.Writer, items []Item) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{DefaultTextColumn, DefaultLabelColumn}); err != nil {
		return err
	}
	for _, it := range items {
		label := ""
		if it.OriginalLabel != nil {
			label = *it.OriginalLabel
		}
		if err := cw.Write([]string{it.Text, label}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
