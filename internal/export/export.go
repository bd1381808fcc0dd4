// Package export writes recorded submissions as CSV or JSON.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/TobiSchelling/labeldesk/internal/database"
)

// Formats accepted by Write.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

var csvHeader = []string{"id", "text", "category", "platform", "status", "row", "pass_id", "timestamp"}

// Supported reports whether Write understands format.
func Supported(format string) bool {
	return format == FormatCSV || format == FormatJSON
}

// Write emits subs in the named format.
func Write(w io.Writer, format string, subs []database.Submission) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, subs)
	case FormatJSON:
		return WriteJSON(w, subs)
	}
	return errors.Newf("unknown export format %q (want csv or json)", format)
}

// WriteCSV writes one row per submission. An unknown dataset row is left empty.
func WriteCSV(w io.Writer, subs []database.Submission) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, s := range subs {
		row := ""
		if s.Row >= 0 {
			row = strconv.Itoa(s.Row)
		}
		rec := []string{
			strconv.FormatInt(s.ID, 10),
			s.Text,
			string(s.Category),
			s.Platform,
			s.Status,
			row,
			s.PassID,
			s.Timestamp.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes submissions as an indented JSON array.
func WriteJSON(w io.Writer, subs []database.Submission) error {
	if subs == nil {
		subs = []database.Submission{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(subs)
}
