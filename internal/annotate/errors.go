package annotate

import "github.com/cockroachdb/errors"

// Errors returned by Controller operations. Test with errors.Is.
var (
	// ErrInvalidCategory rejects a category outside the fixed set, before any write.
	ErrInvalidCategory = errors.New("invalid category")
	// ErrOutOfRange rejects a jump target outside [0, dataset length).
	ErrOutOfRange = errors.New("row out of range")
	// ErrComplete rejects classify and skip once every row has been processed.
	ErrComplete = errors.New("all rows processed")
	// ErrStaleRow rejects an action aimed at a row that is no longer current.
	ErrStaleRow = errors.New("row is no longer current")
	// ErrStoreUnavailable marks a failed read or write of the store. The
	// driver error stays in the chain.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// isRejection reports whether err is one of the request-level rejections,
// as opposed to a store failure.
func isRejection(err error) bool {
	return errors.IsAny(err, ErrInvalidCategory, ErrOutOfRange, ErrComplete, ErrStaleRow)
}
