package feed

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable matches any transport failure talking to the
	// remote store. Callers should offer a retry.
	ErrStoreUnavailable = errors.New("feed: store unavailable")

	// ErrNothingToPage is returned when pagination is requested for an
	// empty displayed list.
	ErrNothingToPage = errors.New("feed: nothing to page from")

	// ErrViewerRequired is returned when an operation needs a viewer id.
	ErrViewerRequired = errors.New("feed: viewer id required")

	// ErrMembershipTooLarge is returned by stores when a membership query
	// carries more ids than the store accepts.
	ErrMembershipTooLarge = errors.New("feed: membership set exceeds batch limit")

	ErrSelfFollow       = errors.New("feed: cannot follow yourself")
	ErrAlreadyFollowing = errors.New("feed: already following")
	ErrNotFollowing     = errors.New("feed: not following")
)

// StoreError wraps a failed remote store operation. It matches
// ErrStoreUnavailable with errors.Is.
type StoreError struct {
	Op  string
	Err error
}

// Unavailable wraps err as a StoreError for op.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("feed: store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// DecodeError reports a single stored document that could not be turned
// into a Post. The document is skipped; the page it belongs to is not failed.
type DecodeError struct {
	DocumentID string
	Reason     string
	Err        error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("feed: decode document %q: %s: %v", e.DocumentID, e.Reason, e.Err)
	}
	return fmt.Sprintf("feed: decode document %q: %s", e.DocumentID, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// CheckPost validates the fields the engine relies on for ordering and
// deduplication.
func CheckPost(p Post) error {
	switch {
	case p.ID == "":
		return &DecodeError{DocumentID: p.ID, Reason: "missing id"}
	case p.AuthorID == "":
		return &DecodeError{DocumentID: p.ID, Reason: "missing author"}
	case p.CreatedAt.IsZero():
		return &DecodeError{DocumentID: p.ID, Reason: "missing created_at"}
	}
	return nil
}
