package tui

import "github.com/mmcdole/mediasync/internal/domain"

// Message types for the TUI

// ErrMsg represents an error
type ErrMsg struct {
	Err     error
	Context string
}

// Error implements the error interface
func (e ErrMsg) Error() string {
	if e.Context != "" {
		return e.Context + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// CollectionChangedMsg carries a snapshot from the broadcaster.
// A nil Records means the session ended.
type CollectionChangedMsg struct {
	Records domain.MediaCollection
}

// SubscriptionClosedMsg signals the broadcaster was closed
type SubscriptionClosedMsg struct{}

// RecordDeletedMsg signals that a record was deleted
type RecordDeletedMsg struct {
	Record domain.MediaRecord
}

// RefreshedMsg signals that a fetch completed
type RefreshedMsg struct {
	Count int
}

// TickMsg drives the spinner animation
type TickMsg struct{}
