package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/mediasync/internal/domain"
)

const requestTimeout = 30 * time.Second

// Command factories for async operations

// WaitForChangeCmd blocks until the broadcaster delivers the next snapshot
func WaitForChangeCmd(updates <-chan domain.MediaCollection) tea.Cmd {
	return func() tea.Msg {
		coll, ok := <-updates
		if !ok {
			return SubscriptionClosedMsg{}
		}
		return CollectionChangedMsg{Records: coll}
	}
}

// RefreshCmd reloads the collection; the new list arrives via the broadcaster
func RefreshCmd(c Catalog) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		coll, err := c.Fetch(ctx)
		if err != nil {
			return ErrMsg{Err: err, Context: "refreshing"}
		}
		return RefreshedMsg{Count: len(coll)}
	}
}

// DeleteCmd removes a record
func DeleteCmd(c Catalog, record domain.MediaRecord) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		if err := c.Delete(ctx, record); err != nil {
			return ErrMsg{Err: err, Context: "deleting " + record.Name}
		}
		return RecordDeletedMsg{Record: record}
	}
}

// ClearStatusCmd clears the status message after a delay
func ClearStatusCmd(delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(time.Time) tea.Msg {
		return clearStatusMsg{}
	})
}

type clearStatusMsg struct{}

// TickCmd schedules the next spinner frame
func TickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}
