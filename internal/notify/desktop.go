package notify

import (
	"fmt"

	"github.com/gen2brain/beeep"
	"github.com/google/uuid"
)

// DesktopSender emits OS-level desktop notifications. The ticket link rides
// in the notification body; clicking through goes via the panel's /open
// endpoint, which resolves the handle back to the ticket.
type DesktopSender struct{}

func NewDesktopSender() *DesktopSender {
	return &DesktopSender{}
}

func (s *DesktopSender) Send(n Notification) (string, error) {
	body := n.Body
	if n.Link != "" {
		body += "\n" + n.Link
	}
	if err := beeep.Notify(n.Title, body, ""); err != nil {
		return "", fmt.Errorf("desktop notification failed: %w", err)
	}
	return uuid.NewString(), nil
}

// NopSender swallows notifications. Used when delivery is disabled; the
// debounce bookkeeping still runs so enabling delivery later does not dump
// a backlog of stale alerts.
type NopSender struct{}

func (NopSender) Send(n Notification) (string, error) {
	return uuid.NewString(), nil
}
