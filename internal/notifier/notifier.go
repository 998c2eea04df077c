package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voicetel/autotask-notifier/internal/autotask"
	"github.com/voicetel/autotask-notifier/internal/config"
	"github.com/voicetel/autotask-notifier/internal/models"
	"github.com/voicetel/autotask-notifier/internal/notify"
)

// Gateway is the slice of the Autotask client a cycle needs.
type Gateway interface {
	QueryDueTickets(ctx context.Context, queues, statuses []int64, horizon time.Duration) ([]models.RemoteTicket, error)
	QueryCompanyName(ctx context.Context, companyID int64) (string, error)
}

// TicketStore persists the tracked ticket set between cycles.
type TicketStore interface {
	Load() ([]models.Ticket, error)
	Replace(tickets []models.Ticket) error
}

type cycleState string

const (
	stateIdle        cycleState = "idle"
	stateGating      cycleState = "gating"
	stateQuerying    cycleState = "querying"
	stateReconciling cycleState = "reconciling"
	stateNotifying   cycleState = "notifying"
	statePersisting  cycleState = "persisting"
)

// Notifier runs reconciliation cycles: gate, query, reconcile, notify,
// persist. The background trigger and the on-demand ticket fetch share the
// persisted set, so both paths hold the same mutex; a cycle's
// read-modify-write is atomic from any caller's perspective.
type Notifier struct {
	gateway Gateway
	store   TicketStore
	config  *config.Config
	sender  notify.Sender

	mu  sync.Mutex
	now func() time.Time
}

func New(gateway Gateway, store TicketStore, cfg *config.Config, sender notify.Sender) *Notifier {
	return &Notifier{
		gateway: gateway,
		store:   store,
		config:  cfg,
		sender:  sender,
		now:     time.Now,
	}
}

// RunCycle executes one reconciliation pass. Incomplete configuration or a
// closed work-schedule gate is a no-op, not an error. A gateway failure
// abandons the cycle without touching persisted state; the next tick
// re-reads and self-heals.
func (n *Notifier) RunCycle(ctx context.Context) (*models.RunStats, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	stats := &models.RunStats{}
	start := n.now()
	defer func() {
		stats.Duration = time.Since(start)
	}()

	n.setState(stateGating)
	defer n.setState(stateIdle)

	if !n.config.IsComplete() {
		slog.Debug("cycle skipped", "reason", "configuration incomplete")
		return stats, nil
	}
	if !IsAlertingAllowed(n.config.Schedule, start) {
		slog.Debug("cycle skipped", "reason", "outside work schedule")
		return stats, nil
	}

	n.setState(stateQuerying)
	remote, err := n.gateway.QueryDueTickets(ctx, n.config.Queues, n.config.Statuses, n.horizon())
	if err != nil {
		stats.Errors++
		return stats, fmt.Errorf("querying due tickets: %w", err)
	}

	stored, err := n.store.Load()
	if err != nil {
		stats.Errors++
		return stats, fmt.Errorf("loading tracked tickets: %w", err)
	}

	n.setState(stateReconciling)
	merged := Reconcile(ctx, stored, remote, n.gateway.QueryCompanyName)
	stats.TicketsTracked = len(merged)
	stats.TicketsAdded = added(stored, merged)
	stats.TicketsDropped = len(stored) + stats.TicketsAdded - len(merged)

	n.setState(stateNotifying)
	n.dispatch(merged, start, stats)

	n.setState(statePersisting)
	if err := n.store.Replace(merged); err != nil {
		stats.Errors++
		return stats, fmt.Errorf("persisting tracked tickets: %w", err)
	}

	return stats, nil
}

// FetchTickets serves the on-demand "get-tickets" query: it reconciles the
// tracked set against the remote one, persists it and returns it. No
// notifications are dispatched and the work-schedule gate does not apply.
func (n *Notifier) FetchTickets(ctx context.Context) ([]models.Ticket, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.config.IsComplete() {
		return nil, config.ErrIncomplete
	}

	remote, err := n.gateway.QueryDueTickets(ctx, n.config.Queues, n.config.Statuses, n.horizon())
	if err != nil {
		return nil, fmt.Errorf("querying due tickets: %w", err)
	}

	stored, err := n.store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading tracked tickets: %w", err)
	}

	merged := Reconcile(ctx, stored, remote, n.gateway.QueryCompanyName)
	if err := n.store.Replace(merged); err != nil {
		return nil, fmt.Errorf("persisting tracked tickets: %w", err)
	}

	return merged, nil
}

// dispatch emits one notification per ticket outside its debounce window
// and records the send time and handle on the ticket, in place.
func (n *Notifier) dispatch(tickets []models.Ticket, now time.Time, stats *models.RunStats) {
	nowMillis := now.UnixMilli()
	debounce := n.debounce().Milliseconds()

	for i := range tickets {
		t := &tickets[i]
		if nowMillis-t.NotifTime < debounce {
			continue
		}

		if n.config.DryRun {
			slog.Info("dry run: would notify", "ticket", t.Number, "title", t.Title)
			t.NotifTime = nowMillis
			stats.NotificationsSent++
			continue
		}

		id, err := n.sender.Send(notify.Notification{
			Title: notificationTitle(*t, now),
			Body:  t.Title,
			Link:  autotask.TicketURL(n.config.Autotask.Region, t.ID),
		})
		if err != nil {
			slog.Error("failed to send notification", "ticket", t.Number, "error", err)
			stats.Errors++
			continue
		}

		t.NotifTime = nowMillis
		t.NotifID = id
		stats.NotificationsSent++
		slog.Debug("notification sent", "ticket", t.Number, "notif_id", id)
	}
}

// notificationTitle states how far the ticket is from its due time, in
// whole hours and minutes.
func notificationTitle(t models.Ticket, now time.Time) string {
	diff := t.Due - now.UnixMilli()
	overdue := diff <= 0
	if overdue {
		diff = -diff
	}

	hours := diff / time.Hour.Milliseconds()
	minutes := (diff % time.Hour.Milliseconds()) / time.Minute.Milliseconds()

	if overdue {
		return fmt.Sprintf("Ticket #%d due %dh%dm ago", t.Number, hours, minutes)
	}
	return fmt.Sprintf("Ticket #%d due in %dh%dm", t.Number, hours, minutes)
}

func (n *Notifier) horizon() time.Duration {
	if n.config.Horizon > 0 {
		return n.config.Horizon
	}
	return time.Hour
}

func (n *Notifier) debounce() time.Duration {
	if n.config.DebounceWindow > 0 {
		return n.config.DebounceWindow
	}
	return 15 * time.Minute
}

func (n *Notifier) setState(s cycleState) {
	slog.Debug("cycle_state", "state", string(s))
}

func added(stored, merged []models.Ticket) int {
	count := 0
	for _, t := range merged {
		if !hasTicket(stored, t.ID) {
			count++
		}
	}
	return count
}
