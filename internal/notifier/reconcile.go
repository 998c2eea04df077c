package notifier

import (
	"context"
	"sort"

	"github.com/voicetel/autotask-notifier/internal/models"
)

// CompanyLookup resolves a company id to its display name. A failed or
// empty lookup degrades to "" and never aborts reconciliation.
type CompanyLookup func(ctx context.Context, companyID int64) (string, error)

// Reconcile merges a freshly queried ticket set into the stored one.
//
// Stored tickets found in the remote set keep their notification bookkeeping
// and take title and due from the remote record, which is authoritative.
// Stored tickets absent from the remote set are dropped: they have either
// been completed or are no longer due soon, and tracking them further has no
// value. Remote tickets not yet tracked become new entries, enriched with
// their company name one lookup at a time in remote order (the upstream API
// forbids concurrent calls). The result is sorted ascending by due time.
func Reconcile(ctx context.Context, stored []models.Ticket, remote []models.RemoteTicket, lookup CompanyLookup) []models.Ticket {
	merged := make([]models.Ticket, 0, len(remote))

	for _, t := range stored {
		r, ok := findRemote(remote, t.ID)
		if !ok {
			continue
		}
		t.Title = r.Title
		t.Due = r.DueDateTime.UnixMilli()
		merged = append(merged, t)
	}

	for _, r := range remote {
		if hasTicket(merged, r.ID.Int64()) {
			continue
		}
		account := ""
		if lookup != nil {
			name, err := lookup(ctx, r.CompanyID)
			if err == nil {
				account = name
			}
		}
		merged = append(merged, models.Ticket{
			ID:      r.ID.Int64(),
			Account: account,
			Title:   r.Title,
			Number:  r.Number.Int64(),
			Due:     r.DueDateTime.UnixMilli(),
		})
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Due < merged[j].Due
	})
	return merged
}

func findRemote(remote []models.RemoteTicket, id int64) (models.RemoteTicket, bool) {
	for _, r := range remote {
		if r.ID.Int64() == id {
			return r, true
		}
	}
	return models.RemoteTicket{}, false
}

func hasTicket(tickets []models.Ticket, id int64) bool {
	for _, t := range tickets {
		if t.ID == id {
			return true
		}
	}
	return false
}
