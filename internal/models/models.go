package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Ticket is a helpdesk ticket currently tracked for due-date monitoring.
// Timestamps are epoch milliseconds to match the persisted wire format.
type Ticket struct {
	ID        int64  `json:"id"`
	Account   string `json:"account"`
	Title     string `json:"title"`
	Number    int64  `json:"number"`
	Due       int64  `json:"due"`
	NotifTime int64  `json:"notifTime"`
	NotifID   string `json:"notifId,omitempty"`
}

// DueTime returns the due timestamp as a time.Time.
func (t Ticket) DueTime() time.Time {
	return time.UnixMilli(t.Due)
}

// FlexID is a numeric identifier that Autotask may serialize as either a
// JSON number or a numeric string. Non-numeric values decode to zero rather
// than failing the whole response.
type FlexID int64

func (f *FlexID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		s = strings.TrimSpace(str)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = FlexID(n)
		return nil
	}
	if fv, err := strconv.ParseFloat(s, 64); err == nil {
		*f = FlexID(int64(fv))
		return nil
	}
	*f = 0
	return nil
}

func (f FlexID) Int64() int64 {
	return int64(f)
}

// RemoteTicket is a ticket as returned by the Autotask query endpoint.
type RemoteTicket struct {
	ID          FlexID    `json:"id"`
	Title       string    `json:"title"`
	Number      FlexID    `json:"ticketNumber"`
	DueDateTime time.Time `json:"dueDateTime"`
	CompanyID   int64     `json:"companyID"`
	Status      int64     `json:"status"`
	QueueID     int64     `json:"queueID"`
}

// WorkSchedule restricts alerting to configured working days and hours.
// Days are keyed by lowercase weekday name. Start and End are "HH:MM"
// (24-hour, local time); End lexically before Start means the window wraps
// past midnight.
type WorkSchedule struct {
	Days  map[string]bool `json:"days" mapstructure:"days"`
	Hours ScheduleHours   `json:"hours" mapstructure:"hours"`
}

type ScheduleHours struct {
	Start string `json:"start" mapstructure:"start"`
	End   string `json:"end" mapstructure:"end"`
}

// DayEnabled reports whether the given weekday is flagged in the schedule.
func (s WorkSchedule) DayEnabled(w time.Weekday) bool {
	return s.Days[strings.ToLower(w.String())]
}

// FieldOption is one picklist entry of a ticket field.
type FieldOption struct {
	ID    int64
	Label string
}

// FieldMetadata holds the queue and status picklists used by the
// configuration workflow.
type FieldMetadata struct {
	Queues   []FieldOption
	Statuses []FieldOption
}

// RunStats summarizes one reconciliation cycle.
type RunStats struct {
	TicketsTracked    int
	TicketsAdded      int
	TicketsDropped    int
	NotificationsSent int
	Errors            int
	Duration          time.Duration
}

// GatewayError wraps a transport failure or non-2xx response from the
// Autotask API. Callers treat it as "no data this cycle", never as fatal.
type GatewayError struct {
	Op     string
	Status int
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("autotask %s: unexpected status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("autotask %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
