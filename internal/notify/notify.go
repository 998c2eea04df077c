package notify

// Notification is one user-facing alert about a tracked ticket.
type Notification struct {
	Title string
	Body  string
	// Link is the ticket's Autotask detail URL ("Open Ticket").
	Link string
}

// Sender delivers a notification and returns a handle identifying the
// dispatched instance.
type Sender interface {
	Send(n Notification) (string, error)
}
