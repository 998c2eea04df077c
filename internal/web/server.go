package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/voicetel/autotask-notifier/internal/autotask"
	"github.com/voicetel/autotask-notifier/internal/config"
	"github.com/voicetel/autotask-notifier/internal/models"
)

//go:embed templates/*
var templateFS embed.FS

// TicketService runs the on-demand ticket query behind the panel.
type TicketService interface {
	FetchTickets(ctx context.Context) ([]models.Ticket, error)
}

// NotificationResolver maps a dispatched notification handle back to its
// ticket.
type NotificationResolver interface {
	FindByNotifID(notifID string) (*models.Ticket, error)
}

type Server struct {
	tickets  TicketService
	resolver NotificationResolver
	region   int
	router   *http.ServeMux
}

func NewServer(tickets TicketService, resolver NotificationResolver, region int) *Server {
	s := &Server{
		tickets:  tickets,
		resolver: resolver,
		region:   region,
		router:   http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/", s.handleIndex)
	s.router.HandleFunc("/api/tickets", s.handleTickets)
	s.router.HandleFunc("/open", s.handleOpen)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type ticketsResponse struct {
	Region  int             `json:"region"`
	Tickets []models.Ticket `json:"tickets"`
}

// handleTickets serves the panel's 5-second refresh. Misconfiguration and
// gateway failures come back as one synthetic error ticket rather than an
// HTTP error, so the panel always has something to render.
func (s *Server) handleTickets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tickets, err := s.tickets.FetchTickets(r.Context())
	if err != nil {
		message := "Failed fetching tickets, check configuration and credentials"
		if errors.Is(err, config.ErrIncomplete) {
			message = "Configure Autotask credentials, queues and statuses before use"
		} else {
			slog.Error("on-demand ticket fetch failed", "error", err)
		}
		s.writeJSON(w, ticketsResponse{
			Region: 0,
			Tickets: []models.Ticket{{
				ID:      0,
				Account: "Error",
				Title:   message,
				Number:  0,
				Due:     time.Now().UnixMilli(),
			}},
		})
		return
	}

	if tickets == nil {
		tickets = []models.Ticket{}
	}
	s.writeJSON(w, ticketsResponse{Region: s.region, Tickets: tickets})
}

// handleOpen resolves a notification handle to its ticket and redirects to
// the Autotask detail page.
func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	notifID := r.URL.Query().Get("notification")
	if notifID == "" {
		http.Error(w, "missing notification parameter", http.StatusBadRequest)
		return
	}

	ticket, err := s.resolver.FindByNotifID(notifID)
	if err != nil {
		slog.Error("notification lookup failed", "error", err)
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	if ticket == nil {
		http.Error(w, "unknown notification", http.StatusNotFound)
		return
	}

	http.Redirect(w, r, autotask.TicketURL(s.region, ticket.ID), http.StatusFound)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.renderTemplate(w, "panel.html", nil)
}

func (s *Server) renderTemplate(w http.ResponseWriter, name string, data interface{}) {
	tmpl, err := template.ParseFS(templateFS, "templates/"+name)
	if err != nil {
		http.Error(w, "Template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Render error: "+err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
