package autotask

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/voicetel/autotask-notifier/internal/config"
	"github.com/voicetel/autotask-notifier/internal/models"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(config.AutotaskConfig{
		Region:             5,
		APIIntegrationCode: "integration-code",
		Username:           "api-user",
		Secret:             "api-secret",
	})
	c.baseURL = srv.URL
	return c
}

func TestQueryDueTicketsRequestShape(t *testing.T) {
	t.Parallel()
	var captured struct {
		Filter []struct {
			Op    string `json:"op"`
			Items []struct {
				Op    string          `json:"op"`
				Field string          `json:"field"`
				Value json.RawMessage `json:"value"`
				Items []struct {
					Op    string `json:"op"`
					Field string `json:"field"`
					Value int64  `json:"value"`
				} `json:"items"`
			} `json:"items"`
		} `json:"Filter"`
	}

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Tickets/query" {
			t.Errorf("path = %q, want /Tickets/query", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		for header, want := range map[string]string{
			"ApiIntegrationCode": "integration-code",
			"UserName":           "api-user",
			"Secret":             "api-secret",
			"Content-Type":       "application/json",
		} {
			if got := r.Header.Get(header); got != want {
				t.Errorf("header %s = %q, want %q", header, got, want)
			}
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		w.Write([]byte(`{"items": []}`))
	})

	if _, err := client.QueryDueTickets(context.Background(), []int64{8, 9}, []int64{1}, time.Hour); err != nil {
		t.Fatalf("QueryDueTickets: %v", err)
	}

	if len(captured.Filter) != 1 || captured.Filter[0].Op != "and" {
		t.Fatalf("top-level filter = %+v, want a single and node", captured.Filter)
	}
	branches := captured.Filter[0].Items
	if len(branches) != 3 {
		t.Fatalf("and node has %d branches, want 3", len(branches))
	}

	if branches[0].Op != "or" || len(branches[0].Items) != 2 || branches[0].Items[0].Field != "queueID" {
		t.Errorf("queue branch = %+v, want or over two queueID eq nodes", branches[0])
	}
	if branches[1].Op != "or" || len(branches[1].Items) != 1 || branches[1].Items[0].Field != "status" {
		t.Errorf("status branch = %+v, want or over one status eq node", branches[1])
	}
	if branches[2].Op != "lte" || branches[2].Field != "dueDateTime" {
		t.Errorf("due branch = %+v, want lte on dueDateTime", branches[2])
	}

	// The horizon bound is a UTC ISO-8601 timestamp.
	var dueLimit string
	if err := json.Unmarshal(branches[2].Value, &dueLimit); err != nil {
		t.Fatalf("dueDateTime value is not a string: %s", branches[2].Value)
	}
	if matched := regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z$`).MatchString(dueLimit); !matched {
		t.Errorf("dueDateTime value %q is not UTC ISO-8601", dueLimit)
	}
}

func TestQueryDueTicketsParsesLooseIDs(t *testing.T) {
	t.Parallel()
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items": [
			{"id": "123", "title": "string id", "ticketNumber": "T2026.0001", "dueDateTime": "2026-01-05T10:00:00Z", "companyID": 7},
			{"id": 456, "title": "numeric id", "ticketNumber": 9000, "dueDateTime": "2026-01-05T11:00:00Z", "companyID": 8}
		]}`))
	})

	tickets, err := client.QueryDueTickets(context.Background(), []int64{1}, []int64{1}, time.Hour)
	if err != nil {
		t.Fatalf("QueryDueTickets: %v", err)
	}
	if len(tickets) != 2 {
		t.Fatalf("got %d tickets, want 2", len(tickets))
	}
	if tickets[0].ID.Int64() != 123 {
		t.Errorf("string id parsed to %d, want 123", tickets[0].ID.Int64())
	}
	if tickets[0].Number.Int64() != 0 {
		t.Errorf("non-numeric ticketNumber parsed to %d, want 0", tickets[0].Number.Int64())
	}
	if tickets[1].ID.Int64() != 456 || tickets[1].Number.Int64() != 9000 {
		t.Errorf("numeric ticket = %+v, want id 456, number 9000", tickets[1])
	}
}

func TestQueryDueTicketsGatewayError(t *testing.T) {
	t.Parallel()
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	})

	_, err := client.QueryDueTickets(context.Background(), []int64{1}, []int64{1}, time.Hour)
	var gwErr *models.GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("error = %v, want GatewayError", err)
	}
	if gwErr.Status != http.StatusForbidden {
		t.Errorf("status = %d, want 403", gwErr.Status)
	}
}

func TestQueryCompanyName(t *testing.T) {
	t.Parallel()
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Companies/query" {
			t.Errorf("path = %q, want /Companies/query", r.URL.Path)
		}
		var req struct {
			Filter []struct {
				Op    string `json:"op"`
				Field string `json:"field"`
				Value int64  `json:"value"`
			} `json:"Filter"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if len(req.Filter) != 1 || req.Filter[0].Op != "eq" || req.Filter[0].Field != "id" || req.Filter[0].Value != 42 {
			t.Errorf("filter = %+v, want eq id 42", req.Filter)
		}
		w.Write([]byte(`{"items": [{"companyName": "Initech"}]}`))
	})

	name, err := client.QueryCompanyName(context.Background(), 42)
	if err != nil {
		t.Fatalf("QueryCompanyName: %v", err)
	}
	if name != "Initech" {
		t.Errorf("name = %q, want Initech", name)
	}
}

func TestQueryCompanyNameMissIsEmpty(t *testing.T) {
	t.Parallel()
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items": []}`))
	})

	name, err := client.QueryCompanyName(context.Background(), 42)
	if err != nil {
		t.Fatalf("QueryCompanyName: %v", err)
	}
	if name != "" {
		t.Errorf("name = %q, want empty for a lookup miss", name)
	}
}

func TestQueryFieldMetadata(t *testing.T) {
	t.Parallel()
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Tickets/entityInformation/fields" {
			t.Errorf("path = %q, want /Tickets/entityInformation/fields", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Errorf("method = %q, want GET", r.Method)
		}
		w.Write([]byte(`{"fields": [
			{"name": "queueID", "picklistValues": [
				{"value": "8", "label": "Support"},
				{"value": "9", "label": "Projects"}
			]},
			{"name": "status", "picklistValues": [
				{"value": "1", "label": "New"},
				{"value": "5", "label": "Complete"},
				{"value": "8", "label": "In Progress"}
			]}
		]}`))
	})

	meta, err := client.QueryFieldMetadata(context.Background())
	if err != nil {
		t.Fatalf("QueryFieldMetadata: %v", err)
	}
	if len(meta.Queues) != 2 || meta.Queues[0].ID != 8 || meta.Queues[0].Label != "Support" {
		t.Errorf("queues = %+v, want Support and Projects", meta.Queues)
	}
	if len(meta.Statuses) != 2 {
		t.Fatalf("statuses = %+v, want Complete filtered out", meta.Statuses)
	}
	for _, s := range meta.Statuses {
		if s.Label == "Complete" {
			t.Error("Complete status not filtered out")
		}
	}
}

func TestQueryFieldMetadataMissingFields(t *testing.T) {
	t.Parallel()
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"fields": [{"name": "priority", "picklistValues": []}]}`))
	})

	_, err := client.QueryFieldMetadata(context.Background())
	var gwErr *models.GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("error = %v, want GatewayError for missing picklists", err)
	}
}

func TestEndpointRegional(t *testing.T) {
	t.Parallel()
	c := NewClient(config.AutotaskConfig{Region: 14})
	want := "https://webservices14.autotask.net/ATServicesRest/V1.0/Tickets/query"
	if got := c.endpoint("Tickets/query"); got != want {
		t.Errorf("endpoint = %q, want %q", got, want)
	}
}

func TestTicketURL(t *testing.T) {
	t.Parallel()
	want := "https://ww5.autotask.net/Autotask/AutotaskExtend/ExecuteCommand.aspx?Code=OpenTicketTime&TicketID=123"
	if got := TicketURL(5, 123); got != want {
		t.Errorf("TicketURL = %q, want %q", got, want)
	}
}
