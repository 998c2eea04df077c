package autotask

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/voicetel/autotask-notifier/internal/config"
	"github.com/voicetel/autotask-notifier/internal/models"
)

// Client is a thin JSON client for the Autotask REST API. Autotask forbids
// concurrent requests under one credential set, so the client serializes
// every call through a mutex; callers chain requests one after another.
type Client struct {
	region          int
	integrationCode string
	username        string
	secret          string
	httpClient      *http.Client

	// baseURL overrides the regional endpoint, for tests.
	baseURL string

	mu sync.Mutex
}

func NewClient(cfg config.AutotaskConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		region:          cfg.Region,
		integrationCode: cfg.APIIntegrationCode,
		username:        cfg.Username,
		secret:          cfg.Secret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// filterItem is one node of the boolean filter tree the query endpoints
// accept (op: and/or/eq/lte).
type filterItem struct {
	Op    string       `json:"op"`
	Field string       `json:"field,omitempty"`
	Value any          `json:"value,omitempty"`
	Items []filterItem `json:"items,omitempty"`
}

type queryRequest struct {
	Filter []filterItem `json:"Filter"`
}

type ticketQueryResponse struct {
	Items []models.RemoteTicket `json:"items"`
}

type companyQueryResponse struct {
	Items []struct {
		CompanyName string `json:"companyName"`
	} `json:"items"`
}

// QueryDueTickets returns all tickets in the selected queues and statuses
// whose due time falls within the horizon from now.
func (c *Client) QueryDueTickets(ctx context.Context, queues, statuses []int64, horizon time.Duration) ([]models.RemoteTicket, error) {
	queueItems := make([]filterItem, 0, len(queues))
	for _, q := range queues {
		queueItems = append(queueItems, filterItem{Op: "eq", Field: "queueID", Value: q})
	}
	statusItems := make([]filterItem, 0, len(statuses))
	for _, s := range statuses {
		statusItems = append(statusItems, filterItem{Op: "eq", Field: "status", Value: s})
	}

	dueLimit := time.Now().Add(horizon).UTC().Format("2006-01-02T15:04:05Z")
	req := queryRequest{
		Filter: []filterItem{{
			Op: "and",
			Items: []filterItem{
				{Op: "or", Items: queueItems},
				{Op: "or", Items: statusItems},
				{Op: "lte", Field: "dueDateTime", Value: dueLimit},
			},
		}},
	}

	var resp ticketQueryResponse
	if err := c.do(ctx, http.MethodPost, "Tickets/query", req, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// QueryCompanyName resolves a company id to its display name. A company
// that no longer exists is a lookup miss, not an error: it returns "".
func (c *Client) QueryCompanyName(ctx context.Context, companyID int64) (string, error) {
	req := queryRequest{
		Filter: []filterItem{{Op: "eq", Field: "id", Value: companyID}},
	}

	var resp companyQueryResponse
	if err := c.do(ctx, http.MethodPost, "Companies/query", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Items) == 0 {
		return "", nil
	}
	return resp.Items[0].CompanyName, nil
}

type fieldInfoResponse struct {
	Fields []struct {
		Name           string `json:"name"`
		PicklistValues []struct {
			Value string `json:"value"`
			Label string `json:"label"`
		} `json:"picklistValues"`
	} `json:"fields"`
}

// QueryFieldMetadata fetches the queue and status picklists of the ticket
// entity. The "Complete" status is dropped: completed tickets are never
// worth tracking.
func (c *Client) QueryFieldMetadata(ctx context.Context) (*models.FieldMetadata, error) {
	var resp fieldInfoResponse
	if err := c.do(ctx, http.MethodGet, "Tickets/entityInformation/fields", nil, &resp); err != nil {
		return nil, err
	}

	meta := &models.FieldMetadata{}
	for _, field := range resp.Fields {
		switch field.Name {
		case "queueID":
			for _, pv := range field.PicklistValues {
				id, err := strconv.ParseInt(pv.Value, 10, 64)
				if err != nil {
					continue
				}
				meta.Queues = append(meta.Queues, models.FieldOption{ID: id, Label: pv.Label})
			}
		case "status":
			for _, pv := range field.PicklistValues {
				if pv.Label == "Complete" {
					continue
				}
				id, err := strconv.ParseInt(pv.Value, 10, 64)
				if err != nil {
					continue
				}
				meta.Statuses = append(meta.Statuses, models.FieldOption{ID: id, Label: pv.Label})
			}
		}
	}

	if meta.Queues == nil || meta.Statuses == nil {
		return nil, &models.GatewayError{
			Op:  "entityInformation/fields",
			Err: fmt.Errorf("queueID or status field not found in response"),
		}
	}
	return meta, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling %s request: %w", path, err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), bodyReader)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", path, err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("ApiIntegrationCode", c.integrationCode)
	req.Header.Set("UserName", c.username)
	req.Header.Set("Secret", c.secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &models.GatewayError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &models.GatewayError{Op: path, Status: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return &models.GatewayError{Op: path, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

func (c *Client) endpoint(path string) string {
	if c.baseURL != "" {
		return c.baseURL + "/" + path
	}
	return fmt.Sprintf("https://webservices%d.autotask.net/ATServicesRest/V1.0/%s", c.region, path)
}

// TicketURL returns the Autotask detail URL a notification click opens.
func TicketURL(region int, ticketID int64) string {
	return fmt.Sprintf("https://ww%d.autotask.net/Autotask/AutotaskExtend/ExecuteCommand.aspx?Code=OpenTicketTime&TicketID=%d", region, ticketID)
}
