package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/phrazzld/tasknotify/internal/domain"
)

// ListParams selects a page of notifications. Zero values use the server
// defaults.
type ListParams struct {
	Page   int
	Limit  int
	IsRead *bool
}

// ListResult is one page of notifications.
type ListResult struct {
	Items  []View
	Page   int
	Limit  int
	Total  int64
	Unread int64
}

// RESTClient talks to the notification REST surface with a bearer token.
type RESTClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewRESTClient creates a client for the server at baseURL. A nil httpClient
// uses a client with a ten second timeout.
func NewRESTClient(baseURL, token string, httpClient *http.Client) *RESTClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &RESTClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

type listResponse struct {
	Data []*domain.Notification `json:"data"`
	Meta struct {
		Page        int   `json:"page"`
		Limit       int   `json:"limit"`
		Total       int64 `json:"total"`
		UnreadCount int64 `json:"unreadCount"`
	} `json:"meta"`
}

// List fetches one page of the user's notifications, newest first.
func (c *RESTClient) List(ctx context.Context, params ListParams) (*ListResult, error) {
	q := url.Values{}
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.IsRead != nil {
		q.Set("isRead", strconv.FormatBool(*params.IsRead))
	}

	path := "/api/notifications"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var body listResponse
	if err := c.do(ctx, http.MethodGet, path, &body); err != nil {
		return nil, err
	}

	items := make([]View, 0, len(body.Data))
	for _, n := range body.Data {
		items = append(items, FromREST(n))
	}
	return &ListResult{
		Items:  items,
		Page:   body.Meta.Page,
		Limit:  body.Meta.Limit,
		Total:  body.Meta.Total,
		Unread: body.Meta.UnreadCount,
	}, nil
}

// MarkAsRead marks one notification as read on the server.
func (c *RESTClient) MarkAsRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/notifications/"+url.PathEscape(id)+"/read", nil)
}

// MarkAllAsRead marks every notification as read and returns how many rows
// the server changed.
func (c *RESTClient) MarkAllAsRead(ctx context.Context) (int64, error) {
	var body struct {
		Updated int64 `json:"updated"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/notifications/read-all", &body); err != nil {
		return 0, err
	}
	return body.Updated, nil
}

// UnreadCount returns the server's unread count.
func (c *RESTClient) UnreadCount(ctx context.Context) (int64, error) {
	var body struct {
		Count int64 `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/notifications/unread-count", &body); err != nil {
		return 0, err
	}
	return body.Count, nil
}

func (c *RESTClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var body struct {
			Error   string `json:"error"`
			TraceID string `json:"trace_id"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err == nil && body.Error != "" {
			apiErr.Message = body.Error
			apiErr.TraceID = body.TraceID
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}
