package zoom

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

	"go.uber.org/zap"
)

// listPageSize is the page size requested from the recordings listing.
const listPageSize = 300

// APIError is a non-2xx response from the provider API.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zoom api error: status %d code %d: %s", e.StatusCode, e.Code, e.Message)
}

// Client calls the provider REST API with bearer auth from the token
// manager. A 401 triggers exactly one forced token refresh and retry.
type Client struct {
	cfg        Config
	tokens     *TokenManager
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates an API client.
func NewClient(cfg Config, tokens *TokenManager, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// ListRecordings fetches one page of a user's cloud recordings in the
// [from, to] date window.
func (c *Client) ListRecordings(ctx context.Context, userID string, from, to time.Time, nextPageToken string) (*ListRecordingsResponse, error) {
	q := url.Values{}
	q.Set("from", from.Format("2006-01-02"))
	q.Set("to", to.Format("2006-01-02"))
	q.Set("page_size", strconv.Itoa(listPageSize))
	if nextPageToken != "" {
		q.Set("next_page_token", nextPageToken)
	}
	var out ListRecordingsResponse
	if err := c.getJSON(ctx, "/users/"+url.PathEscape(userID)+"/recordings", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAllRecordings walks every page of the recordings listing for the window.
func (c *Client) ListAllRecordings(ctx context.Context, userID string, from, to time.Time) ([]Meeting, error) {
	var meetings []Meeting
	token := ""
	for {
		page, err := c.ListRecordings(ctx, userID, from, to, token)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, page.Meetings...)
		if page.NextPageToken == "" {
			return meetings, nil
		}
		token = page.NextPageToken
	}
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	resp, err := c.do(ctx, http.MethodGet, path, query)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(body, apiErr)
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response for %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values) (*http.Response, error) {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		u := strings.TrimRight(c.cfg.APIBaseURL, "/") + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, method, u, nil)
		if err != nil {
			return nil, fmt.Errorf("build api request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("zoom api request: %w", err)
		}
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			resp.Body.Close()
			c.logger.Warn("zoom api unauthorized, forcing token refresh", zap.String("path", path))
			c.tokens.Invalidate()
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("zoom api request: retries exhausted")
}
