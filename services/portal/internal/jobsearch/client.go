package jobsearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultHost = "jsearch.p.rapidapi.com"

// ErrUpstreamUnavailable covers transport errors, non-2xx answers (429
// included) and empty payloads from the search provider.
var ErrUpstreamUnavailable = errors.New("job search upstream unavailable")

// UpstreamError carries the provider status when one was received.
type UpstreamError struct {
	Status int
	Msg    string
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("job search upstream: status %d: %s", e.Status, e.Msg)
	}
	return "job search upstream: " + e.Msg
}

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstreamUnavailable }

// Client calls the JSearch API on RapidAPI.
type Client struct {
	baseURL    string
	host       string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds a client. baseURL defaults to https://<host>.
func NewClient(baseURL, host, apiKey string, httpClient *http.Client) *Client {
	host = strings.TrimSpace(host)
	if host == "" {
		host = defaultHost
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://" + host
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		host:       host,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: httpClient,
	}
}

type searchResponse struct {
	Status string    `json:"status"`
	Data   []rawJob  `json:"data"`
	Error  *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
}

// Search runs one provider query and returns the raw postings.
func (c *Client) Search(ctx context.Context, query string, page int) ([]rawJob, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("page", strconv.Itoa(page))
	params.Set("num_pages", "1")
	params.Set("date_posted", "all")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-RapidAPI-Key", c.apiKey)
	req.Header.Set("X-RapidAPI-Host", c.host)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Msg: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body searchResponse
		_ = json.NewDecoder(resp.Body).Decode(&body)
		msg := resp.Status
		if body.Error != nil && body.Error.Message != "" {
			msg = body.Error.Message
		}
		return nil, &UpstreamError{Status: resp.StatusCode, Msg: msg}
	}
	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &UpstreamError{Status: resp.StatusCode, Msg: "decode: " + err.Error()}
	}
	if body.Data == nil {
		return nil, &UpstreamError{Status: resp.StatusCode, Msg: "empty payload"}
	}
	return body.Data, nil
}
