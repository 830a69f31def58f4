// Package notion is a minimal client for the parts of the Notion REST API
// that hold per-person schedule records: page retrieval and paginated
// database queries.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	appLog "crewcal/internal/log"
)

// ErrNotFound is returned when the API reports a missing or inaccessible
// object.
var ErrNotFound = errors.New("notion: object not found")

// APIError is a non-success response other than not-found.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("notion: HTTP %d", e.Status)
	}
	return fmt.Sprintf("notion: HTTP %d %s: %s", e.Status, e.Code, e.Message)
}

// Person is one row of the people database.
type Person struct {
	ID string
	// Name is the plain text of the page title.
	Name string
	// Schedule is the formula-computed schedule JSON. Empty when the
	// property is missing or blank.
	Schedule string
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string
	Version string

	ScheduleProperty string
	NameProperty     string

	// RequestsPerSecond throttles every outbound request. Zero disables
	// throttling.
	RequestsPerSecond float64
	Timeout           time.Duration

	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client talks to the Notion API. It is safe for concurrent use.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter

	baseURL string
	token   string
	version string

	scheduleProp string
	nameProp     string
}

// New creates a Client.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.notion.com"
	}
	version := opts.Version
	if version == "" {
		version = "2022-06-28"
	}

	return &Client{
		http:         hc,
		limiter:      limiter,
		baseURL:      baseURL,
		token:        opts.Token,
		version:      version,
		scheduleProp: opts.ScheduleProperty,
		nameProp:     opts.NameProperty,
	}
}

// GetPerson retrieves a single person page by its canonical id.
func (c *Client) GetPerson(ctx context.Context, id string) (Person, error) {
	var p page
	if err := c.do(ctx, http.MethodGet, "/v1/pages/"+url.PathEscape(id), nil, &p); err != nil {
		return Person{}, fmt.Errorf("get page %s: %w", id, err)
	}
	return c.toPerson(p), nil
}

// ListPeople walks every page of a database query, following next_cursor
// until has_more is false.
func (c *Client) ListPeople(ctx context.Context, databaseID string) ([]Person, error) {
	if databaseID == "" {
		return nil, errors.New("notion: database id is empty")
	}

	people := make([]Person, 0)
	cursor := ""
	for {
		req := queryRequest{PageSize: 100, StartCursor: cursor}
		var resp queryResponse
		path := "/v1/databases/" + url.PathEscape(databaseID) + "/query"
		if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
			return nil, fmt.Errorf("query database %s: %w", databaseID, err)
		}
		for _, p := range resp.Results {
			if p.Archived || p.InTrash {
				continue
			}
			people = append(people, c.toPerson(p))
		}
		appLog.Debug("notion query page", "database", databaseID, "results", len(resp.Results), "has_more", resp.HasMore)

		if !resp.HasMore || resp.NextCursor == "" {
			return people, nil
		}
		cursor = resp.NextCursor
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", c.version)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	appLog.Debug("notion request", "method", method, "path", path, "status", resp.StatusCode, "elapsed", time.Since(start).String())

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(status int, data []byte) error {
	var e errorResponse
	_ = json.Unmarshal(data, &e)
	if status == http.StatusNotFound || e.Code == "object_not_found" {
		return ErrNotFound
	}
	return &APIError{Status: status, Code: e.Code, Message: e.Message}
}

func (c *Client) toPerson(p page) Person {
	out := Person{ID: p.ID}
	for name, prop := range p.Properties {
		switch {
		case prop.Type == "title" && (c.nameProp == "" || c.nameProp == name):
			out.Name = prop.text()
		case name == c.scheduleProp:
			out.Schedule = prop.text()
		}
	}
	return out
}

type page struct {
	Object     string              `json:"object"`
	ID         string              `json:"id"`
	Archived   bool                `json:"archived"`
	InTrash    bool                `json:"in_trash"`
	Properties map[string]property `json:"properties"`
}

// property covers the property types that can carry text: title,
// rich_text and string formulas.
type property struct {
	Type     string     `json:"type"`
	Title    []richText `json:"title"`
	RichText []richText `json:"rich_text"`
	Formula  *struct {
		Type   string  `json:"type"`
		String *string `json:"string"`
	} `json:"formula"`
}

func (p property) text() string {
	switch p.Type {
	case "title":
		return joinPlainText(p.Title)
	case "rich_text":
		return joinPlainText(p.RichText)
	case "formula":
		if p.Formula != nil && p.Formula.String != nil {
			return *p.Formula.String
		}
	}
	return ""
}

type richText struct {
	PlainText string `json:"plain_text"`
}

func joinPlainText(parts []richText) string {
	var b strings.Builder
	for _, t := range parts {
		b.WriteString(t.PlainText)
	}
	return b.String()
}

type queryRequest struct {
	PageSize    int    `json:"page_size"`
	StartCursor string `json:"start_cursor,omitempty"`
}

type queryResponse struct {
	Results    []page `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}

type errorResponse struct {
	Object  string `json:"object"`
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
