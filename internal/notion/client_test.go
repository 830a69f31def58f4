package notion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

const personPage = `{
  "object": "page",
  "id": "2a7c0f3e-1b4d-4c6e-9f00-112233445566",
  "properties": {
    "Name": {"type": "title", "title": [{"plain_text": "Jane "}, {"plain_text": "Doe"}]},
    "Schedule": {"type": "formula", "formula": {"type": "string", "string": "{\"events\":[]}"}},
    "Notes": {"type": "rich_text", "rich_text": [{"plain_text": "ignored"}]}
  }
}`

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Options{
		BaseURL:          srv.URL,
		Token:            "secret_test",
		Version:          "2022-06-28",
		ScheduleProperty: "Schedule",
	})
}

func TestGetPerson(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/pages/2a7c0f3e-1b4d-4c6e-9f00-112233445566" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret_test" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Notion-Version"); got != "2022-06-28" {
			t.Errorf("Notion-Version = %q", got)
		}
		_, _ = w.Write([]byte(personPage))
	}))

	p, err := c.GetPerson(context.Background(), "2a7c0f3e-1b4d-4c6e-9f00-112233445566")
	if err != nil {
		t.Fatalf("GetPerson error: %v", err)
	}
	if p.Name != "Jane Doe" {
		t.Fatalf("Name = %q", p.Name)
	}
	if p.Schedule != `{"events":[]}` {
		t.Fatalf("Schedule = %q", p.Schedule)
	}
}

func TestGetPersonMissingFormula(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"object":"page","id":"x","properties":{
			"Name":{"type":"title","title":[{"plain_text":"Sam"}]},
			"Schedule":{"type":"formula","formula":{"type":"string","string":null}}}}`))
	}))

	p, err := c.GetPerson(context.Background(), "x")
	if err != nil {
		t.Fatalf("GetPerson error: %v", err)
	}
	if p.Name != "Sam" || p.Schedule != "" {
		t.Fatalf("got %+v", p)
	}
}

func TestErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		status   int
		body     string
		notFound bool
	}{
		{name: "404", status: http.StatusNotFound, body: `{"object":"error","status":404,"code":"object_not_found","message":"nope"}`, notFound: true},
		{name: "object_not_found on 400", status: http.StatusBadRequest, body: `{"object":"error","status":400,"code":"object_not_found","message":"nope"}`, notFound: true},
		{name: "validation", status: http.StatusBadRequest, body: `{"object":"error","status":400,"code":"validation_error","message":"bad id"}`},
		{name: "server", status: http.StatusBadGateway, body: `upstream down`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			_, err := c.GetPerson(context.Background(), "abc")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrNotFound); got != tt.notFound {
				t.Fatalf("errors.Is(ErrNotFound) = %v, want %v (err=%v)", got, tt.notFound, err)
			}
			if !tt.notFound {
				var apiErr *APIError
				if !errors.As(err, &apiErr) || apiErr.Status != tt.status {
					t.Fatalf("want APIError with status %d, got %v", tt.status, err)
				}
			}
		})
	}
}

func TestListPeoplePaginates(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/databases/people/query" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		calls.Add(1)
		switch req.StartCursor {
		case "":
			_, _ = w.Write([]byte(`{"results":[
				{"id":"p1","properties":{"Name":{"type":"title","title":[{"plain_text":"One"}]}}},
				{"id":"p2","archived":true,"properties":{}}
			],"has_more":true,"next_cursor":"c2"}`))
		case "c2":
			_, _ = w.Write([]byte(`{"results":[
				{"id":"p3","properties":{"Name":{"type":"title","title":[{"plain_text":"Three"}]}}}
			],"has_more":false,"next_cursor":null}`))
		default:
			t.Errorf("unexpected cursor %q", req.StartCursor)
		}
	}))

	people, err := c.ListPeople(context.Background(), "people")
	if err != nil {
		t.Fatalf("ListPeople error: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
	if len(people) != 2 || people[0].ID != "p1" || people[1].Name != "Three" {
		t.Fatalf("people = %+v", people)
	}
}

func TestListPeopleRequiresDatabase(t *testing.T) {
	t.Parallel()
	if _, err := New(Options{}).ListPeople(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty database id")
	}
}

func TestContextCancelled(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(personPage))
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.GetPerson(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
