package feed

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"crewcal/internal/flatten"
	"crewcal/internal/ics"
	"crewcal/internal/notion"
)

const personID = "2a7c0f3e-1b4d-4c6e-9f00-112233445566"

type fakeSource struct {
	people map[string]notion.Person
	err    error
	calls  []string
}

func (f *fakeSource) GetPerson(_ context.Context, id string) (notion.Person, error) {
	f.calls = append(f.calls, id)
	if f.err != nil {
		return notion.Person{}, f.err
	}
	p, ok := f.people[id]
	if !ok {
		return notion.Person{}, notion.ErrNotFound
	}
	return p, nil
}

const galaSchedule = `{
  "name": "Jane Doe (formula)",
  "events": [{
    "id": "11111111-2222-3333-4444-555555555555",
    "name": "Fall Gala",
    "date": "@October 19, 2025 1:15 PM → 9:47 PM",
    "venue": "Civic Hall",
    "ground_transport": [{
      "name": "PICKUP: Hotel to Hall",
      "start": "2025-10-19T12:00:00.000-07:00",
      "end": "2025-10-19T12:30:00.000-07:00",
      "description": "Driver: Alex\nPassenger: Jane Doe"
    }]
  }]
}`

func newTestService(src Source) *Service {
	now := func() time.Time { return time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC) }
	return NewService(src, flatten.New(), ics.NewAssembler(ics.Options{Now: now}))
}

func TestGenerateICS(t *testing.T) {
	t.Parallel()
	src := &fakeSource{people: map[string]notion.Person{
		personID: {ID: personID, Name: "Jane Doe", Schedule: galaSchedule},
	}}
	svc := newTestService(src)

	res, err := svc.Generate(context.Background(), strings.ReplaceAll(personID, "-", ""), ics.FormatICS)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if len(src.calls) != 1 || src.calls[0] != personID {
		t.Fatalf("source called with %v, want canonical id", src.calls)
	}
	if res.Empty || res.Entries != 2 || res.PersonName != "Jane Doe" {
		t.Fatalf("result = %+v", res)
	}

	events, err := ics.ParseDocument(res.Body)
	if err != nil {
		t.Fatalf("ParseDocument error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	main := events[0]
	if main.Summary != "[Event] Fall Gala" {
		t.Fatalf("Summary = %q", main.Summary)
	}
	wantStart := time.Date(2025, 10, 19, 20, 15, 0, 0, time.UTC)
	wantEnd := time.Date(2025, 10, 20, 4, 47, 0, 0, time.UTC)
	if !main.Start.Equal(wantStart) || !main.End.Equal(wantEnd) {
		t.Fatalf("main event = %v..%v", main.Start, main.End)
	}
	if events[1].Summary != "[Transport] Pickup: Hotel to Hall" {
		t.Fatalf("transport Summary = %q", events[1].Summary)
	}
}

func TestGenerateNameFallsBackToBlob(t *testing.T) {
	t.Parallel()
	src := &fakeSource{people: map[string]notion.Person{
		personID: {ID: personID, Schedule: galaSchedule},
	}}
	res, err := newTestService(src).Generate(context.Background(), personID, ics.FormatJSON)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if res.PersonName != "Jane Doe (formula)" {
		t.Fatalf("PersonName = %q", res.PersonName)
	}
}

func TestGeneratePersonSkipsFetch(t *testing.T) {
	t.Parallel()
	src := &fakeSource{}
	person := notion.Person{ID: strings.ReplaceAll(personID, "-", ""), Name: "Jane Doe", Schedule: galaSchedule}

	res, err := newTestService(src).GeneratePerson(person, ics.FormatICS)
	if err != nil {
		t.Fatalf("GeneratePerson error: %v", err)
	}
	if len(src.calls) != 0 {
		t.Fatalf("source called %v, want no fetch", src.calls)
	}
	if res.PersonID != personID {
		t.Fatalf("PersonID = %q", res.PersonID)
	}
	if res.Empty || res.Written == 0 {
		t.Fatalf("written = %d, empty = %v", res.Written, res.Empty)
	}

	if _, err := newTestService(src).GeneratePerson(notion.Person{ID: "nope"}, ics.FormatICS); CodeOf(err) != CodeNotFound {
		t.Fatalf("bad id err = %v", err)
	}
}

func TestGenerateNoEvents(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		schedule string
		format   ics.Format
	}{
		{name: "empty blob ics", schedule: "", format: ics.FormatICS},
		{name: "blank blob json", schedule: "   ", format: ics.FormatJSON},
		{name: "no engagements", schedule: `{"events":[]}`, format: ics.FormatJSON},
		{name: "nothing flattens", schedule: `[{"name":"No date"}]`, format: ics.FormatICS},
		{name: "every entry unusable", schedule: `[{"name":"Gala","hotels":[{"name":"Inn","check_in":"Oct 18","check_out":"Oct 20"}]}]`, format: ics.FormatICS},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src := &fakeSource{people: map[string]notion.Person{
				personID: {ID: personID, Name: "Jane Doe", Schedule: tt.schedule},
			}}
			res, err := newTestService(src).Generate(context.Background(), personID, tt.format)
			if err != nil {
				t.Fatalf("Generate error: %v", err)
			}
			if !res.Empty {
				t.Fatal("expected Empty result")
			}
			if len(res.Body) == 0 {
				t.Fatal("empty result must still carry a document")
			}
			if tt.format == ics.FormatJSON && !strings.Contains(string(res.Body), `"reason": "no_events"`) {
				t.Fatalf("summary missing reason:\n%s", res.Body)
			}
			if tt.format == ics.FormatICS && !strings.Contains(string(res.Body), "BEGIN:VCALENDAR") {
				t.Fatalf("not a calendar:\n%s", res.Body)
			}
		})
	}
}

func TestGenerateErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		id   string
		src  *fakeSource
		want Code
	}{
		{
			name: "malformed id",
			id:   "not-a-uuid",
			src:  &fakeSource{},
			want: CodeNotFound,
		},
		{
			name: "unknown person",
			id:   personID,
			src:  &fakeSource{people: map[string]notion.Person{}},
			want: CodeNotFound,
		},
		{
			name: "invalid json",
			id:   personID,
			src: &fakeSource{people: map[string]notion.Person{
				personID: {ID: personID, Schedule: "{not valid json"},
			}},
			want: CodeMalformed,
		},
		{
			name: "upstream failure",
			id:   personID,
			src:  &fakeSource{err: &notion.APIError{Status: 500}},
			want: CodeUpstream,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := newTestService(tt.src).Generate(context.Background(), tt.id, ics.FormatICS)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := CodeOf(err); got != tt.want {
				t.Fatalf("CodeOf = %q, want %q (err=%v)", got, tt.want, err)
			}
		})
	}
}

func TestErrorIs(t *testing.T) {
	t.Parallel()
	err := newError(CodeMalformed, "bad", errors.New("syntax"))
	if !errors.Is(err, ErrMalformed) {
		t.Fatal("errors.Is should match by code")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("errors.Is matched a different code")
	}
	upstream := &notion.APIError{Status: 503}
	wrapped := newError(CodeUpstream, "fetch", upstream)
	var apiErr *notion.APIError
	if !errors.As(wrapped, &apiErr) || apiErr.Status != 503 {
		t.Fatal("Unwrap should expose the cause")
	}
}

func TestCanonicalID(t *testing.T) {
	t.Parallel()
	for _, in := range []string{
		"2a7c0f3e1b4d4c6e9f00112233445566",
		"2A7C0F3E-1B4D-4C6E-9F00-112233445566",
		" 2a7c0f3e-1b4d-4c6e-9f00-112233445566 ",
	} {
		got, err := CanonicalID(in)
		if err != nil {
			t.Fatalf("CanonicalID(%q) error: %v", in, err)
		}
		if got != personID {
			t.Fatalf("CanonicalID(%q) = %q", in, got)
		}
	}
}
