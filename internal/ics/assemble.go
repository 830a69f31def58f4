package ics

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"crewcal/internal/datetime"
	appLog "crewcal/internal/log"
	"crewcal/internal/model"
)

// Format selects the document produced by Assemble.
type Format string

const (
	FormatICS  Format = "ics"
	FormatJSON Format = "json"
)

// ParseFormat maps a query value to a Format. Unknown values are rejected.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ics", "ical", "calendar":
		return FormatICS, nil
	case "json", "summary":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown feed format %q", s)
	}
}

// ContentType is the HTTP media type of documents in this format.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json; charset=utf-8"
	}
	return "text/calendar; charset=utf-8"
}

// Document is a serialized feed.
type Document struct {
	Format Format
	Body   []byte

	// Written counts entries present in Body; Skipped those dropped for
	// unusable times.
	Written int
	Skipped int
}

// Options controls calendar-level metadata.
type Options struct {
	ProductID string
	// RefreshInterval is advertised to subscribers. Zero omits it.
	RefreshInterval time.Duration
	// Now stamps DTSTAMP. Nil uses time.Now.
	Now func() time.Time
}

// Assembler serializes flattened entries.
type Assembler struct {
	opts Options
}

func NewAssembler(opts Options) *Assembler {
	if opts.ProductID == "" {
		opts.ProductID = "-//crewcal//Personnel Schedule//EN"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Assembler{opts: opts}
}

// Assemble renders entries for personName in the requested format.
func (a *Assembler) Assemble(entries []model.CalendarEntry, format Format, personName string) (Document, error) {
	switch format {
	case FormatICS:
		return a.assembleICS(entries, personName), nil
	case FormatJSON:
		return a.assembleSummary(entries, personName)
	default:
		return Document{}, fmt.Errorf("assemble: unsupported format %q", format)
	}
}

// assembleICS writes one VEVENT per entry. Instants are written in UTC with
// no VTIMEZONE; subscribers render them in their own zone.
func (a *Assembler) assembleICS(entries []model.CalendarEntry, personName string) Document {
	cal := ical.NewCalendar()
	cal.SetProductId(a.opts.ProductID)
	cal.SetMethod(ical.MethodPublish)
	if personName != "" {
		cal.SetName(personName)
	}
	if a.opts.RefreshInterval > 0 {
		cal.SetRefreshInterval(isoDuration(a.opts.RefreshInterval))
		cal.SetXPublishedTTL(isoDuration(a.opts.RefreshInterval))
	}

	stamp := a.opts.Now()
	doc := Document{Format: FormatICS}

	for _, e := range entries {
		start, end, err := entryTimes(e)
		if err != nil {
			doc.Skipped++
			appLog.Warn("assemble: skipping entry with unusable time",
				"uid", e.UID,
				"kind", string(e.Kind),
				"engagement", e.Engagement,
				"start", e.Start.String(),
				"end", e.End.String(),
			)
			continue
		}
		if end.Before(start) {
			appLog.Warn("assemble: entry ends before it starts",
				"uid", e.UID,
				"kind", string(e.Kind),
				"start", start.Format(time.RFC3339),
				"end", end.Format(time.RFC3339),
			)
		}

		ev := cal.AddEvent(e.UID)
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(start)
		ev.SetEndAt(end)
		ev.SetSummary(Summary(e))
		if e.Description != "" {
			ev.SetDescription(e.Description)
		}
		if e.Location != "" {
			ev.SetLocation(e.Location)
		}
		if e.URL != "" {
			ev.SetURL(e.URL)
		}
		ev.AddCategory(string(e.Kind))
		doc.Written++
	}

	doc.Body = []byte(cal.Serialize())
	return doc
}

// Summary is the SUMMARY text of an entry: the title tagged with a short
// kind label.
func Summary(e model.CalendarEntry) string {
	return "[" + e.Kind.Label() + "] " + e.Title
}

var errNoInstant = errors.New("no usable instant")

// entryTimes resolves both ends of an entry. Unresolved values get one
// more absolute-timestamp parse.
func entryTimes(e model.CalendarEntry) (time.Time, time.Time, error) {
	start, err := resolve(e.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start: %w", err)
	}
	end, err := resolve(e.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end: %w", err)
	}
	return start, end, nil
}

func resolve(v model.TimeValue) (time.Time, error) {
	if t, ok := v.Instant(); ok {
		return t, nil
	}
	if v.Raw() == "" {
		return time.Time{}, errNoInstant
	}
	t, err := datetime.ParseInstant(v.Raw())
	if err != nil {
		return time.Time{}, errNoInstant
	}
	return t, nil
}

// isoDuration renders d as an RFC 5545 duration such as "PT1H" or "PT15M".
func isoDuration(d time.Duration) string {
	if d <= 0 {
		return "PT0S"
	}
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	s := int((d % time.Minute) / time.Second)

	var b strings.Builder
	b.WriteString("PT")
	if h > 0 {
		fmt.Fprintf(&b, "%dH", h)
	}
	if m > 0 {
		fmt.Fprintf(&b, "%dM", m)
	}
	if s > 0 || (h == 0 && m == 0) {
		fmt.Fprintf(&b, "%dS", s)
	}
	return b.String()
}

// SummaryCounts is the per-kind breakdown of a JSON summary.
type SummaryCounts struct {
	Total           int `json:"total"`
	MainEvents      int `json:"main_events"`
	Flights         int `json:"flights"`
	Rehearsals      int `json:"rehearsals"`
	Hotels          int `json:"hotels"`
	GroundTransport int `json:"ground_transport"`
}

// SummaryDocument is the JSON body of FormatJSON documents.
type SummaryDocument struct {
	Person  string                `json:"person"`
	Reason  string                `json:"reason,omitempty"`
	Counts  SummaryCounts         `json:"counts"`
	Entries []model.CalendarEntry `json:"entries"`
}

// CountEntries tallies entries by kind. Meetups count as ground transport.
func CountEntries(entries []model.CalendarEntry) SummaryCounts {
	c := SummaryCounts{Total: len(entries)}
	for _, e := range entries {
		switch e.Kind {
		case model.KindMainEvent:
			c.MainEvents++
		case model.KindFlightDeparture, model.KindFlightReturn:
			c.Flights++
		case model.KindRehearsal:
			c.Rehearsals++
		case model.KindHotel:
			c.Hotels++
		case model.KindGroundTransport, model.KindMeetup:
			c.GroundTransport++
		}
	}
	return c
}

func (a *Assembler) assembleSummary(entries []model.CalendarEntry, personName string) (Document, error) {
	return a.SummaryWithReason(entries, personName, "")
}

// SummaryWithReason renders a JSON summary carrying a reason code, used for
// the empty-schedule case.
func (a *Assembler) SummaryWithReason(entries []model.CalendarEntry, personName, reason string) (Document, error) {
	if entries == nil {
		entries = []model.CalendarEntry{}
	}
	body, err := json.MarshalIndent(SummaryDocument{
		Person:  personName,
		Reason:  reason,
		Counts:  CountEntries(entries),
		Entries: entries,
	}, "", "  ")
	if err != nil {
		return Document{}, fmt.Errorf("assemble summary: %w", err)
	}
	return Document{Format: FormatJSON, Body: body, Written: len(entries)}, nil
}
