// Package flatten expands a person's nested schedule record into an
// ordered list of calendar entries.
package flatten

import (
	"fmt"
	"strings"
	"time"

	"crewcal/internal/datetime"
	appLog "crewcal/internal/log"
	"crewcal/internal/model"
	"crewcal/internal/transport"
)

// TransportDuration is the fixed length of ground-transport and meetup
// entries.
const TransportDuration = 30 * time.Minute

// TransportParser extracts driver/passenger/meetup details from the
// free-text ground-transport description.
type TransportParser interface {
	Parse(text string) transport.Details
}

// Flattener turns RawScheduleRecords into CalendarEntries. The zero value
// is not usable; use New.
type Flattener struct {
	parser    TransportParser
	uidDomain string
}

// Option configures a Flattener.
type Option func(*Flattener)

// WithTransportParser replaces the default label-grammar parser.
func WithTransportParser(p TransportParser) Option {
	return func(f *Flattener) { f.parser = p }
}

// WithUIDDomain sets the domain suffix of generated UIDs.
func WithUIDDomain(domain string) Option {
	return func(f *Flattener) {
		if domain != "" {
			f.uidDomain = domain
		}
	}
}

// New constructs a Flattener using the regular-expression label parser.
func New(opts ...Option) *Flattener {
	f := &Flattener{
		parser:    transport.LabelParser{},
		uidDomain: "crewcal",
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Flatten walks every engagement in input order and emits, per engagement:
// main event, flights, rehearsals, hotels, ground transport, meetups.
// Items missing required fields are skipped.
func (f *Flattener) Flatten(record model.RawScheduleRecord) []model.CalendarEntry {
	out := make([]model.CalendarEntry, 0)
	for i, eng := range record.Events {
		b := &builder{f: f, eng: eng, key: engagementKey(eng, i)}
		b.mainEvent()
		b.flights()
		b.rehearsals()
		b.hotels()
		b.groundTransport()
		b.meetups()
		out = append(out, b.entries...)
	}
	return out
}

// builder accumulates the entries of a single engagement.
type builder struct {
	f       *Flattener
	eng     model.EngagementRecord
	key     string
	entries []model.CalendarEntry
	counts  map[model.Kind]int
}

func (b *builder) add(e model.CalendarEntry) {
	if b.counts == nil {
		b.counts = make(map[model.Kind]int)
	}
	n := b.counts[e.Kind]
	b.counts[e.Kind] = n + 1

	e.UID = fmt.Sprintf("%s-%s-%d@%s", b.key, e.Kind, n, b.f.uidDomain)
	e.Engagement = b.eng.Name
	b.entries = append(b.entries, e)
}

func (b *builder) mainEvent() {
	name := strings.TrimSpace(b.eng.Name)
	date := strings.TrimSpace(b.eng.Date)
	if name == "" || date == "" {
		return
	}
	r, err := datetime.Normalize(date)
	if err != nil {
		appLog.Debug("flatten: main event date unparseable", "engagement", name, "date", date)
		return
	}

	b.add(model.CalendarEntry{
		Kind:        model.KindMainEvent,
		Title:       name,
		Start:       model.Resolved(r.Start),
		End:         model.Resolved(r.End),
		Description: joinBlocks(payrollSummary(b.eng.Assignments), strings.TrimSpace(b.eng.GeneralInfo)),
		Location:    joinPlace(b.eng.Venue, b.eng.Address),
		URL:         b.eng.URL,
	})
}

func (b *builder) flights() {
	for _, leg := range b.eng.Flights {
		b.flightSide(model.KindFlightDeparture, leg.Departure)
		b.flightSide(model.KindFlightReturn, leg.Return)
	}
}

func (b *builder) flightSide(kind model.Kind, side model.FlightSide) {
	name := strings.TrimSpace(side.Name)
	when := strings.TrimSpace(side.Time)
	if name == "" || when == "" {
		return
	}

	start, end := model.Unresolved(when), model.Unresolved(when)
	if r, err := datetime.Normalize(when); err == nil {
		start, end = model.Resolved(r.Start), model.Resolved(r.End)
	} else {
		appLog.Debug("flatten: keeping raw flight time", "engagement", b.eng.Name, "time", when)
	}

	b.add(model.CalendarEntry{
		Kind:  kind,
		Title: name,
		Start: start,
		End:   end,
		Description: labeledLines(
			"Airline", side.Airline,
			"Flight", side.FlightNumber,
			"Confirmation", side.Confirmation,
			"From", side.From,
		),
		Location: strings.TrimSpace(side.From),
	})
}

func (b *builder) rehearsals() {
	for _, reh := range b.eng.Rehearsals {
		when := strings.TrimSpace(reh.Time)
		if when == "" {
			continue
		}
		r, err := datetime.Normalize(when)
		if err != nil {
			appLog.Debug("flatten: rehearsal time unparseable", "engagement", b.eng.Name, "time", when)
			continue
		}

		location := joinPlace(reh.Location, reh.Address)
		if location == "" {
			location = "TBD"
		}
		b.add(model.CalendarEntry{
			Kind:        model.KindRehearsal,
			Title:       "Rehearsal: " + b.eng.Name,
			Start:       model.Resolved(r.Start),
			End:         model.Resolved(r.End),
			Description: strings.TrimSpace(reh.Personnel),
			Location:    location,
		})
	}
}

func (b *builder) hotels() {
	for _, h := range b.eng.Hotels {
		var start, end model.TimeValue
		booked := strings.TrimSpace(h.DatesBooked)
		checkIn := strings.TrimSpace(h.CheckIn)
		checkOut := strings.TrimSpace(h.CheckOut)

		r, err := datetime.Normalize(booked)
		switch {
		case booked != "" && err == nil:
			start, end = model.Resolved(r.Start), model.Resolved(r.End)
		case checkIn != "" && checkOut != "":
			start, end = model.Unresolved(checkIn), model.Unresolved(checkOut)
		default:
			continue
		}

		title := strings.TrimSpace(h.Name)
		if title == "" {
			title = "Hotel"
		}
		b.add(model.CalendarEntry{
			Kind:  model.KindHotel,
			Title: title,
			Start: start,
			End:   end,
			Description: labeledLines(
				"Address", h.Address,
				"Confirmation", h.Confirmation,
				"Phone", h.Phone,
				"Reservation names", h.NamesOnReservation,
			),
			Location: joinPlace(h.Name, h.Address),
		})
	}
}

func (b *builder) groundTransport() {
	for _, leg := range b.eng.GroundTransport {
		rawStart := strings.TrimSpace(leg.Start)
		rawEnd := strings.TrimSpace(leg.End)
		if rawStart == "" || rawEnd == "" {
			continue
		}

		start, end := model.Unresolved(rawStart), model.Unresolved(rawEnd)
		if r, err := datetime.Normalize(rawStart); err == nil {
			start = model.Resolved(r.Start)
			end = model.Resolved(r.Start.Add(TransportDuration))
		}

		title := rewriteTransportTitle(leg.Name)
		if title == "" {
			title = "Ground Transport"
		}
		b.add(model.CalendarEntry{
			Kind:        model.KindGroundTransport,
			Title:       title,
			Start:       start,
			End:         end,
			Description: b.f.parser.Parse(leg.Description).Render(),
		})
	}
}

func (b *builder) meetups() {
	for _, leg := range b.eng.GroundTransport {
		if strings.TrimSpace(leg.Start) == "" || strings.TrimSpace(leg.End) == "" {
			continue
		}
		m := b.f.parser.Parse(leg.Description).Meetup
		if m == nil {
			continue
		}

		expr := "@" + m.Time
		if datetime.IsTimeOfDay(m.Time) {
			day, ok := localDate(leg.Start)
			if !ok {
				continue
			}
			expr = "@" + day + " " + m.Time
		}
		r, err := datetime.Normalize(expr)
		if err != nil {
			appLog.Debug("flatten: meetup time unparseable", "engagement", b.eng.Name, "time", m.Time)
			continue
		}

		b.add(model.CalendarEntry{
			Kind:        model.KindMeetup,
			Title:       "Meetup: " + m.Location,
			Start:       model.Resolved(r.Start),
			End:         model.Resolved(r.Start.Add(TransportDuration)),
			Description: "Meetup Location: " + m.Location + "\nMeetup Time: " + m.Time,
			Location:    m.Place(),
		})
	}
}

// localDate renders the regional calendar date of a transport start in
// unified notation ("October 19, 2025"). Instants carrying a zone or "Z"
// are converted to the region's wall clock first; zone-less values are
// already local.
func localDate(raw string) (string, bool) {
	const layout = "January 2, 2006"
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return datetime.Local(t).Format(layout), true
	}
	for _, l := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(l, raw); err == nil {
			return t.Format(layout), true
		}
	}
	if r, err := datetime.Normalize(raw); err == nil {
		return datetime.Local(r.Start).Format(layout), true
	}
	return "", false
}

func rewriteTransportTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "PICKUP:", "Pickup:")
	s = strings.ReplaceAll(s, "DROPOFF:", "Dropoff:")
	return s
}

func engagementKey(eng model.EngagementRecord, index int) string {
	if id := strings.TrimSpace(eng.ID); id != "" {
		return strings.ReplaceAll(id, "-", "")
	}
	return fmt.Sprintf("engagement%d", index)
}

func payrollSummary(assignments []model.Assignment) string {
	blocks := make([]string, 0, len(assignments))
	for _, a := range assignments {
		block := labeledLines("Position", a.Position, "Assignment", a.Assignment, "Pay", a.Pay)
		if block != "" {
			blocks = append(blocks, block)
		}
	}
	return strings.Join(blocks, "\n\n")
}

// labeledLines renders "Label: value" lines for the non-empty values of
// alternating label/value pairs.
func labeledLines(kv ...string) string {
	lines := make([]string, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if v := strings.TrimSpace(kv[i+1]); v != "" {
			lines = append(lines, kv[i]+": "+v)
		}
	}
	return strings.Join(lines, "\n")
}

func joinBlocks(blocks ...string) string {
	nonEmpty := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b != "" {
			nonEmpty = append(nonEmpty, b)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}

func joinPlace(name, address string) string {
	name = strings.TrimSpace(name)
	address = strings.TrimSpace(address)
	switch {
	case name != "" && address != "":
		return name + ", " + address
	case name != "":
		return name
	default:
		return address
	}
}
