package model

import (
	"encoding/json"
	"time"
)

// RawScheduleRecord is the per-person schedule blob computed by the
// workspace database. It is read-only input to the feed pipeline.
type RawScheduleRecord struct {
	Name   string             `json:"name,omitempty"`
	Events []EngagementRecord `json:"events"`
}

// UnmarshalJSON accepts both the object form {"name":..., "events":[...]}
// and a bare array of engagements (older formula output).
func (r *RawScheduleRecord) UnmarshalJSON(data []byte) error {
	trimmed := firstNonSpace(data)
	if trimmed == '[' {
		var events []EngagementRecord
		if err := json.Unmarshal(data, &events); err != nil {
			return err
		}
		r.Events = events
		return nil
	}

	type plain RawScheduleRecord
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = RawScheduleRecord(p)
	return nil
}

func firstNonSpace(b []byte) byte {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			return c
		}
	}
	return 0
}

// EngagementRecord is one named engagement (performance, show, session)
// with its travel and logistics attached.
type EngagementRecord struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Date        string `json:"date,omitempty"`
	URL         string `json:"url,omitempty"`
	Venue       string `json:"venue,omitempty"`
	Address     string `json:"address,omitempty"`
	GeneralInfo string `json:"general_info,omitempty"`

	Assignments     []Assignment         `json:"assignments,omitempty"`
	Flights         []FlightLeg          `json:"flights,omitempty"`
	Rehearsals      []RehearsalRecord    `json:"rehearsals,omitempty"`
	Hotels          []HotelStay          `json:"hotels,omitempty"`
	GroundTransport []GroundTransportLeg `json:"ground_transport,omitempty"`
}

// Assignment is one payroll line for the person on an engagement.
type Assignment struct {
	Position   string `json:"position,omitempty"`
	Assignment string `json:"assignment,omitempty"`
	Pay        string `json:"pay,omitempty"`
}

// FlightLeg pairs the outbound and return sides of a booked trip.
type FlightLeg struct {
	Departure FlightSide `json:"departure"`
	Return    FlightSide `json:"return"`
}

// FlightSide is one direction of a FlightLeg.
type FlightSide struct {
	Name         string `json:"name,omitempty"`
	Time         string `json:"time,omitempty"`
	Airline      string `json:"airline,omitempty"`
	FlightNumber string `json:"flight_number,omitempty"`
	Confirmation string `json:"confirmation,omitempty"`
	From         string `json:"from,omitempty"`
}

type RehearsalRecord struct {
	Time      string `json:"time,omitempty"`
	Location  string `json:"location,omitempty"`
	Address   string `json:"address,omitempty"`
	Personnel string `json:"personnel,omitempty"`
}

// HotelStay carries either a unified DatesBooked expression or separate
// check-in / check-out values.
type HotelStay struct {
	Name               string `json:"name,omitempty"`
	DatesBooked        string `json:"dates_booked,omitempty"`
	CheckIn            string `json:"check_in,omitempty"`
	CheckOut           string `json:"check_out,omitempty"`
	Address            string `json:"address,omitempty"`
	Confirmation       string `json:"confirmation,omitempty"`
	Phone              string `json:"phone,omitempty"`
	NamesOnReservation string `json:"names_on_reservation,omitempty"`
}

// GroundTransportLeg is a pickup or dropoff. Description is free text
// using the Driver:/Passenger:/... label grammar.
type GroundTransportLeg struct {
	Name        string `json:"name,omitempty"`
	Start       string `json:"start,omitempty"`
	End         string `json:"end,omitempty"`
	Description string `json:"description,omitempty"`
}

// Kind tags the origin of a CalendarEntry.
type Kind string

const (
	KindMainEvent       Kind = "main_event"
	KindFlightDeparture Kind = "flight_departure"
	KindFlightReturn    Kind = "flight_return"
	KindRehearsal       Kind = "rehearsal"
	KindHotel           Kind = "hotel"
	KindGroundTransport Kind = "ground_transport"
	KindMeetup          Kind = "meetup"
)

// Label is the short prefix used in calendar summaries.
func (k Kind) Label() string {
	switch k {
	case KindMainEvent:
		return "Event"
	case KindFlightDeparture, KindFlightReturn:
		return "Flight"
	case KindRehearsal:
		return "Rehearsal"
	case KindHotel:
		return "Hotel"
	case KindGroundTransport:
		return "Transport"
	case KindMeetup:
		return "Meetup"
	default:
		return string(k)
	}
}

// TimeValue is either a resolved instant or the raw text the upstream
// provided when no parse strategy matched.
type TimeValue struct {
	instant  time.Time
	raw      string
	resolved bool
}

func Resolved(t time.Time) TimeValue { return TimeValue{instant: t.UTC(), resolved: true} }

func Unresolved(raw string) TimeValue { return TimeValue{raw: raw} }

func (v TimeValue) IsResolved() bool { return v.resolved }

// Instant returns the resolved instant; ok is false for unresolved values.
func (v TimeValue) Instant() (time.Time, bool) { return v.instant, v.resolved }

// Raw returns the unresolved text, or "" for resolved values.
func (v TimeValue) Raw() string { return v.raw }

// String renders resolved values as RFC 3339 and unresolved ones verbatim.
func (v TimeValue) String() string {
	if v.resolved {
		return v.instant.Format(time.RFC3339)
	}
	return v.raw
}

func (v TimeValue) MarshalJSON() ([]byte, error) {
	if v.resolved {
		return json.Marshal(struct {
			Instant time.Time `json:"instant"`
		}{v.instant})
	}
	return json.Marshal(struct {
		Raw string `json:"raw"`
	}{v.raw})
}

// CalendarEntry is one flattened calendar item. Start <= End is not
// guaranteed.
type CalendarEntry struct {
	UID         string    `json:"uid"`
	Kind        Kind      `json:"kind"`
	Title       string    `json:"title"`
	Start       TimeValue `json:"start"`
	End         TimeValue `json:"end"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	URL         string    `json:"url,omitempty"`

	// Engagement is the name of the engagement the entry came from.
	Engagement string `json:"engagement"`
}
