// Package transport reads the semi-structured ground-transport notes kept
// in the workspace database:
//
//	Driver: Sam Ortiz
//	Passenger: Jane Doe, John Roe
//	Driver Info:
//	Sam Ortiz (555) 010-2000
//	Black Suburban
//	Passenger Info:
//	Meetup Location: Hotel lobby
//	123 Main St, Anytown, CA
//	Meetup Time: 6:00 PM
//	Confirmation: QX81
//
// Labels are matched case-insensitively at the start of a line. Text that
// does not belong to a known label is dropped.
package transport

import (
	"regexp"
	"strings"
)

type label string

const (
	labelDriver        label = "driver"
	labelPassenger     label = "passenger"
	labelDriverInfo    label = "driver info"
	labelPassengerInfo label = "passenger info"
	labelConfirmation  label = "confirmation"
)

var (
	// Longer labels first so "Driver Info:" wins over "Driver:".
	sectionPattern = regexp.MustCompile(`(?i)^\s*(driver info|passenger info|driver|passenger|confirmation)\s*:\s*(.*)$`)
	meetupLocation = regexp.MustCompile(`(?i)^\s*meetup location\s*:\s*(.*)$`)
	meetupTime     = regexp.MustCompile(`(?i)^\s*meetup time\s*:\s*(.*)$`)

	// "123 Main St, Anytown, CA", "4500 W. Sunset Blvd"
	streetAddress = regexp.MustCompile(`^\d+[A-Za-z]?\s+[A-Za-z0-9]`)
)

// Meetup is the pickup point announced inside a Passenger Info block.
type Meetup struct {
	Location string
	// Address is the street line following the location line, if any.
	Address string
	Time    string
}

// Place returns the street address when known, else the location text.
func (m Meetup) Place() string {
	if m.Address != "" {
		return m.Address
	}
	return m.Location
}

// Details is everything the label grammar recognised in one note.
type Details struct {
	Driver        string
	Passengers    []string
	DriverInfo    []string
	PassengerInfo []string
	Confirmation  string

	// Meetup is nil unless Passenger Info has both a location and a time.
	Meetup *Meetup
}

// Empty reports whether nothing was recognised.
func (d Details) Empty() bool {
	return d.Driver == "" && len(d.Passengers) == 0 && len(d.DriverInfo) == 0 &&
		len(d.PassengerInfo) == 0 && d.Confirmation == ""
}

// LabelParser is the regular-expression implementation of the grammar.
type LabelParser struct{}

func (LabelParser) Parse(text string) Details { return Parse(text) }

// Parse extracts labeled sections from text.
func Parse(text string) Details {
	var (
		d       Details
		current label
	)

	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for _, raw := range lines {
		line := strings.TrimSpace(raw)

		if m := sectionPattern.FindStringSubmatch(line); m != nil {
			current = label(strings.ToLower(m[1]))
			rest := strings.TrimSpace(m[2])
			switch current {
			case labelDriver:
				d.Driver = rest
			case labelPassenger:
				d.Passengers = append(d.Passengers, splitNames(rest)...)
			case labelConfirmation:
				d.Confirmation = rest
			case labelDriverInfo:
				if rest != "" {
					d.DriverInfo = append(d.DriverInfo, rest)
				}
			case labelPassengerInfo:
				if rest != "" {
					d.PassengerInfo = append(d.PassengerInfo, rest)
				}
			}
			continue
		}

		if line == "" {
			continue
		}
		switch current {
		case labelDriverInfo:
			d.DriverInfo = append(d.DriverInfo, line)
		case labelPassengerInfo:
			d.PassengerInfo = append(d.PassengerInfo, line)
		}
	}

	d.Meetup = findMeetup(d.PassengerInfo)
	return d
}

func findMeetup(lines []string) *Meetup {
	var (
		m                    Meetup
		hasLocation, hasTime bool
	)
	for i, line := range lines {
		if sub := meetupLocation.FindStringSubmatch(line); sub != nil {
			m.Location = strings.TrimSpace(sub[1])
			hasLocation = m.Location != ""
			if i+1 < len(lines) && streetAddress.MatchString(lines[i+1]) {
				m.Address = lines[i+1]
			}
			continue
		}
		if sub := meetupTime.FindStringSubmatch(line); sub != nil {
			m.Time = strings.TrimSpace(sub[1])
			hasTime = m.Time != ""
		}
	}
	if !hasLocation || !hasTime {
		return nil
	}
	return &m
}

func splitNames(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if name := strings.TrimSpace(part); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// Render rebuilds a plain-text description from the recognised sections.
func (d Details) Render() string {
	var b strings.Builder
	line := func(s string) {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(s)
	}

	if d.Driver != "" {
		line("Driver: " + d.Driver)
	}
	if len(d.Passengers) > 0 {
		line("Passengers:")
		for _, p := range d.Passengers {
			line(p)
		}
	}
	if len(d.DriverInfo) > 0 {
		line("Driver Info:")
		for _, l := range d.DriverInfo {
			line("• " + l)
		}
	}
	if len(d.PassengerInfo) > 0 {
		line("Passenger Info:")
		for _, l := range d.PassengerInfo {
			line("• " + l)
		}
	}
	if d.Confirmation != "" {
		line("Confirmation: " + d.Confirmation)
	}
	return b.String()
}
