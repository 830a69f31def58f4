// Package feed turns a person identifier into a calendar document: it
// fetches the person's schedule blob, flattens it and assembles the
// requested format.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"

	"crewcal/internal/flatten"
	"crewcal/internal/ics"
	appLog "crewcal/internal/log"
	"crewcal/internal/model"
	"crewcal/internal/notion"
)

// Source returns a person's display name and raw schedule blob.
type Source interface {
	GetPerson(ctx context.Context, id string) (notion.Person, error)
}

// Result is a generated feed.
type Result struct {
	ics.Document

	PersonID   string
	PersonName string

	// Entries is the number of flattened entries before serialization.
	Entries int
	// Empty marks the no-events condition; Document still holds a valid
	// empty calendar or summary.
	Empty bool
}

// Service generates feeds. It holds no per-request state and is safe for
// concurrent use.
type Service struct {
	src       Source
	flattener *flatten.Flattener
	assembler *ics.Assembler
}

func NewService(src Source, f *flatten.Flattener, a *ics.Assembler) *Service {
	if f == nil {
		f = flatten.New()
	}
	if a == nil {
		a = ics.NewAssembler(ics.Options{})
	}
	return &Service{src: src, flattener: f, assembler: a}
}

// CanonicalID accepts 32-character hex and hyphenated UUID forms and
// returns the hyphenated lower-case form.
func CanonicalID(id string) (string, error) {
	id = strings.TrimSpace(id)
	u, err := uuid.Parse(id)
	if err != nil {
		return "", newError(CodeNotFound, "invalid person id", err)
	}
	return u.String(), nil
}

// Generate fetches the schedule of personID and renders it in format.
func (s *Service) Generate(ctx context.Context, personID string, format ics.Format) (Result, error) {
	id, err := CanonicalID(personID)
	if err != nil {
		return Result{}, err
	}

	person, err := s.src.GetPerson(ctx, id)
	if err != nil {
		if errors.Is(err, notion.ErrNotFound) {
			return Result{}, newError(CodeNotFound, "person not found", err)
		}
		return Result{}, newError(CodeUpstream, "fetch schedule", err)
	}
	return s.render(id, person, format)
}

// GeneratePerson renders an already-fetched person, such as a row of a
// database query, without another round trip to the source.
func (s *Service) GeneratePerson(person notion.Person, format ics.Format) (Result, error) {
	id, err := CanonicalID(person.ID)
	if err != nil {
		return Result{}, err
	}
	return s.render(id, person, format)
}

func (s *Service) render(id string, person notion.Person, format ics.Format) (Result, error) {
	res := Result{PersonID: id, PersonName: person.Name}

	blob := strings.TrimSpace(person.Schedule)
	if blob == "" {
		return s.empty(res, format)
	}

	var record model.RawScheduleRecord
	if err := json.Unmarshal([]byte(blob), &record); err != nil {
		return Result{}, newError(CodeMalformed, "schedule data is not valid JSON", err)
	}
	if res.PersonName == "" {
		res.PersonName = record.Name
	}

	entries := s.flattener.Flatten(record)
	if len(entries) == 0 {
		return s.empty(res, format)
	}

	doc, err := s.assembler.Assemble(entries, format, res.PersonName)
	if err != nil {
		return Result{}, err
	}
	res.Document = doc
	res.Entries = len(entries)

	// Every entry was dropped for unusable times.
	if format == ics.FormatICS && doc.Written == 0 {
		res.Empty = true
		appLog.Info("feed has no usable events", "person", id, "skipped", doc.Skipped)
		return res, nil
	}

	appLog.Debug("feed generated",
		"person", id,
		"format", string(format),
		"entries", len(entries),
		"written", doc.Written,
		"skipped", doc.Skipped,
	)
	return res, nil
}

func (s *Service) empty(res Result, format ics.Format) (Result, error) {
	var (
		doc ics.Document
		err error
	)
	if format == ics.FormatJSON {
		doc, err = s.assembler.SummaryWithReason(nil, res.PersonName, string(CodeNoEvents))
	} else {
		doc, err = s.assembler.Assemble(nil, format, res.PersonName)
	}
	if err != nil {
		return Result{}, err
	}
	res.Document = doc
	res.Empty = true
	appLog.Info("feed has no events", "person", res.PersonID)
	return res, nil
}
