package ical

import (
	"fmt"
	"strings"
	"time"

	"learnadoodle/src-server/calendar"
)

const PROD_ID = "-//learnadoodle//calendar feed//EN"

// Feed is a read-only VCALENDAR rendering of cached calendar events,
// meant for subscription from phone and desktop calendar apps.
type Feed struct {
	Name     string
	Location *time.Location
	// DTSTAMP source
	Now func() time.Time

	events []calendar.Event
}

func NewFeed(name string, loc *time.Location) *Feed {
	if loc == nil {
		loc = time.UTC
	}
	return &Feed{
		Name:     name,
		Location: loc,
		Now:      time.Now,
		events:   make([]calendar.Event, 0),
	}
}

// Add every event of the view in date order.
func (f *Feed) AddView(view calendar.FlatView) {
	for _, date := range view.Dates() {
		f.events = append(f.events, view[date]...)
	}
}

func (f *Feed) Len() int {
	return len(f.events)
}

// Marshal the feed into writer, one call per content line.
func (f *Feed) Write(writer func(string) error) error {
	write := foldWriter(writer)
	stamp := utcDateTimeValue(f.Now())

	for _, line := range []string{
		"BEGIN:VCALENDAR",
		"PRODID:" + PROD_ID,
		"VERSION:2.0",
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
		"X-WR-CALNAME:" + escapeText(f.Name),
		"X-WR-TIMEZONE:" + f.Location.String(),
	} {
		if err := write(line); err != nil {
			return fmt.Errorf("(*Feed).Write: %w", err)
		}
	}
	for _, ev := range f.events {
		lines, err := f.eventLines(ev, stamp)
		if err != nil {
			return fmt.Errorf("(*Feed).Write: event %s: %w", ev.ID, err)
		}
		for _, line := range lines {
			if err := write(line); err != nil {
				return fmt.Errorf("(*Feed).Write: %w", err)
			}
		}
	}
	if err := write("END:VCALENDAR"); err != nil {
		return fmt.Errorf("(*Feed).Write: %w", err)
	}
	return nil
}

// Marshal the feed into a string.
func (f *Feed) String() (string, error) {
	var sb strings.Builder
	if err := f.Write(func(s string) error {
		_, err := sb.WriteString(s)
		return err
	}); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (f *Feed) eventLines(ev calendar.Event, stamp string) ([]string, error) {
	lines := []string{
		"BEGIN:VEVENT",
		"UID:" + ev.ID + "@learnadoodle",
		"DTSTAMP:" + stamp,
		"SUMMARY:" + escapeText(ev.Title),
	}

	start, timed := ev.StartAt(f.Location)
	switch {
	case timed && ev.Kind != calendar.KindHoliday:
		startLine, err := f.dateTimeLine("DTSTART", start)
		if err != nil {
			return nil, err
		}
		lines = append(lines, startLine)
		if end, ok := ev.EndAt(f.Location); ok {
			endLine, err := f.dateTimeLine("DTEND", end)
			if err != nil {
				return nil, err
			}
			lines = append(lines, endLine)
		}
	default:
		startDate, err := dateValue(ev.ScheduledDate)
		if err != nil {
			return nil, err
		}
		endDate, err := nextDateValue(ev.ScheduledDate)
		if err != nil {
			return nil, err
		}
		lines = append(lines,
			"DTSTART;VALUE=DATE:"+startDate,
			"DTEND;VALUE=DATE:"+endDate,
		)
	}

	if ev.Description != "" {
		lines = append(lines, "DESCRIPTION:"+escapeText(ev.Description))
	}
	categories := []string{strings.ToUpper(string(ev.Kind))}
	if ev.SubjectName != "" {
		categories = append(categories, escapeText(ev.SubjectName))
	}
	lines = append(lines, "CATEGORIES:"+strings.Join(categories, ","))

	switch {
	case ev.Kind == calendar.KindHoliday:
		lines = append(lines, "TRANSP:TRANSPARENT")
	case ev.Status == calendar.StatusSkipped:
		lines = append(lines, "STATUS:CANCELLED")
	case ev.Status == calendar.StatusPlanned:
		lines = append(lines, "STATUS:TENTATIVE")
	default:
		lines = append(lines, "STATUS:CONFIRMED")
	}
	return append(lines, "END:VEVENT"), nil
}

// Zones without an IANA name are written in UTC.
func (f *Feed) dateTimeLine(name string, t time.Time) (string, error) {
	zone := f.Location.String()
	if zone == "UTC" || zone == "Local" {
		return name + ":" + utcDateTimeValue(t), nil
	}
	value, err := localDateTimeValue(t.In(f.Location))
	if err != nil {
		return "", err
	}
	return name + ";TZID=" + zone + ":" + value, nil
}
