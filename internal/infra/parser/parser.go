// Package parser turns timetable site pages into schedule records.
//
// Two grammars share the same table markup: roster pages list groups or
// teachers as links, and schedule pages hold one row per lesson slot with the
// day carried forward from the last row that had a date cell.
package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Markers are the CSS classes the source site uses to tag cell content.
type Markers struct {
	RosterLink string
	Empty      string
	Subject    string
	Room       string
	Teacher    string
	Group      string
}

// DefaultMarkers matches the markup produced by the timetable site.
func DefaultMarkers() Markers {
	return Markers{
		RosterLink: "z0",
		Empty:      "nul",
		Subject:    "z1",
		Room:       "z2",
		Teacher:    "z3",
		Group:      "z4",
	}
}

// ParseError reports a page that could not be read as HTML at all.
type ParseError struct {
	Page string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Page, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parser holds marker classes and the zone used for source timestamps.
type Parser struct {
	markers Markers
	loc     *time.Location
}

// New returns a parser. A nil location means UTC.
func New(markers Markers, loc *time.Location) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	return &Parser{markers: markers, loc: loc}
}

func (p *Parser) document(page, content string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, &ParseError{Page: page, Err: err}
	}
	return doc, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
