package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// RosterKind selects which roster page is being parsed.
type RosterKind string

const (
	RosterGroups   RosterKind = "groups"
	RosterTeachers RosterKind = "teachers"
)

var (
	groupHrefRe   = regexp.MustCompile(`(?i)^(?:.*/)?cg(\d+)\.html?$`)
	teacherHrefRe = regexp.MustCompile(`(?i)^(?:.*/)?cp(\d+)\.html?$`)
	updatedRe     = regexp.MustCompile(`(?i)обновлен[оа]?\D{0,20}?(\d{2}\.\d{2}\.\d{4})(?:\D{1,5}(\d{1,2}:\d{2}))?`)
)

// RosterEntry is one link on a roster page.
type RosterEntry struct {
	Code string
	Name string
	Href string
}

// Roster is a parsed roster page.
type Roster struct {
	Kind    RosterKind
	Entries []RosterEntry
	// UpdatedAt is the site's "last updated" stamp, when the page shows one.
	UpdatedAt *time.Time
}

func hrefPattern(kind RosterKind) *regexp.Regexp {
	if kind == RosterTeachers {
		return teacherHrefRe
	}
	return groupHrefRe
}

// ParseRoster extracts every marker-tagged link whose href carries a numeric id.
// Duplicate codes keep their first occurrence.
func (p *Parser) ParseRoster(content string, kind RosterKind) (*Roster, error) {
	doc, err := p.document(string(kind)+" roster", content)
	if err != nil {
		return nil, err
	}

	pattern := hrefPattern(kind)
	roster := &Roster{Kind: kind}
	seen := make(map[string]struct{})

	sel := "a." + p.markers.RosterLink + ", ." + p.markers.RosterLink + " a"
	doc.Find(sel).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		m := pattern.FindStringSubmatch(href)
		if m == nil {
			return
		}
		name := collapse(a.Text())
		if name == "" {
			return
		}
		if _, dup := seen[m[1]]; dup {
			return
		}
		seen[m[1]] = struct{}{}
		roster.Entries = append(roster.Entries, RosterEntry{Code: m[1], Name: name, Href: href})
	})

	roster.UpdatedAt = p.updatedAt(doc.Text())
	return roster, nil
}

func (p *Parser) updatedAt(text string) *time.Time {
	m := updatedRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	value, layout := m[1], "02.01.2006"
	if m[2] != "" {
		value += " " + m[2]
		layout += " 15:04"
	}
	ts, err := time.ParseInLocation(layout, value, p.loc)
	if err != nil {
		return nil
	}
	return &ts
}

// CodeFromHref returns the numeric id of a group or teacher page link.
func CodeFromHref(kind RosterKind, href string) (string, bool) {
	m := hrefPattern(kind).FindStringSubmatch(strings.TrimSpace(href))
	if m == nil {
		return "", false
	}
	return m[1], true
}
