package cad

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const timestampLayout = "01-02-2006 15:04:05"

var (
	incidentNumberRe = regexp.MustCompile(`^[A-Z]\d+$`)
	timestampRe      = regexp.MustCompile(`^\d{2}-\d{2}-\d{4} \d{2}:\d{2}:\d{2}$`)
	datePrefixRe     = regexp.MustCompile(`^\d{2}-\d{2}-\d{4}`)
)

var sectionCategories = map[string]Category{
	"Fire Incidents":    CategoryFire,
	"EMS Incidents":     CategoryEMS,
	"Traffic Incidents": CategoryTraffic,
}

var noisePrefixes = []string{"Incident No.", "Last Updated"}

// Listing is the outcome of parsing one board page. Dropped blocks are
// counted, not returned: Malformed blocks did not fit the six-line shape,
// Stale ones fell outside the freshness window, and Defaulted counts
// incidents kept with the fetch time substituted for a garbled clock cell.
type Listing struct {
	Incidents []Incident
	Malformed int
	Stale     int
	Defaulted int
}

// Parser turns dispatch-board markup into incident records.
type Parser struct {
	base   *url.URL
	loc    *time.Location
	maxAge time.Duration
}

// NewParser builds a parser for a board served at baseURL. Relative detail
// links resolve against it. Board timestamps are read in loc, and incidents
// older than maxAge (zero disables the check) are dropped as stale.
func NewParser(baseURL string, loc *time.Location, maxAge time.Duration) (*Parser, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse board url: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Parser{base: base, loc: loc, maxAge: maxAge}, nil
}

// ParseListing extracts every readable incident block from raw. Unreadable
// blocks are skipped and counted. The only fatal condition is a document
// that flattens to no text at all, which means the board served something
// other than the listing page.
func (p *Parser) ParseListing(raw []byte, now time.Time) (Listing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return Listing{}, &ParseError{Reason: "unreadable document", Err: err}
	}
	lines := textLines(doc)
	if len(lines) == 0 {
		return Listing{}, &ParseError{Reason: "document has no text"}
	}
	links := p.commentLinks(doc)

	var listing Listing
	category := CategoryUnknown
	i := 0
	for i < len(lines) {
		line := lines[i]
		if c, ok := sectionCategories[line]; ok {
			category = c
			i++
			continue
		}
		if isNoise(line) || !incidentNumberRe.MatchString(line) {
			i++
			continue
		}
		if i+6 > len(lines) {
			listing.Malformed++
			break
		}
		rec, kind := p.assemble(lines[i:i+6], links, category, now)
		switch kind {
		case blockMalformed:
			listing.Malformed++
			// Realign on the next incident number instead of blindly
			// consuming six lines; a short block would otherwise swallow
			// the start of its well-formed neighbor.
			i++
			continue
		case blockStale:
			listing.Stale++
		case blockDefaulted:
			listing.Defaulted++
			listing.Incidents = append(listing.Incidents, rec)
		default:
			listing.Incidents = append(listing.Incidents, rec)
		}
		i += 6
	}
	return listing, nil
}

type blockKind int

const (
	blockOK blockKind = iota
	blockDefaulted
	blockStale
	blockMalformed
)

func (p *Parser) assemble(block []string, links map[string]string, category Category, now time.Time) (Incident, blockKind) {
	number, rawType, location, municipality, tsLine, station :=
		block[0], block[1], block[2], block[3], block[4], block[5]

	ts, kind := p.blockTime(tsLine, now)
	if kind == blockMalformed {
		return Incident{}, blockMalformed
	}
	if p.maxAge > 0 && ts.Before(now.Add(-p.maxAge)) {
		return Incident{}, blockStale
	}

	incidentType := NormalizeType(rawType)
	rec := Incident{
		Number:       number,
		Category:     category,
		CommentsURL:  links[number],
		Timestamp:    ts,
		Type:         incidentType,
		Location:     location,
		Municipality: municipality,
		Station:      station,
		Units:        []string{},
		Description:  Describe(location, municipality, incidentType, category, station),
	}
	return rec, kind
}

// blockTime reads the block's clock cell. An exact MM-DD-YYYY HH:MM:SS cell
// wins; a cell that still leads with a date but has a missing or garbled
// time falls back to the fetch time; anything else marks the block malformed.
func (p *Parser) blockTime(line string, now time.Time) (time.Time, blockKind) {
	if timestampRe.MatchString(line) {
		if ts, err := time.ParseInLocation(timestampLayout, line, p.loc); err == nil {
			return ts, blockOK
		}
	}
	if datePrefixRe.MatchString(line) {
		return now.In(p.loc), blockDefaulted
	}
	return time.Time{}, blockMalformed
}

// ParseComments extracts responding units from an incident detail page. A
// unit is the last whitespace-delimited token before the first ">" on any
// status line mentioning a scene arrival. First-appearance order is kept and
// duplicates are dropped. Unusable input yields no units, never an error.
func ParseComments(raw []byte) []string {
	units := []string{}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return units
	}
	seen := make(map[string]struct{})
	for _, line := range textLines(doc) {
		cut := strings.Index(line, ">")
		if cut < 0 || !strings.Contains(strings.ToLower(line), "scene") {
			continue
		}
		fields := strings.Fields(line[:cut])
		if len(fields) == 0 {
			continue
		}
		unit := fields[len(fields)-1]
		if _, dup := seen[unit]; dup {
			continue
		}
		seen[unit] = struct{}{}
		units = append(units, unit)
	}
	return units
}

// NormalizeType uppercases a raw incident type and collapses interior
// whitespace, e.g. " Building  Fire " becomes "BUILDING FIRE".
func NormalizeType(raw string) string {
	return strings.ToUpper(strings.Join(strings.Fields(raw), " "))
}

// IsCADNumber reports whether s has the shape of a county CAD number.
func IsCADNumber(s string) bool {
	return incidentNumberRe.MatchString(s)
}

// textLines flattens a document to its visible text, one trimmed line per
// text fragment, dropping script and style subtrees.
func textLines(doc *goquery.Document) []string {
	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			for _, part := range strings.Split(n.Data, "\n") {
				if s := strings.TrimSpace(part); s != "" {
					lines = append(lines, s)
				}
			}
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, root := range doc.Nodes {
		walk(root)
	}
	return lines
}

// commentLinks maps incident numbers to their absolute detail-page URLs by
// scanning anchors whose href mentions the LiveCADComments endpoint.
func (p *Parser) commentLinks(doc *goquery.Document) map[string]string {
	links := make(map[string]string)
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" || !strings.Contains(strings.ToLower(href), "livecadcomments") {
			return
		}
		number := strings.TrimSpace(a.Text())
		if !incidentNumberRe.MatchString(number) {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		links[number] = p.base.ResolveReference(ref).String()
	})
	return links
}

func isNoise(line string) bool {
	for _, prefix := range noisePrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
