package cad

import (
	"fmt"
	"strings"
	"time"

	"github.com/chescofire/cadwatch/internal/hash/sha256"
)

// Category identifies which section of the dispatch board a record came from.
type Category string

const (
	CategoryFire    Category = "FIRE"
	CategoryEMS     Category = "EMS"
	CategoryTraffic Category = "TRAFFIC"
	CategoryUnknown Category = "UNKNOWN"
)

// Incident is one dispatch-board entry. The JSON form is the wire contract
// consumed by downstream automations: exactly timestamp, type, description,
// location, municipality, station and units. Board-internal fields used for
// identity and enrichment are never serialized.
//
// Incidents are treated as immutable values. Derive changed copies with
// WithUnits rather than mutating in place.
type Incident struct {
	Number      string   `json:"-"`
	Category    Category `json:"-"`
	CommentsURL string   `json:"-"`

	Timestamp    time.Time `json:"timestamp"`
	Type         string    `json:"type"`
	Description  string    `json:"description"`
	Location     string    `json:"location"`
	Municipality string    `json:"municipality"`
	Station      string    `json:"station"`
	Units        []string  `json:"units"`
}

// IdentityKey returns the key that identifies this incident across polls.
// The county's CAD number is authoritative when present. Rows rendered
// without one fall back to a content hash of the fields that cannot change
// over an incident's lifetime.
func (i Incident) IdentityKey() string {
	if i.Number != "" {
		return i.Number
	}
	seed := strings.Join([]string{
		i.Timestamp.UTC().Format(time.RFC3339),
		i.Location,
		i.Type,
	}, "|")
	return sha256.Hex(seed)
}

// WithUnits returns a copy of the incident with its responding units
// replaced. A nil slice is normalized to an empty one so the wire form is
// always a JSON array.
func (i Incident) WithUnits(units []string) Incident {
	if units == nil {
		units = []string{}
	}
	i.Units = units
	return i
}

// Unchanged reports whether republishing i would tell a consumer nothing new
// compared to prev: same responding units in the same order, same description
// and same station. Timestamp and identity fields are not compared; they are
// fixed for the lifetime of an incident.
func (i Incident) Unchanged(prev Incident) bool {
	if i.Description != prev.Description || i.Station != prev.Station {
		return false
	}
	if len(i.Units) != len(prev.Units) {
		return false
	}
	for k := range i.Units {
		if i.Units[k] != prev.Units[k] {
			return false
		}
	}
	return true
}

// Describe renders the pipe-delimited description line used in the published
// payload, e.g. "123 MAIN ST | WEST CHESTER BOROUGH | BUILDING FIRE | FIRE | Stn 51".
func Describe(location, municipality, incidentType string, category Category, station string) string {
	return fmt.Sprintf("%s | %s | %s | %s | Stn %s",
		location, municipality, incidentType, category, station)
}

// Summary is the board-wide snapshot optionally published after each cycle,
// retained on the bus so late subscribers see the current picture.
type Summary struct {
	GeneratedAt time.Time  `json:"last_update"`
	Parsed      int        `json:"total_incidents"`
	Matched     int        `json:"filtered_incidents"`
	Published   int        `json:"published"`
	Incidents   []Incident `json:"incidents"`
}
