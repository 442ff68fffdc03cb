// Package dedup classifies each poll's records as new, updated or unchanged
// against the incidents remembered from earlier polls, and expires entries
// once their dispatch time falls behind the retention horizon. The board has
// no closure signal, so expiry is the only way an incident ever leaves
// memory: transient absence from a poll means nothing.
package dedup

import (
	"time"

	"github.com/chescofire/cadwatch/internal/cad"
)

// Event says why a record is being published.
type Event string

const (
	EventNew     Event = "new"
	EventUpdated Event = "updated"
)

// Publication is one record due for the bus, tagged with its reason.
type Publication struct {
	Record cad.Incident
	Event  Event
}

// Known is the remembered snapshot for one identity key.
type Known struct {
	Record    cad.Incident `json:"record"`
	FirstSeen time.Time    `json:"first_seen"`
	LastSeen  time.Time    `json:"last_seen"`
}

// State maps identity keys to remembered snapshots. A single owner passes it
// into Reconcile and keeps the returned copy; nothing here is safe for
// concurrent mutation.
type State map[string]Known

// Clone copies the map. Snapshots are immutable values, so a shallow entry
// copy is enough.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Normalize repairs snapshots after deserialization: nil unit slices become
// empty, and a map key shaped like a CAD number is restored onto its record,
// since board-internal fields do not survive the wire format.
func (s State) Normalize() State {
	for key, known := range s {
		if known.Record.Units == nil {
			known.Record = known.Record.WithUnits(nil)
		}
		if known.Record.Number == "" && cad.IsCADNumber(key) {
			known.Record.Number = key
		}
		s[key] = known
	}
	return s
}

// Reconciler decides what each poll is worth telling the bus about.
type Reconciler struct {
	retention time.Duration
}

// NewReconciler builds a reconciler whose state entries expire once the
// underlying incident's dispatch time is more than retention behind the poll
// time. Zero disables expiry.
func NewReconciler(retention time.Duration) *Reconciler {
	return &Reconciler{retention: retention}
}

// Reconcile compares incoming records against prev and returns the
// publications the cycle owes the bus, the next state, and the number of
// entries evicted. prev is never modified. Publication order follows
// incoming order.
//
// A record under an unseen identity key publishes as new. A seen key whose
// units, description or station differ from the remembered snapshot
// publishes as updated and the snapshot is replaced. Anything else only
// refreshes the entry's last-seen time.
func (r *Reconciler) Reconcile(now time.Time, incoming []cad.Incident, prev State) ([]Publication, State, int) {
	next := make(State, len(prev)+len(incoming))
	evicted := 0
	for key, known := range prev {
		if r.retention > 0 && known.Record.Timestamp.Before(now.Add(-r.retention)) {
			evicted++
			continue
		}
		next[key] = known
	}

	var pubs []Publication
	for _, rec := range incoming {
		key := rec.IdentityKey()
		known, seen := next[key]
		switch {
		case !seen:
			next[key] = Known{Record: rec, FirstSeen: now, LastSeen: now}
			pubs = append(pubs, Publication{Record: rec, Event: EventNew})
		case rec.Unchanged(known.Record):
			known.LastSeen = now
			next[key] = known
		default:
			next[key] = Known{Record: rec, FirstSeen: known.FirstSeen, LastSeen: now}
			pubs = append(pubs, Publication{Record: rec, Event: EventUpdated})
		}
	}
	return pubs, next, evicted
}
