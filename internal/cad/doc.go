// Package cad models live incidents published by the Chester County
// "WebCAD" dispatch board and turns its markup into structured records.
//
// The upstream page is not an API. It is a server-rendered HTML table whose
// visible text, read top to bottom, follows a fixed shape: a section header
// ("Fire Incidents", "EMS Incidents" or "Traffic Incidents") followed by
// repeating six-line blocks, one per incident:
//
//	F25065066
//	BUILDING FIRE
//	123 MAIN ST
//	WEST CHESTER BOROUGH
//	03-15-2025 14:23:05
//	Stn 51
//
// A block starts at any line matching an incident number (one capital letter
// followed by digits). Column header lines such as "Incident No." and the
// page's "Last Updated" footer are noise and are ignored. Incident numbers may
// be wrapped in an anchor pointing at a LiveCADComments detail page; that page
// carries per-unit status lines ("03-15-2025 14:29:55 ENG51> On Scene") from
// which responding units are extracted.
//
// Timestamps are rendered in US-Eastern local time with no zone designator,
// in MM-DD-YYYY HH:MM:SS form. All parsing in this package therefore takes an
// explicit *time.Location.
//
// The parser tolerates the board's known failure modes: blocks cut off at the
// bottom of the page, garbled timestamp cells, and incidents the county
// leaves on the board for days. Records that cannot be assembled are counted
// and dropped rather than failing the whole document.
package cad
