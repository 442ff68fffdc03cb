package cad

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const boardURL = "https://webcad.chesco.org/WebCad/webcad.asp"

const listingPage = `<html><head><title>Live Incident Status</title></head><body>
<table>
<tr><td colspan="6">Fire Incidents</td></tr>
<tr><td>Incident No.</td><td>Type</td><td>Location</td><td>Municipality</td><td>Dispatched</td><td>Station</td></tr>
<tr>
<td><a href="LiveCADComments.asp?ID=F25065066">F25065066</a></td>
<td>Building  Fire</td>
<td>123 MAIN ST</td>
<td>WEST CHESTER BOROUGH</td>
<td>03-15-2025 14:23:05</td>
<td>51</td>
</tr>
<tr>
<td>F25065070</td>
<td>AUTOMATIC FIRE ALARM</td>
<td>9 WATERVIEW RD</td>
<td>EAST BRADFORD TOWNSHIP</td>
<td>03-15-2025 15:02:41</td>
<td>52</td>
</tr>
<tr><td colspan="6">EMS Incidents</td></tr>
<tr><td>Incident No.</td><td>Type</td><td>Location</td><td>Municipality</td><td>Dispatched</td><td>Station</td></tr>
<tr>
<td><a href="/WebCad/LiveCADComments.asp?ID=M25081001">M25081001</a></td>
<td>MEDICAL</td>
<td>LOCUST ST</td>
<td>OXFORD BOROUGH</td>
<td>03-15-2025 15:10:00</td>
<td>21</td>
</tr>
<tr><td colspan="6">Traffic Incidents</td></tr>
<tr>
<td>T25012345</td>
<td>VEHICLE ACCIDENT</td>
<td>RT 100 / RT 113</td>
<td>UWCHLAN TOWNSHIP</td>
<td>03-15-2025 15:20:30</td>
<td>47</td>
</tr>
</table>
<p>Last Updated 03-15-2025 15:25:00</p>
</body></html>`

func eastern(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func testParser(t *testing.T, maxAge time.Duration) (*Parser, *time.Location) {
	t.Helper()
	loc := eastern(t)
	p, err := NewParser(boardURL, loc, maxAge)
	require.NoError(t, err)
	return p, loc
}

func TestParseListingExtractsIncidents(t *testing.T) {
	t.Parallel()

	p, loc := testParser(t, 8*time.Hour)
	now := time.Date(2025, 3, 15, 16, 0, 0, 0, loc)

	listing, err := p.ParseListing([]byte(listingPage), now)
	require.NoError(t, err)
	require.Len(t, listing.Incidents, 4)
	require.Zero(t, listing.Malformed)
	require.Zero(t, listing.Stale)
	require.Zero(t, listing.Defaulted)

	fire := listing.Incidents[0]
	require.Equal(t, "F25065066", fire.Number)
	require.Equal(t, CategoryFire, fire.Category)
	require.Equal(t, "BUILDING FIRE", fire.Type)
	require.Equal(t, "123 MAIN ST", fire.Location)
	require.Equal(t, "WEST CHESTER BOROUGH", fire.Municipality)
	require.Equal(t, "51", fire.Station)
	require.Equal(t, time.Date(2025, 3, 15, 14, 23, 5, 0, loc), fire.Timestamp)
	require.Equal(t, "123 MAIN ST | WEST CHESTER BOROUGH | BUILDING FIRE | FIRE | Stn 51", fire.Description)
	require.Equal(t, "https://webcad.chesco.org/WebCad/LiveCADComments.asp?ID=F25065066", fire.CommentsURL)
	require.NotNil(t, fire.Units)
	require.Empty(t, fire.Units)

	require.Equal(t, "F25065070", listing.Incidents[1].Number)
	require.Empty(t, listing.Incidents[1].CommentsURL)

	ems := listing.Incidents[2]
	require.Equal(t, CategoryEMS, ems.Category)
	require.Equal(t, "MEDICAL", ems.Type)
	require.Equal(t, "OXFORD BOROUGH", ems.Municipality)
	require.Equal(t, "https://webcad.chesco.org/WebCad/LiveCADComments.asp?ID=M25081001", ems.CommentsURL)

	require.Equal(t, CategoryTraffic, listing.Incidents[3].Category)
}

func TestParseListingSkipsMalformedBlock(t *testing.T) {
	t.Parallel()

	p, loc := testParser(t, 8*time.Hour)
	now := time.Date(2025, 3, 15, 16, 0, 0, 0, loc)

	page := `<html><body><pre>
Fire Incidents
F25065066
BUILDING FIRE
123 MAIN ST
WEST CHESTER BOROUGH
03-15-2025 14:23:05
51
F25065067
MEDICAL EMERGENCY
456 LOCUST ST
F25065068
DWELLING FIRE
77 OAK LN
OXFORD BOROUGH
03-15-2025 15:00:00
21
</pre></body></html>`

	listing, err := p.ParseListing([]byte(page), now)
	require.NoError(t, err)
	require.Equal(t, 1, listing.Malformed)
	require.Len(t, listing.Incidents, 2)
	require.Equal(t, "F25065066", listing.Incidents[0].Number)
	require.Equal(t, "F25065068", listing.Incidents[1].Number)
}

func TestParseListingZeroIncidents(t *testing.T) {
	t.Parallel()

	p, loc := testParser(t, 8*time.Hour)
	now := time.Date(2025, 3, 15, 16, 0, 0, 0, loc)

	page := `<html><body>
<p>Fire Incidents</p>
<p>No incidents to display</p>
<p>Last Updated 03-15-2025 15:25:00</p>
</body></html>`

	listing, err := p.ParseListing([]byte(page), now)
	require.NoError(t, err)
	require.Empty(t, listing.Incidents)
	require.Zero(t, listing.Malformed)
}

func TestParseListingEmptyDocumentFails(t *testing.T) {
	t.Parallel()

	p, loc := testParser(t, 8*time.Hour)
	now := time.Date(2025, 3, 15, 16, 0, 0, 0, loc)

	for _, raw := range []string{"", "<html><body></body></html>"} {
		_, err := p.ParseListing([]byte(raw), now)
		var perr *ParseError
		require.ErrorAs(t, err, &perr)
	}
}

func TestParseListingDropsStaleIncidents(t *testing.T) {
	t.Parallel()

	p, loc := testParser(t, 8*time.Hour)
	now := time.Date(2025, 3, 15, 16, 0, 0, 0, loc)

	page := `<html><body><pre>
EMS Incidents
M25080990
MEDICAL
12 ELM ST
OXFORD BOROUGH
03-14-2025 02:00:00
21
M25081001
MEDICAL
LOCUST ST
OXFORD BOROUGH
03-15-2025 15:10:00
21
</pre></body></html>`

	listing, err := p.ParseListing([]byte(page), now)
	require.NoError(t, err)
	require.Equal(t, 1, listing.Stale)
	require.Len(t, listing.Incidents, 1)
	require.Equal(t, "M25081001", listing.Incidents[0].Number)
}

func TestParseListingKeepsEverythingWithoutMaxAge(t *testing.T) {
	t.Parallel()

	p, loc := testParser(t, 0)
	now := time.Date(2025, 3, 15, 16, 0, 0, 0, loc)

	page := `<html><body><pre>
EMS Incidents
M25080990
MEDICAL
12 ELM ST
OXFORD BOROUGH
03-01-2025 02:00:00
21
</pre></body></html>`

	listing, err := p.ParseListing([]byte(page), now)
	require.NoError(t, err)
	require.Zero(t, listing.Stale)
	require.Len(t, listing.Incidents, 1)
}

func TestParseListingDefaultsGarbledClockCell(t *testing.T) {
	t.Parallel()

	p, loc := testParser(t, 8*time.Hour)
	now := time.Date(2025, 3, 15, 16, 0, 0, 0, loc)

	page := `<html><body><pre>
Fire Incidents
F25065066
BUILDING FIRE
123 MAIN ST
WEST CHESTER BOROUGH
03-15-2025
51
</pre></body></html>`

	listing, err := p.ParseListing([]byte(page), now)
	require.NoError(t, err)
	require.Equal(t, 1, listing.Defaulted)
	require.Len(t, listing.Incidents, 1)
	require.Equal(t, now.In(loc), listing.Incidents[0].Timestamp)
}

func TestParseListingUnknownCategoryBeforeHeader(t *testing.T) {
	t.Parallel()

	p, loc := testParser(t, 8*time.Hour)
	now := time.Date(2025, 3, 15, 16, 0, 0, 0, loc)

	page := `<html><body><pre>
F25065066
BUILDING FIRE
123 MAIN ST
WEST CHESTER BOROUGH
03-15-2025 14:23:05
51
</pre></body></html>`

	listing, err := p.ParseListing([]byte(page), now)
	require.NoError(t, err)
	require.Len(t, listing.Incidents, 1)
	require.Equal(t, CategoryUnknown, listing.Incidents[0].Category)
	require.Contains(t, listing.Incidents[0].Description, "| UNKNOWN |")
}

func TestParseComments(t *testing.T) {
	t.Parallel()

	page := `<html><body><table>
<tr><td>03-15-2025 14:29:55 ENG51&gt; On Scene</td></tr>
<tr><td>03-15-2025 14:23:12 AMB891&gt; Dispatched</td></tr>
<tr><td>TWR45&gt; At Scene</td></tr>
<tr><td>ENG51&gt; ON SCENE</td></tr>
</table></body></html>`

	units := ParseComments([]byte(page))
	require.Equal(t, []string{"ENG51", "TWR45"}, units)
}

func TestParseCommentsUnusableInput(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "<html><body>nothing here</body></html>", "plain text"} {
		units := ParseComments([]byte(raw))
		require.NotNil(t, units)
		require.Empty(t, units)
	}
}

func TestNormalizeType(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		" Building  Fire ":     "BUILDING FIRE",
		"MEDICAL":              "MEDICAL",
		"vehicle\taccident":    "VEHICLE ACCIDENT",
		"standby   transfer  ": "STANDBY TRANSFER",
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizeType(in))
	}
}

func TestNewParserRejectsBadURL(t *testing.T) {
	t.Parallel()

	_, err := NewParser("://not-a-url", time.UTC, time.Hour)
	require.Error(t, err)
}

func TestParseErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := &ParseError{Reason: "unreadable document", Err: cause}
	require.ErrorIs(t, err, cause)
}
