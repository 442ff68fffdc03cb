package cad

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFoldMunicipality(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"  Oxford  Borough ":     "oxford borough",
		"OXFORD BOROUGH":         "oxford borough",
		"São Domingos":           "sao domingos",
		"Uwchlan\tTownship":      "uwchlan township",
		"":                       "",
		"   ":                    "",
		"Chadds Ford  TOWNSHIP ": "chadds ford township",
	}
	for in, want := range cases {
		require.Equal(t, want, FoldMunicipality(in), "input %q", in)
	}
}

func TestFilterByMunicipalityExactMatch(t *testing.T) {
	t.Parallel()

	records := []Incident{
		{Number: "1", Municipality: "OXFORD BOROUGH"},
		{Number: "2", Municipality: "Upper Oxford Township"},
		{Number: "3", Municipality: "  oxford  borough "},
		{Number: "4", Municipality: "East Nottingham Township"},
		{Number: "5", Municipality: "Oxford"},
	}

	kept := FilterByMunicipality(records, []string{"Oxford Borough"})
	require.Len(t, kept, 2)
	require.Equal(t, "1", kept[0].Number)
	require.Equal(t, "3", kept[1].Number)
}

func TestFilterByMunicipalityMultipleAllowed(t *testing.T) {
	t.Parallel()

	records := []Incident{
		{Number: "1", Municipality: "OXFORD BOROUGH"},
		{Number: "2", Municipality: "UWCHLAN TOWNSHIP"},
		{Number: "3", Municipality: "WEST CHESTER BOROUGH"},
	}

	kept := FilterByMunicipality(records, []string{"Oxford Borough", "West Chester Borough"})
	require.Len(t, kept, 2)
	require.Equal(t, "1", kept[0].Number)
	require.Equal(t, "3", kept[1].Number)
}

func TestFilterByMunicipalityEmptyAllowListKeepsAll(t *testing.T) {
	t.Parallel()

	records := []Incident{
		{Number: "1", Municipality: "OXFORD BOROUGH"},
		{Number: "2", Municipality: "UWCHLAN TOWNSHIP"},
	}

	kept := FilterByMunicipality(records, nil)
	require.Equal(t, records, kept)

	kept = FilterByMunicipality(records, []string{"", "   "})
	require.Equal(t, records, kept)
}

func TestFilterByMunicipalityNoMatches(t *testing.T) {
	t.Parallel()

	records := []Incident{{Number: "1", Municipality: "OXFORD BOROUGH"}}
	kept := FilterByMunicipality(records, []string{"Phoenixville Borough"})
	require.NotNil(t, kept)
	require.Empty(t, kept)
}
