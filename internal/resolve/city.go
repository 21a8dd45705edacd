// Package resolve maps user selections to canonical keys and asset paths.
package resolve

import (
	"strings"
	"unicode"
)

type city struct {
	key     string
	display string
	aliases []string
}

var cities = []city{
	{key: "Atlanta", display: "Atlanta", aliases: []string{"ATL"}},
	{key: "LosAngeles", display: "Los Angeles", aliases: []string{"LA"}},
	{key: "Seattle", display: "Seattle"},
	{key: "NewYork", display: "New York", aliases: []string{"NYC", "New York City"}},
	{key: "Chicago", display: "Chicago"},
	{key: "Houston", display: "Houston"},
	{key: "Miami", display: "Miami"},
	{key: "Boston", display: "Boston"},
	{key: "SanFrancisco", display: "San Francisco", aliases: []string{"SF"}},
	{key: "WashingtonDC", display: "Washington D.C.", aliases: []string{"Washington DC", "DC"}},
	{key: "Philadelphia", display: "Philadelphia"},
	{key: "Phoenix", display: "Phoenix"},
	{key: "SanDiego", display: "San Diego"},
	{key: "Minneapolis", display: "Minneapolis"},
	{key: "Denver", display: "Denver"},
	{key: "LasVegas", display: "Las Vegas"},
	{key: "Nashville", display: "Nashville"},
	{key: "Detroit", display: "Detroit"},
}

var (
	cityByFold    = map[string]string{}
	displayByKey  = map[string]string{}
	displayCities []string
)

func init() {
	for _, c := range cities {
		cityByFold[foldCity(c.key)] = c.key
		cityByFold[foldCity(c.display)] = c.key
		for _, alias := range c.aliases {
			cityByFold[foldCity(alias)] = c.key
		}
		displayByKey[c.key] = c.display
		displayCities = append(displayCities, c.display)
	}
}

// CanonicalCity resolves free text or a selector value to the canonical city key.
// Matching ignores case, whitespace and punctuation. Unknown cities are returned unchanged.
func CanonicalCity(raw string) string {
	if key, ok := cityByFold[foldCity(raw)]; ok {
		return key
	}
	return raw
}

// KnownCity reports whether raw resolves to a city in the lookup table.
func KnownCity(raw string) bool {
	_, ok := cityByFold[foldCity(raw)]
	return ok
}

// DisplayCity returns the human-readable name for a city key or raw name.
func DisplayCity(raw string) string {
	if name, ok := displayByKey[CanonicalCity(raw)]; ok {
		return name
	}
	return raw
}

// Cities lists the selectable cities by display name.
func Cities() []string {
	return append([]string(nil), displayCities...)
}

func foldCity(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
