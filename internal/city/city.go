package city

import (
	"strings"
	"unicode"
)

// City is a tracked settlement location. Coordinates point at the airport
// station the markets settle against.
type City struct {
	Code     string
	Name     string
	Lat      float64
	Lon      float64
	Variants []string // lowercase name variants used for text matching
}

// Table is an ordered set of cities. Order is match priority.
type Table struct {
	cities []City
	byCode map[string]City
}

func NewTable(cities []City) *Table {
	t := &Table{
		cities: cities,
		byCode: make(map[string]City, len(cities)),
	}
	for _, c := range cities {
		t.byCode[c.Code] = c
	}
	return t
}

// Default returns the built-in city table.
func Default() *Table {
	return NewTable([]City{
		{Code: "NYC", Name: "New York City", Lat: 40.7794, Lon: -73.8803,
			Variants: []string{"new york", "nyc", "laguardia", "lga", "central park", "knyc"}},
		{Code: "CHI", Name: "Chicago", Lat: 41.9742, Lon: -87.9073,
			Variants: []string{"chicago", "chi", "o'hare", "ohare", "ord", "kord"}},
		{Code: "MIA", Name: "Miami", Lat: 25.7959, Lon: -80.2870,
			Variants: []string{"miami", "mia", "kmia"}},
		{Code: "LAX", Name: "Los Angeles", Lat: 33.9416, Lon: -118.4085,
			Variants: []string{"los angeles", "lax", "klax"}},
		{Code: "AUS", Name: "Austin", Lat: 30.1945, Lon: -97.6699,
			Variants: []string{"austin", "aus", "kaus"}},
		{Code: "DEN", Name: "Denver", Lat: 39.8561, Lon: -104.6737,
			Variants: []string{"denver", "den", "kden"}},
		{Code: "PHL", Name: "Philadelphia", Lat: 39.8744, Lon: -75.2424,
			Variants: []string{"philadelphia", "philly", "phl", "kphl"}},
		{Code: "ATL", Name: "Atlanta", Lat: 33.6407, Lon: -84.4277,
			Variants: []string{"atlanta", "atl", "katl"}},
		{Code: "SEA", Name: "Seattle", Lat: 47.4502, Lon: -122.3088,
			Variants: []string{"seattle", "sea-tac", "sea", "ksea"}},
		{Code: "DFW", Name: "Dallas", Lat: 32.8998, Lon: -97.0403,
			Variants: []string{"dallas", "dfw", "kdfw"}},
		{Code: "BOS", Name: "Boston", Lat: 42.3656, Lon: -71.0096,
			Variants: []string{"boston", "bos", "logan", "kbos"}},
		{Code: "SFO", Name: "San Francisco", Lat: 37.6213, Lon: -122.3790,
			Variants: []string{"san francisco", "sfo", "ksfo"}},
		{Code: "DCA", Name: "Washington DC", Lat: 38.8512, Lon: -77.0402,
			Variants: []string{"washington dc", "washington, dc", "washington d.c.", "dca", "kdca"}},
		{Code: "PHX", Name: "Phoenix", Lat: 33.4342, Lon: -112.0116,
			Variants: []string{"phoenix", "phx", "kphx"}},
		{Code: "LAS", Name: "Las Vegas", Lat: 36.0840, Lon: -115.1537,
			Variants: []string{"las vegas", "vegas", "klas"}},
		{Code: "HOU", Name: "Houston", Lat: 29.6454, Lon: -95.2789,
			Variants: []string{"houston", "hou", "iah", "khou"}},
	})
}

// All returns the cities in priority order.
func (t *Table) All() []City {
	return t.cities
}

func (t *Table) Lookup(code string) (City, bool) {
	c, ok := t.byCode[strings.ToUpper(code)]
	return c, ok
}

// Match returns the first city, in priority order, with a variant contained in
// text. text must already be lowercased. Variants of three characters or fewer
// only match as whole words.
func (t *Table) Match(text string) (City, bool) {
	for _, c := range t.cities {
		for _, v := range c.Variants {
			if len(v) <= 3 {
				if containsWord(text, v) {
					return c, true
				}
				continue
			}
			if strings.Contains(text, v) {
				return c, true
			}
		}
	}
	return City{}, false
}

func containsWord(text, word string) bool {
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], word)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(word)
		if isBoundary(text, start-1) && isBoundary(text, end) {
			return true
		}
		from = start + 1
	}
	return false
}

func isBoundary(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	r := rune(text[i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
