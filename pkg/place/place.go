// Package place turns an administrative ancestor path into named place roles
// and search tokens.
package place

import (
	"regexp"
	"strings"
)

// Field names a place role.
type Field int

const (
	Locality Field = iota
	Borough
	City
	MetroArea
	Region
	Country
	CountryCode
	Postal
)

// Fields holds the derived place roles. Nil means absent.
type Fields struct {
	Locality    *string
	Borough     *string
	City        *string
	MetroArea   *string
	Region      *string
	Country     *string
	CountryCode *string
	Postal      *string
}

func (f *Fields) slot(field Field) **string {
	switch field {
	case Locality:
		return &f.Locality
	case Borough:
		return &f.Borough
	case City:
		return &f.City
	case MetroArea:
		return &f.MetroArea
	case Region:
		return &f.Region
	case Country:
		return &f.Country
	case CountryCode:
		return &f.CountryCode
	case Postal:
		return &f.Postal
	}
	return nil
}

// Get returns the value of a field.
func (f *Fields) Get(field Field) *string {
	if p := f.slot(field); p != nil {
		return *p
	}
	return nil
}

// setOnce stores v unless the field is already set or v is empty.
func (f *Fields) setOnce(field Field, v string) {
	p := f.slot(field)
	if p == nil || *p != nil || v == "" {
		return
	}
	*p = &v
}

// Rule assigns a path entry to a field. Match receives the lower-cased entry;
// Transform, when set, rewrites the original entry before it is stored.
type Rule struct {
	Field     Field
	Match     func(lower string) bool
	Transform func(name string) string
}

// Fallback fills a field after the rule pass from the whole path.
type Fallback struct {
	Field Field
	Pick  func(path []string) (string, bool)
}

// Deriver classifies path entries with an ordered rule list. Every rule is
// tried against every entry in path order and the first match per field wins.
// Fallbacks then run in order and only fill fields that are still empty.
type Deriver struct {
	Rules     []Rule
	Fallbacks []Fallback
}

// Derive classifies path, nearest ancestor first.
func (d *Deriver) Derive(path []string) Fields {
	var f Fields
	for _, name := range path {
		lower := strings.ToLower(name)
		for _, r := range d.Rules {
			if f.Get(r.Field) != nil || !r.Match(lower) {
				continue
			}
			v := name
			if r.Transform != nil {
				v = r.Transform(name)
			}
			f.setOnce(r.Field, v)
		}
	}
	for _, fb := range d.Fallbacks {
		if f.Get(fb.Field) != nil {
			continue
		}
		if v, ok := fb.Pick(path); ok {
			f.setOnce(fb.Field, v)
		}
	}
	return f
}

var (
	boroughPattern = regexp.MustCompile(`borough|district`)
	countryPattern = regexp.MustCompile(`united kingdom|united states|france|spain|italy|germany|portugal|netherlands|brazil|argentina|mexico`)
	regionPattern  = regexp.MustCompile(`england|scotland|wales|northern ireland|catalonia|lombardy|bavaria|ile-de-france|madrid|bayern`)
	cityPattern    = regexp.MustCompile(`(?i)city|metropolitan|municipality`)
)

// DefaultDeriver is tuned for English-language Wikidata labels of European and
// American stadium locations.
var DefaultDeriver = &Deriver{
	Rules: []Rule{
		{Field: Borough, Match: boroughPattern.MatchString},
		{
			Field:     City,
			Match:     func(l string) bool { return l == "london" || l == "greater london" },
			Transform: func(string) string { return "London" },
		},
		{Field: Country, Match: countryPattern.MatchString},
		{Field: Region, Match: regionPattern.MatchString},
	},
	Fallbacks: []Fallback{
		{Field: Country, Pick: func(path []string) (string, bool) {
			if len(path) == 0 {
				return "", false
			}
			return path[len(path)-1], true
		}},
		{Field: City, Pick: func(path []string) (string, bool) {
			for _, name := range path {
				if cityPattern.MatchString(name) {
					return strings.TrimPrefix(name, "City of "), true
				}
			}
			return "", false
		}},
		{Field: Locality, Pick: func(path []string) (string, bool) {
			if len(path) == 0 || boroughPattern.MatchString(strings.ToLower(path[0])) {
				return "", false
			}
			return path[0], true
		}},
	},
}

// Derive classifies path with DefaultDeriver.
func Derive(path []string) Fields {
	return DefaultDeriver.Derive(path)
}

var (
	unitedKingdom = regexp.MustCompile(`(?i)united kingdom`)
	unitedStates  = regexp.MustCompile(`(?i)united states`)
)

// ApplyOverrides fills the metro area and country code for the cases the
// hierarchy does not carry.
func ApplyOverrides(f *Fields) {
	if f.City != nil && *f.City == "London" {
		f.setOnce(MetroArea, "South West London")
	}
	if f.Country != nil {
		switch {
		case unitedKingdom.MatchString(*f.Country):
			f.setOnce(CountryCode, "GB")
		case unitedStates.MatchString(*f.Country):
			f.setOnce(CountryCode, "US")
		}
	}
}

var synonyms = []struct {
	trigger string
	add     []string
}{
	{"united kingdom", []string{"uk", "gb", "britain", "great britain"}},
	{"united states", []string{"usa", "us", "u.s.", "america"}},
	{"london", []string{"greater london", "south west london", "south-west london"}},
}

// BuildTokens returns the lower-cased place values plus curated synonyms,
// deduplicated in first-seen order.
func BuildTokens(f Fields) []string {
	var base []string
	for _, v := range []*string{f.Locality, f.Borough, f.City, f.MetroArea, f.Region, f.Country, f.CountryCode, f.Postal} {
		if v != nil && *v != "" {
			base = append(base, strings.ToLower(*v))
		}
	}

	seen := make(map[string]bool, len(base)+8)
	tokens := make([]string, 0, len(base)+8)
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			tokens = append(tokens, t)
		}
	}
	for _, t := range base {
		add(t)
	}
	for _, s := range synonyms {
		if contains(base, s.trigger) {
			for _, t := range s.add {
				add(t)
			}
		}
	}
	return tokens
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// DisplayPath lists the present fields from most to least specific:
// locality, borough, city, region, country.
func DisplayPath(f Fields) []string {
	path := []string{}
	for _, v := range []*string{f.Locality, f.Borough, f.City, f.Region, f.Country} {
		if v != nil && *v != "" {
			path = append(path, *v)
		}
	}
	return path
}

// SearchText joins the display path and tokens with single spaces.
func SearchText(path, tokens []string) string {
	parts := make([]string, 0, len(path)+len(tokens))
	for _, s := range append(append([]string{}, path...), tokens...) {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// Location is everything derived from one administrative path.
type Location struct {
	Fields
	Path       []string // DisplayPath of Fields
	Tokens     []string
	SearchText string
}

// Build runs derivation, overrides and token building over adminPath.
func Build(adminPath []string) Location {
	f := Derive(adminPath)
	ApplyOverrides(&f)
	loc := Location{Fields: f, Path: DisplayPath(f), Tokens: BuildTokens(f)}
	loc.SearchText = SearchText(loc.Path, loc.Tokens)
	return loc
}
