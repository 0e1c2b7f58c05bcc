package wikidata

import (
	"encoding/json"
	"regexp"
	"sort"

	"github.com/paulmach/orb"
)

// Properties read by the pipeline.
const (
	PropLocatedIn  = "P131" // located in the administrative territorial entity
	PropCoordinate = "P625" // coordinate location
)

var itemIDPattern = regexp.MustCompile(`^Q[1-9][0-9]*$`)

// ValidID reports whether id looks like an item id.
func ValidID(id string) bool {
	return itemIDPattern.MatchString(id)
}

// Entity is the subset of a wbgetentities record the pipeline uses.
type Entity struct {
	ID     string
	Labels map[string]string // language -> label
	Claims map[string][]Snak // property -> main snaks in statement order
}

// Snak is the main snak of a statement. Value is nil for novalue/somevalue.
type Snak struct {
	Type  string // datavalue type, e.g. "wikibase-entityid", "globecoordinate"
	Value json.RawMessage
}

// Label returns the English label, falling back to the alphabetically first
// language so the choice is stable. Empty when the entity has no labels.
func (e Entity) Label() string {
	if l, ok := e.Labels["en"]; ok && l != "" {
		return l
	}
	langs := make([]string, 0, len(e.Labels))
	for lang, l := range e.Labels {
		if l != "" {
			langs = append(langs, lang)
		}
	}
	if len(langs) == 0 {
		return ""
	}
	sort.Strings(langs)
	return e.Labels[langs[0]]
}

// FirstItemID returns the target of the first statement for prop that points at an item.
func (e Entity) FirstItemID(prop string) (string, bool) {
	for _, s := range e.Claims[prop] {
		if s.Type != "wikibase-entityid" || s.Value == nil {
			continue
		}
		var v struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(s.Value, &v); err != nil || v.ID == "" {
			continue
		}
		return v.ID, true
	}
	return "", false
}

// Coordinate returns the first valid coordinate statement as an orb point (lon, lat).
func (e Entity) Coordinate() (*orb.Point, bool) {
	for _, s := range e.Claims[PropCoordinate] {
		if s.Type != "globecoordinate" || s.Value == nil {
			continue
		}
		var v struct {
			Latitude  *float64 `json:"latitude"`
			Longitude *float64 `json:"longitude"`
		}
		if err := json.Unmarshal(s.Value, &v); err != nil || v.Latitude == nil || v.Longitude == nil {
			continue
		}
		lat, lon := *v.Latitude, *v.Longitude
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			continue
		}
		p := orb.Point{lon, lat}
		return &p, true
	}
	return nil, false
}

// -- Internal parsing structs --

type wrapperEntityResponse struct {
	Entities map[string]struct {
		ID      string  `json:"id"`
		Missing *string `json:"missing"`
		Labels  map[string]struct {
			Value string `json:"value"`
		} `json:"labels"`
		Claims map[string][]struct {
			Mainsnak struct {
				Snaktype  string `json:"snaktype"`
				Datavalue *struct {
					Type  string          `json:"type"`
					Value json.RawMessage `json:"value"`
				} `json:"datavalue"`
			} `json:"mainsnak"`
			Rank string `json:"rank"`
		} `json:"claims"`
	} `json:"entities"`
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

func (w *wrapperEntityResponse) toEntities(out map[string]Entity) {
	for id, raw := range w.Entities {
		if raw.Missing != nil {
			continue
		}
		e := Entity{
			ID:     id,
			Labels: make(map[string]string, len(raw.Labels)),
			Claims: make(map[string][]Snak, len(raw.Claims)),
		}
		for lang, lbl := range raw.Labels {
			e.Labels[lang] = lbl.Value
		}
		for prop, statements := range raw.Claims {
			var snaks []Snak
			for _, st := range statements {
				if st.Rank == "deprecated" {
					continue
				}
				s := Snak{}
				if st.Mainsnak.Snaktype == "value" && st.Mainsnak.Datavalue != nil {
					s.Type = st.Mainsnak.Datavalue.Type
					s.Value = st.Mainsnak.Datavalue.Value
				}
				snaks = append(snaks, s)
			}
			e.Claims[prop] = snaks
		}
		out[id] = e
	}
}
