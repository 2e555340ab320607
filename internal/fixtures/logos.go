package fixtures

import (
	"bytes"
	"encoding/json"
	"strings"
)

// LogoIndex maps league and team ids and names to the logo URLs seen in
// fetched payloads. Lookups try the id first, then the name.
type LogoIndex struct {
	leaguesByID   map[int]string
	leaguesByName map[string]string
	teamsByID     map[int]string
	teamsByName   map[string]string
}

func NewLogoIndex() *LogoIndex {
	return &LogoIndex{
		leaguesByID:   make(map[int]string),
		leaguesByName: make(map[string]string),
		teamsByID:     make(map[int]string),
		teamsByName:   make(map[string]string),
	}
}

func normName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Len is the number of indexed logos.
func (x *LogoIndex) Len() int {
	return len(x.leaguesByID) + len(x.leaguesByName) + len(x.teamsByID) + len(x.teamsByName)
}

func (x *LogoIndex) addLeague(l League) {
	logo := cleanLogo(l.Logo)
	if logo == "" {
		return
	}
	if l.ID != 0 {
		x.leaguesByID[l.ID] = logo
	}
	if n := normName(l.Name); n != "" {
		x.leaguesByName[n] = logo
	}
}

func (x *LogoIndex) addTeam(t Team) {
	logo := cleanLogo(t.Logo)
	if logo == "" {
		return
	}
	if t.ID != 0 {
		x.teamsByID[t.ID] = logo
	}
	if n := normName(t.Name); n != "" {
		x.teamsByName[n] = logo
	}
}

// AddMatches indexes the league and team logos of decoded fixtures.
func (x *LogoIndex) AddMatches(ms []Match) {
	for _, m := range ms {
		x.addLeague(m.League)
		x.addTeam(m.Home)
		x.addTeam(m.Away)
	}
}

// AddTeams indexes a /teams payload.
func (x *LogoIndex) AddTeams(payload []byte) error {
	var doc struct {
		Response []struct {
			Team Team `json:"team"`
		} `json:"response"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return err
	}
	for _, r := range doc.Response {
		x.addTeam(r.Team)
	}
	return nil
}

// AddStandings indexes the league and every ranked team of a /standings
// payload.
func (x *LogoIndex) AddStandings(payload []byte) error {
	var doc struct {
		Response []struct {
			League struct {
				League
				Standings [][]struct {
					Team Team `json:"team"`
				} `json:"standings"`
			} `json:"league"`
		} `json:"response"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return err
	}
	for _, r := range doc.Response {
		x.addLeague(r.League.League)
		for _, group := range r.League.Standings {
			for _, row := range group {
				x.addTeam(row.Team)
			}
		}
	}
	return nil
}

func (x *LogoIndex) League(l League) string {
	if logo := x.leaguesByID[l.ID]; logo != "" && l.ID != 0 {
		return logo
	}
	return x.leaguesByName[normName(l.Name)]
}

func (x *LogoIndex) Team(t Team) string {
	if logo := x.teamsByID[t.ID]; logo != "" && t.ID != 0 {
		return logo
	}
	return x.teamsByName[normName(t.Name)]
}

// gap is the indexed logo for a missing one, or "" when current is set.
func gap(current, indexed string) string {
	if cleanLogo(current) != "" {
		return ""
	}
	return indexed
}

// Enrich returns ms with missing logos filled from the index.
func (x *LogoIndex) Enrich(ms []Match) []Match {
	out := make([]Match, len(ms))
	for i, m := range ms {
		if logo := gap(m.League.Logo, x.League(m.League)); logo != "" {
			m.League.Logo = logo
		}
		if logo := gap(m.Home.Logo, x.Team(m.Home)); logo != "" {
			m.Home.Logo = logo
		}
		if logo := gap(m.Away.Logo, x.Team(m.Away)); logo != "" {
			m.Away.Logo = logo
		}
		out[i] = m
	}
	return out
}

// EnrichPayload rewrites the rows of a fixtures payload whose logos are
// missing and indexed. It reports false, returning payload itself, when no
// row changed.
func (x *LogoIndex) EnrichPayload(payload []byte) ([]byte, bool) {
	if x.Len() == 0 {
		return payload, false
	}
	var doc map[string]json.RawMessage
	if json.Unmarshal(payload, &doc) != nil {
		return payload, false
	}
	var rows []json.RawMessage
	if json.Unmarshal(doc["response"], &rows) != nil {
		return payload, false
	}
	changed := false
	for i, raw := range rows {
		if out, ok := x.enrichRow(raw); ok {
			rows[i] = out
			changed = true
		}
	}
	if !changed {
		return payload, false
	}
	resp, err := json.Marshal(rows)
	if err != nil {
		return payload, false
	}
	doc["response"] = resp
	out, err := json.Marshal(doc)
	if err != nil {
		return payload, false
	}
	return out, true
}

func (x *LogoIndex) enrichRow(raw json.RawMessage) (json.RawMessage, bool) {
	var r row
	if json.Unmarshal(raw, &r) != nil {
		return nil, false
	}
	league := gap(r.League.Logo, x.League(r.League))
	home := gap(r.Teams.Home.Logo, x.Team(r.Teams.Home))
	away := gap(r.Teams.Away.Logo, x.Team(r.Teams.Away))
	if league == "" && home == "" && away == "" {
		return nil, false
	}

	var obj map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if dec.Decode(&obj) != nil {
		return nil, false
	}
	set := false
	set = setLogo(obj, league, "league") || set
	set = setLogo(obj, home, "teams", "home") || set
	set = setLogo(obj, away, "teams", "away") || set
	if !set {
		return nil, false
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return nil, false
	}
	return out, true
}

// setLogo sets obj[path...]["logo"]. It does nothing for an empty logo or
// a path that is not all objects.
func setLogo(obj map[string]any, logo string, path ...string) bool {
	if logo == "" {
		return false
	}
	cur := obj
	for _, p := range path {
		next, ok := cur[p].(map[string]any)
		if !ok {
			return false
		}
		cur = next
	}
	cur["logo"] = logo
	return true
}
