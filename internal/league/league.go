package league

import (
	"sort"
	"strings"
	"time"
)

// DateLayout is the calendar format used by schedule files.
const DateLayout = "01/02/2006"

// Rating holds a team's Elo-style strength plus its play counters.
type Rating struct {
	Team   string  `json:"team"`
	Elo    float64 `json:"elo_rating"`
	Played int     `json:"games"`
	Wins   int     `json:"wins"`
}

// Fixture represents a dated game between two teams. Opponent is empty for
// rows that still need an opponent assigned.
type Fixture struct {
	Date       time.Time `json:"date"`
	Team       string    `json:"team"`
	Opponent   string    `json:"opponent"`
	HomeScore  int       `json:"home_score"`
	AwayScore  int       `json:"away_score"`
	GameNumber int       `json:"game_number"`
	WL         string    `json:"wl,omitempty"`
}

// Scheduled reports whether the fixture has both participants.
func (f Fixture) Scheduled() bool { return f.Opponent != "" }

// Played reports whether the fixture carries an informative result.
func (f Fixture) Played() bool { return f.HomeScore != 0 || f.AwayScore != 0 }

// Game is a validated ledger entry.
type Game struct {
	Date       string
	TeamA      string
	TeamB      string
	ScoreA     int
	ScoreB     int
	GameNumber int
}

// Key identifies a meeting independent of home/away order.
type Key struct {
	Low, High  string
	Date       string
	GameNumber int
}

// Key returns the uniqueness key of the game.
func (g Game) Key() Key {
	a, b := g.TeamA, g.TeamB
	if b < a {
		a, b = b, a
	}
	return Key{Low: a, High: b, Date: g.Date, GameNumber: g.GameNumber}
}

// TeamSet is the self-describing team universe of one dataset.
type TeamSet map[string]struct{}

// Has reports membership.
func (ts TeamSet) Has(team string) bool {
	_, ok := ts[team]
	return ok
}

// Sorted returns the members in lexical order.
func (ts TeamSet) Sorted() []string {
	out := make([]string, 0, len(ts))
	for t := range ts {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// NormalizeTeam trims surrounding whitespace; case is preserved.
func NormalizeTeam(name string) string {
	return strings.TrimSpace(name)
}

// TeamsOf collects every team named as a participant of some fixture.
func TeamsOf(fixtures []Fixture) TeamSet {
	ts := make(TeamSet)
	for _, f := range fixtures {
		if t := NormalizeTeam(f.Team); t != "" {
			ts[t] = struct{}{}
		}
		if o := NormalizeTeam(f.Opponent); o != "" {
			ts[o] = struct{}{}
		}
	}
	return ts
}

// TeamsOfRows is TeamsOf for raw ledger rows.
func TeamsOfRows(rows []Row) TeamSet {
	ts := make(TeamSet)
	for _, r := range rows {
		if t := NormalizeTeam(r.Team); t != "" {
			ts[t] = struct{}{}
		}
		if o := NormalizeTeam(r.Opponent); o != "" {
			ts[o] = struct{}{}
		}
	}
	return ts
}
