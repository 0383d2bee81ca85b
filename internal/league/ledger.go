package league

import (
	"strconv"
	"strings"
)

// Row is one raw match record as read from a season table.
type Row struct {
	Date       string
	Team       string
	Opponent   string
	HomeScore  string
	AwayScore  string
	GameNumber string
	// WL is the recorded W/L/T flag, when the source has one.
	WL         string
}

// Reason is the outcome of validating a single row.
type Reason int

const (
	Accepted Reason = iota
	Unparseable
	ZeroZero
	InvalidTeam
	SelfPlay
	Duplicate
)

func (r Reason) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Unparseable:
		return "unparseable"
	case ZeroZero:
		return "zero-zero"
	case InvalidTeam:
		return "invalid-team"
	case SelfPlay:
		return "self-play"
	case Duplicate:
		return "duplicate"
	}
	return "unknown"
}

// Verdict is the discriminated result of validating a row: Game is only
// meaningful when Reason is Accepted.
type Verdict struct {
	Game   Game
	Reason Reason
}

// LoadStats counts how every row was disposed of.
type LoadStats struct {
	Loaded      int `json:"loaded"`
	Unparseable int `json:"unparseable"`
	ZeroZero    int `json:"zero_zero"`
	InvalidTeam int `json:"invalid_team"`
	SelfPlay    int `json:"self_play"`
	Duplicate   int `json:"duplicate"`
}

// Record adds one verdict to the counters.
func (s *LoadStats) Record(r Reason) {
	switch r {
	case Accepted:
		s.Loaded++
	case Unparseable:
		s.Unparseable++
	case ZeroZero:
		s.ZeroZero++
	case InvalidTeam:
		s.InvalidTeam++
	case SelfPlay:
		s.SelfPlay++
	case Duplicate:
		s.Duplicate++
	}
}

// Skipped is the total number of rejected rows.
func (s LoadStats) Skipped() int {
	return s.Unparseable + s.ZeroZero + s.InvalidTeam + s.SelfPlay + s.Duplicate
}

// ParseRow trims and converts a raw row. A blank game number means 1.
func ParseRow(r Row) (Game, bool) {
	date := strings.TrimSpace(r.Date)
	a := NormalizeTeam(r.Team)
	b := NormalizeTeam(r.Opponent)
	if date == "" || a == "" || b == "" {
		return Game{}, false
	}
	sa, err := strconv.Atoi(strings.TrimSpace(r.HomeScore))
	if err != nil {
		return Game{}, false
	}
	sb, err := strconv.Atoi(strings.TrimSpace(r.AwayScore))
	if err != nil {
		return Game{}, false
	}
	n := 1
	if gn := strings.TrimSpace(r.GameNumber); gn != "" {
		if n, err = strconv.Atoi(gn); err != nil {
			return Game{}, false
		}
	}
	return Game{Date: date, TeamA: a, TeamB: b, ScoreA: sa, ScoreB: sb, GameNumber: n}, true
}

// Ledger accumulates validated games, rejecting repeats of a key.
type Ledger struct {
	valid TeamSet
	seen  map[Key]struct{}
	games []Game
	stats LoadStats
}

// NewLedger creates an empty ledger restricted to the given teams.
func NewLedger(valid TeamSet) *Ledger {
	return &Ledger{valid: valid, seen: make(map[Key]struct{})}
}

// Validate classifies a row without recording it.
func (l *Ledger) Validate(r Row) Verdict {
	g, ok := ParseRow(r)
	if !ok {
		return Verdict{Reason: Unparseable}
	}
	if g.ScoreA == 0 && g.ScoreB == 0 {
		return Verdict{Reason: ZeroZero}
	}
	if !l.valid.Has(g.TeamA) || !l.valid.Has(g.TeamB) {
		return Verdict{Reason: InvalidTeam}
	}
	if g.TeamA == g.TeamB {
		return Verdict{Reason: SelfPlay}
	}
	if _, dup := l.seen[g.Key()]; dup {
		return Verdict{Reason: Duplicate}
	}
	return Verdict{Game: g, Reason: Accepted}
}

// Add validates a row and keeps it when accepted.
func (l *Ledger) Add(r Row) Verdict {
	v := l.Validate(r)
	l.stats.Record(v.Reason)
	if v.Reason == Accepted {
		l.seen[v.Game.Key()] = struct{}{}
		l.games = append(l.games, v.Game)
	}
	return v
}

// Games returns the accepted games in insertion order.
func (l *Ledger) Games() []Game { return l.games }

// Stats returns the disposition counters.
func (l *Ledger) Stats() LoadStats { return l.stats }

// Load builds a ledger from rows in one pass.
func Load(rows []Row, valid TeamSet) ([]Game, LoadStats) {
	l := NewLedger(valid)
	for _, r := range rows {
		l.Add(r)
	}
	return l.Games(), l.Stats()
}

// RowsFromFixtures renders fixtures in the raw row form the ledger reads.
func RowsFromFixtures(fixtures []Fixture) []Row {
	rows := make([]Row, len(fixtures))
	for i, f := range fixtures {
		rows[i] = Row{
			Date:       f.Date.Format(DateLayout),
			Team:       f.Team,
			Opponent:   f.Opponent,
			HomeScore:  strconv.Itoa(f.HomeScore),
			AwayScore:  strconv.Itoa(f.AwayScore),
			GameNumber: strconv.Itoa(f.GameNumber),
		}
	}
	return rows
}
