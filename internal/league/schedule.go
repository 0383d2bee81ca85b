package league

import (
	"fmt"
	"math/rand"
	"sort"
	"time"
)

// Strategy selects how generated opponents are drawn.
type Strategy int

const (
	// StrategyRandom draws every missing opponent uniformly.
	StrategyRandom Strategy = 0
	StrategyTop    Strategy = 1
	StrategyMiddle Strategy = 2
	StrategyBottom Strategy = 3
)

// DefaultRegionalQuota is the share of generated games kept regional.
const DefaultRegionalQuota = 0.7

func (s Strategy) String() string {
	switch s {
	case StrategyRandom:
		return "random"
	case StrategyTop:
		return "top"
	case StrategyMiddle:
		return "middle"
	case StrategyBottom:
		return "bottom"
	}
	return fmt.Sprintf("uniform(%d)", int(s))
}

// Completer fills unscheduled fixtures with opponents.
type Completer struct {
	Strategy      Strategy
	RegionalQuota float64
	RegionalTeams []string

	rng *rand.Rand
}

// NewCompleter returns a completer using rng, or a clock-seeded source when
// rng is nil.
func NewCompleter(strategy Strategy, quota float64, regional []string, rng *rand.Rand) *Completer {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Completer{Strategy: strategy, RegionalQuota: quota, RegionalTeams: regional, rng: rng}
}

// Complete assigns an opponent to every unscheduled fixture, renumbers
// same-day meetings and returns the schedule in calendar order. Every blank
// row counts as a generated fixture for the strategy and regional quota.
// The template is not modified.
func (c *Completer) Complete(template []Fixture, table *Table) ([]Fixture, error) {
	schedule, missing := normalized(template)
	return c.complete(schedule, nil, missing, table)
}

// Generate appends numGames unscheduled fixtures for home on the given dates
// to the template and completes the result. The regional quota and strategy
// apply to the appended fixtures only; blank template rows are filled
// uniformly over the rating table.
func (c *Completer) Generate(template []Fixture, table *Table, home string, dates []time.Time, numGames int) ([]Fixture, error) {
	if len(dates) != numGames {
		return nil, &ValidationError{
			Field:   "dates",
			Message: fmt.Sprintf("%d games requested for %d dates", numGames, len(dates)),
			Err:     ErrFixtureCountMismatch,
		}
	}
	home = NormalizeTeam(home)
	if home == "" {
		return nil, &ValidationError{Field: "home_team", Message: "home team is required"}
	}

	schedule, blanks := normalized(template)
	generated := make([]int, 0, numGames)
	for _, d := range dates {
		generated = append(generated, len(schedule))
		schedule = append(schedule, Fixture{Date: d, Team: home, GameNumber: 1})
	}
	return c.complete(schedule, blanks, generated, table)
}

// normalized copies template with trimmed team names and returns the
// indexes of rows without an opponent.
func normalized(template []Fixture) ([]Fixture, []int) {
	schedule := make([]Fixture, len(template))
	copy(schedule, template)

	var missing []int
	for i := range schedule {
		schedule[i].Team = NormalizeTeam(schedule[i].Team)
		schedule[i].Opponent = NormalizeTeam(schedule[i].Opponent)
		if !schedule[i].Scheduled() {
			missing = append(missing, i)
		}
	}
	return schedule, missing
}

// complete draws fill rows uniformly and generated rows from the strategy
// pools, the first RegionalQuota share of them from the regional list.
func (c *Completer) complete(schedule []Fixture, fill, generated []int, table *Table) ([]Fixture, error) {
	if len(fill)+len(generated) > 0 {
		pools, err := c.pools(table, len(generated) > 0)
		if err != nil {
			return nil, err
		}
		for _, i := range fill {
			if err := c.assign(&schedule[i], pools.all); err != nil {
				return nil, err
			}
		}

		quota := c.RegionalQuota * float64(len(generated))
		for k, i := range generated {
			if c.Strategy != StrategyRandom && float64(k) < quota {
				if err := c.assign(&schedule[i], pools.regional); err != nil {
					return nil, noRegionalTeams(fmt.Sprintf("no regional opponent for %q", schedule[i].Team))
				}
				continue
			}
			if err := c.assign(&schedule[i], pools.general); err != nil {
				return nil, err
			}
		}
	}

	Renumber(schedule)
	SortSchedule(schedule)
	return schedule, nil
}

func (c *Completer) assign(f *Fixture, pool []string) error {
	opp, err := c.draw(pool, f.Team)
	if err != nil {
		return fmt.Errorf("fixture on %s for %q: %w", f.Date.Format(DateLayout), f.Team, err)
	}
	f.Opponent = opp
	return nil
}

func noRegionalTeams(msg string) error {
	return &ValidationError{Field: "regional_teams", Message: msg, Err: ErrNoCandidates}
}

type candidatePools struct {
	all      []string
	regional []string
	general  []string
}

// pools builds the candidate lists. A regional list is required when
// generated fixtures fall under a non-zero quota.
func (c *Completer) pools(table *Table, generating bool) (candidatePools, error) {
	all := table.Teams()
	if len(all) == 0 {
		return candidatePools{}, fmt.Errorf("rating table is empty: %w", ErrNoCandidates)
	}

	p := candidatePools{all: all}
	bottom, middle, top := table.Terciles()
	switch c.Strategy {
	case StrategyTop:
		p.general = top
	case StrategyMiddle:
		p.general = middle
	case StrategyBottom:
		p.general = bottom
	default:
		p.general = all
	}

	if c.Strategy == StrategyRandom || c.RegionalQuota <= 0 || !generating {
		return p, nil
	}
	for _, t := range c.RegionalTeams {
		if t = NormalizeTeam(t); table.Has(t) {
			p.regional = append(p.regional, t)
		}
	}
	if len(p.regional) == 0 {
		return candidatePools{}, noRegionalTeams(fmt.Sprintf("strategy %s needs at least one rated regional team", c.Strategy))
	}
	return p, nil
}

// draw picks uniformly from pool, never returning self.
func (c *Completer) draw(pool []string, self string) (string, error) {
	candidates := pool
	for i, t := range pool {
		if t == self {
			candidates = make([]string, 0, len(pool)-1)
			candidates = append(candidates, pool[:i]...)
			candidates = append(candidates, pool[i+1:]...)
			break
		}
	}
	if len(candidates) == 0 {
		return "", ErrNoCandidates
	}
	return candidates[c.rng.Intn(len(candidates))], nil
}

type meeting struct {
	date, team, opponent string
}

// Renumber assigns 1, 2, 3, ... to fixtures sharing a date, team and
// opponent, in slice order.
func Renumber(schedule []Fixture) {
	counts := make(map[meeting]int)
	for i := range schedule {
		m := meeting{schedule[i].Date.Format(DateLayout), schedule[i].Team, schedule[i].Opponent}
		counts[m]++
		schedule[i].GameNumber = counts[m]
	}
}

// SortSchedule orders fixtures by date then game number, keeping input order
// for ties.
func SortSchedule(schedule []Fixture) {
	sort.SliceStable(schedule, func(i, j int) bool {
		if !schedule[i].Date.Equal(schedule[j].Date) {
			return schedule[i].Date.Before(schedule[j].Date)
		}
		return schedule[i].GameNumber < schedule[j].GameNumber
	})
}

// ParseDate reads a schedule date in MM/DD/YYYY or ISO form.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range []string{DateLayout, "2006-01-02", "1/2/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &ValidationError{Field: "date", Message: fmt.Sprintf("unrecognised date %q", s)}
}
