package league

import (
	"fmt"
	"sort"
)

// Table maps teams to their current ratings. A Table is owned by a single
// simulation realization; share only through Clone.
type Table struct {
	entries map[string]*Rating
}

// NewTable builds a table from seed rows. Later rows for the same team win.
func NewTable(rows []Rating) *Table {
	t := &Table{entries: make(map[string]*Rating, len(rows))}
	for _, r := range rows {
		r.Team = NormalizeTeam(r.Team)
		if r.Team == "" {
			continue
		}
		rc := r
		t.entries[r.Team] = &rc
	}
	return t
}

// Clone returns an independent deep copy.
func (t *Table) Clone() *Table {
	c := &Table{entries: make(map[string]*Rating, len(t.entries))}
	for k, v := range t.entries {
		rc := *v
		c.entries[k] = &rc
	}
	return c
}

// Len is the number of rated teams.
func (t *Table) Len() int { return len(t.entries) }

// Get returns a copy of a team's rating.
func (t *Table) Get(team string) (Rating, bool) {
	r, ok := t.entries[team]
	if !ok {
		return Rating{}, false
	}
	return *r, true
}

// Has reports whether a team is rated.
func (t *Table) Has(team string) bool {
	_, ok := t.entries[team]
	return ok
}

func (t *Table) mustGet(team string) (*Rating, error) {
	r, ok := t.entries[team]
	if !ok {
		return nil, fmt.Errorf("%q: %w", team, ErrUnknownTeam)
	}
	return r, nil
}

// Teams returns all rated teams in lexical order.
func (t *Table) Teams() []string {
	out := make([]string, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Rows returns the ratings sorted by team.
func (t *Table) Rows() []Rating {
	out := make([]Rating, 0, len(t.entries))
	for _, k := range t.Teams() {
		out = append(out, *t.entries[k])
	}
	return out
}

// Terciles splits teams by ascending rating into bottom, middle and top
// groups. Like numpy.array_split, the first len%3 groups get one extra team.
func (t *Table) Terciles() (bottom, middle, top []string) {
	rows := t.Rows()
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Elo < rows[j].Elo })

	n := len(rows)
	sizes := [3]int{n / 3, n / 3, n / 3}
	for i := 0; i < n%3; i++ {
		sizes[i]++
	}
	groups := make([][]string, 3)
	idx := 0
	for g, size := range sizes {
		for k := 0; k < size; k++ {
			groups[g] = append(groups[g], rows[idx].Team)
			idx++
		}
	}
	return groups[0], groups[1], groups[2]
}

// RegressToMean pulls every rating toward mean: r = r*p + (1-p)*mean.
// It models the off-season carry-over between two seasons.
func (t *Table) RegressToMean(p, mean float64) {
	for _, r := range t.entries {
		r.Elo = r.Elo*p + (1-p)*mean
	}
}
