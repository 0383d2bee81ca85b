package simulation

import (
	"fmt"
	"sort"
)

// Column returns the header of the rating column for outcome index o
// (1-based).
func Column(o int) string { return fmt.Sprintf("rating_%d", o) }

// TeamRatings is one outcome realization's result. Teams lists every team
// the realization saw; unranked teams have no entry in Ratings.
type TeamRatings struct {
	Index   int
	Teams   []string
	Ratings map[string]float64
}

// WideRow is one team's ratings across outcome realizations. A nil cell
// means the team was absent or unranked in that realization.
type WideRow struct {
	Team   string     `json:"team"`
	Values []*float64 `json:"values"`
}

// WideTable holds every outcome realization of one schedule, one column per
// realization.
type WideTable struct {
	Columns []string  `json:"columns"`
	Rows    []WideRow `json:"rows"`
}

// Present returns the non-empty ratings of a row.
func (r WideRow) Present() []float64 {
	out := make([]float64, 0, len(r.Values))
	for _, v := range r.Values {
		if v != nil {
			out = append(out, *v)
		}
	}
	return out
}

// Row finds a team's row.
func (t *WideTable) Row(team string) (WideRow, bool) {
	i := sort.Search(len(t.Rows), func(i int) bool { return t.Rows[i].Team >= team })
	if i < len(t.Rows) && t.Rows[i].Team == team {
		return t.Rows[i], true
	}
	return WideRow{}, false
}

// Merge outer-joins realizations on team. Columns follow the order of
// parts, which callers keep sorted by realization index; rows are sorted by
// team.
func Merge(parts []TeamRatings) *WideTable {
	table := &WideTable{Columns: make([]string, len(parts))}
	for i, p := range parts {
		table.Columns[i] = Column(p.Index)
	}

	rows := make(map[string][]*float64)
	for col, p := range parts {
		for _, team := range p.Teams {
			if _, ok := rows[team]; !ok {
				rows[team] = make([]*float64, len(parts))
			}
			if v, ok := p.Ratings[team]; ok {
				v := v
				rows[team][col] = &v
			}
		}
	}

	names := make([]string, 0, len(rows))
	for team := range rows {
		names = append(names, team)
	}
	sort.Strings(names)

	table.Rows = make([]WideRow, len(names))
	for i, team := range names {
		table.Rows[i] = WideRow{Team: team, Values: rows[team]}
	}
	return table
}
