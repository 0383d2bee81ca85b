package league

import "sort"

// Standing holds the win/loss record of one team over a set of games.
type Standing struct {
	Team          string `json:"team"`
	Played        int    `json:"played"`
	Wins          int    `json:"wins"`
	Losses        int    `json:"losses"`
	Draws         int    `json:"draws"`
	PointsFor     int    `json:"points_for"`
	PointsAgainst int    `json:"points_against"`
}

// Standings tallies games into records ordered by wins, then fewest losses,
// then name.
func Standings(games []Game) []Standing {
	byTeam := make(map[string]*Standing)
	get := func(t string) *Standing {
		s, ok := byTeam[t]
		if !ok {
			s = &Standing{Team: t}
			byTeam[t] = s
		}
		return s
	}

	for _, g := range games {
		a, b := get(g.TeamA), get(g.TeamB)
		a.Played++
		b.Played++
		a.PointsFor += g.ScoreA
		a.PointsAgainst += g.ScoreB
		b.PointsFor += g.ScoreB
		b.PointsAgainst += g.ScoreA

		switch {
		case g.ScoreA > g.ScoreB:
			a.Wins++
			b.Losses++
		case g.ScoreA < g.ScoreB:
			b.Wins++
			a.Losses++
		default:
			a.Draws++
			b.Draws++
		}
	}

	out := make([]Standing, 0, len(byTeam))
	for _, s := range byTeam {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		if a.Losses != b.Losses {
			return a.Losses < b.Losses
		}
		return a.Team < b.Team
	})
	return out
}
