package simulation

import (
	"github.com/sirupsen/logrus"

	"github.com/utakatalp/npi-simulator/internal/league"
	"github.com/utakatalp/npi-simulator/internal/npi"
)

// Ranking is the outcome of rating a season whose results are all known.
type Ranking struct {
	Records   []npi.Record
	Unranked  []string
	Standings []league.Standing
	Stats     league.LoadStats
	Rounds    int
}

// RankSeason loads rows into a ledger and runs one convergence pass. The
// team universe is every team named in rows.
func RankSeason(rows []league.Row, engine *npi.Engine, logger *logrus.Logger) Ranking {
	teams := league.TeamsOfRows(rows)
	games, stats := league.Load(rows, teams)

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"loaded":       stats.Loaded,
			"zero_zero":    stats.ZeroZero,
			"duplicate":    stats.Duplicate,
			"invalid_team": stats.InvalidTeam,
			"self_play":    stats.SelfPlay,
			"unparseable":  stats.Unparseable,
		}).Info("Game loading statistics")
	}

	result := engine.Converge(games, teams)

	r := Ranking{
		Records:   result.Ranking(),
		Standings: league.Standings(games),
		Stats:     stats,
		Rounds:    result.Rounds,
	}
	for _, t := range teams.Sorted() {
		if _, ok := result.Rating(t); !ok {
			r.Unranked = append(r.Unranked, t)
		}
	}
	return r
}
