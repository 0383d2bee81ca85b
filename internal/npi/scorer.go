package npi

// GameResult is a single game from one team's point of view.
type GameResult int

const (
	Loss GameResult = iota
	Tie
	Win
)

// Outcome is everything a Scorer sees about one game for one team.
type Outcome struct {
	Team, Opponent string
	Result         GameResult
	PointsFor      int
	PointsAgainst  int
	// OpponentRating is the opponent's rating from the previous round.
	OpponentRating float64
}

// Scorer turns games into ratings. GameRating scores a single game and
// Aggregate folds a team's per-game ratings, in ledger order, into the
// team's rating for the round. Aggregate is never called with an empty
// slice.
type Scorer interface {
	GameRating(o Outcome) float64
	Aggregate(gameRatings []float64) float64
}

// Default weights of the linear scorer.
const (
	DefaultWinWeight      = 0.20
	DefaultOpponentWeight = 0.80
)

// LinearScorer blends a win value (100/50/0 for win/tie/loss) with the
// opponent's rating and averages the games.
type LinearScorer struct {
	WinWeight      float64
	OpponentWeight float64
}

// NewLinearScorer returns the scorer with the default weights.
func NewLinearScorer() LinearScorer {
	return LinearScorer{WinWeight: DefaultWinWeight, OpponentWeight: DefaultOpponentWeight}
}

func (s LinearScorer) GameRating(o Outcome) float64 {
	var wv float64
	switch o.Result {
	case Win:
		wv = 100
	case Tie:
		wv = 50
	}
	return s.WinWeight*wv + s.OpponentWeight*o.OpponentRating
}

func (s LinearScorer) Aggregate(gameRatings []float64) float64 {
	var sum float64
	for _, r := range gameRatings {
		sum += r
	}
	return sum / float64(len(gameRatings))
}

// ScorerFunc adapts two functions to the Scorer interface.
type ScorerFunc struct {
	Game func(Outcome) float64
	Fold func([]float64) float64
}

func (f ScorerFunc) GameRating(o Outcome) float64    { return f.Game(o) }
func (f ScorerFunc) Aggregate(rs []float64) float64 { return f.Fold(rs) }
