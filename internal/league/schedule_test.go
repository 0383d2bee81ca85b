package league

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tenTeams rates T0..T9 at 1400, 1420, ... so terciles are predictable.
func tenTeams() *Table {
	rows := make([]Rating, 10)
	for i := range rows {
		rows[i] = Rating{Team: fmt.Sprintf("T%d", i), Elo: 1400 + 20*float64(i)}
	}
	return NewTable(rows)
}

func dates(t *testing.T, start string, n int) []time.Time {
	d := day(t, start)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = d.AddDate(0, 0, i)
	}
	return out
}

func TestTerciles(t *testing.T) {
	bottom, middle, top := tenTeams().Terciles()
	assert.Equal(t, []string{"T0", "T1", "T2", "T3"}, bottom)
	assert.Equal(t, []string{"T4", "T5", "T6"}, middle)
	assert.Equal(t, []string{"T7", "T8", "T9"}, top)

	b, m, tp := NewTable([]Rating{{Team: "A", Elo: 2}, {Team: "B", Elo: 1}}).Terciles()
	assert.Equal(t, []string{"B"}, b)
	assert.Equal(t, []string{"A"}, m)
	assert.Empty(t, tp)
}

func TestCompleteFillsUnscheduledRows(t *testing.T) {
	template := []Fixture{
		{Date: day(t, "02/12/2024"), Team: "T1", Opponent: "T2", GameNumber: 1},
		{Date: day(t, "02/10/2024"), Team: "T3", GameNumber: 1},
		{Date: day(t, "02/11/2024"), Team: "T4", GameNumber: 1},
		{Date: day(t, "02/10/2024"), Team: "T5", GameNumber: 1},
	}
	c := NewCompleter(StrategyRandom, DefaultRegionalQuota, nil, rand.New(rand.NewSource(11)))
	out, err := c.Complete(template, tenTeams())
	require.NoError(t, err)
	require.Len(t, out, 4)

	for _, f := range out {
		assert.True(t, f.Scheduled())
		assert.NotEqual(t, f.Team, f.Opponent)
	}
	assert.Equal(t, "T2", out[3].Opponent)
	assert.Empty(t, template[1].Opponent, "template must not be modified")
}

func TestCompleteStrategyDrawsFromTercile(t *testing.T) {
	template := make([]Fixture, 0, 20)
	for _, d := range dates(t, "02/01/2024", 20) {
		template = append(template, Fixture{Date: d, Team: "T0", GameNumber: 1})
	}

	tests := []struct {
		strategy Strategy
		want     []string
	}{
		{StrategyTop, []string{"T7", "T8", "T9"}},
		{StrategyMiddle, []string{"T4", "T5", "T6"}},
		{StrategyBottom, []string{"T1", "T2", "T3"}},
	}
	for _, tt := range tests {
		t.Run(tt.strategy.String(), func(t *testing.T) {
			c := NewCompleter(tt.strategy, 0, nil, rand.New(rand.NewSource(5)))
			out, err := c.Complete(template, tenTeams())
			require.NoError(t, err)
			for _, f := range out {
				assert.Contains(t, tt.want, f.Opponent)
			}
		})
	}
}

func TestGenerateLengthAndOrder(t *testing.T) {
	template := []Fixture{
		{Date: day(t, "03/05/2024"), Team: "T1", Opponent: "T2", GameNumber: 1},
		{Date: day(t, "02/01/2024"), Team: "T3", Opponent: "T4", GameNumber: 1},
		{Date: day(t, "02/20/2024"), Team: "T5", GameNumber: 1},
	}
	when := dates(t, "02/10/2024", 10)

	c := NewCompleter(StrategyTop, DefaultRegionalQuota, []string{"T1", "T2"}, rand.New(rand.NewSource(21)))
	out, err := c.Generate(template, tenTeams(), "T0", when, 10)
	require.NoError(t, err)
	require.Len(t, out, len(template)+10)

	for i := 1; i < len(out); i++ {
		prev, cur := out[i-1], out[i]
		ordered := prev.Date.Before(cur.Date) || (prev.Date.Equal(cur.Date) && prev.GameNumber <= cur.GameNumber)
		assert.True(t, ordered, "fixture %d out of order", i)
	}

	home := 0
	for _, f := range out {
		assert.True(t, f.Scheduled())
		if f.Team == "T0" {
			home++
		}
	}
	assert.Equal(t, 10, home)
}

func TestGenerateRegionalQuota(t *testing.T) {
	regional := []string{"T1", "T2", "T4"}
	for seed := int64(1); seed <= 20; seed++ {
		c := NewCompleter(StrategyTop, DefaultRegionalQuota, regional, rand.New(rand.NewSource(seed)))
		out, err := c.Generate(nil, tenTeams(), "T0", dates(t, "02/10/2024", 10), 10)
		require.NoError(t, err)

		n := 0
		for _, f := range out {
			if f.Team == "T0" {
				assert.Contains(t, []string{"T1", "T2", "T4", "T7", "T8", "T9"}, f.Opponent)
				for _, r := range regional {
					if f.Opponent == r {
						n++
					}
				}
			}
		}
		assert.GreaterOrEqual(t, n, 7, "seed %d", seed)
	}
}

func TestGenerateCountMismatch(t *testing.T) {
	c := NewCompleter(StrategyRandom, DefaultRegionalQuota, nil, rand.New(rand.NewSource(1)))
	_, err := c.Generate(nil, tenTeams(), "T0", dates(t, "02/10/2024", 3), 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFixtureCountMismatch))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "dates", verr.Field)
}

func TestCompleteNoCandidates(t *testing.T) {
	table := NewTable([]Rating{{Team: "Solo", Elo: 1500}})
	c := NewCompleter(StrategyRandom, 0, nil, rand.New(rand.NewSource(1)))
	_, err := c.Complete([]Fixture{{Date: day(t, "02/10/2024"), Team: "Solo"}}, table)
	assert.ErrorIs(t, err, ErrNoCandidates)

	_, err = c.Complete([]Fixture{{Date: day(t, "02/10/2024"), Team: "Solo"}}, NewTable(nil))
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestRenumberSameDayMeetings(t *testing.T) {
	d := day(t, "02/10/2024")
	schedule := []Fixture{
		{Date: d, Team: "T1", Opponent: "T2", GameNumber: 5},
		{Date: d, Team: "T3", Opponent: "T4", GameNumber: 5},
		{Date: d, Team: "T1", Opponent: "T2", GameNumber: 5},
		{Date: d.AddDate(0, 0, 1), Team: "T1", Opponent: "T2", GameNumber: 9},
	}
	Renumber(schedule)
	assert.Equal(t, []int{1, 1, 2, 1}, []int{
		schedule[0].GameNumber, schedule[1].GameNumber, schedule[2].GameNumber, schedule[3].GameNumber,
	})

	SortSchedule(schedule)
	assert.Equal(t, "T3", schedule[1].Team, "ties keep input order")
	assert.Equal(t, 2, schedule[2].GameNumber)
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"02/10/2024", "2024-02-10", "2/10/2024"} {
		d, err := ParseDate(s)
		require.NoError(t, err, s)
		assert.Equal(t, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), d)
	}
	_, err := ParseDate("10 Feb")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestGenerateQuotaIgnoresTemplateBlanks(t *testing.T) {
	regional := []string{"T1", "T2", "T4"}
	var template []Fixture
	for _, d := range dates(t, "01/10/2024", 5) {
		template = append(template, Fixture{Date: d, Team: "T5", GameNumber: 1})
	}

	for seed := int64(1); seed <= 20; seed++ {
		c := NewCompleter(StrategyTop, DefaultRegionalQuota, regional, rand.New(rand.NewSource(seed)))
		out, err := c.Generate(template, tenTeams(), "T0", dates(t, "02/10/2024", 10), 10)
		require.NoError(t, err)
		require.Len(t, out, 15)

		n := 0
		for _, f := range out {
			require.True(t, f.Scheduled())
			if f.Team != "T0" {
				assert.NotEqual(t, "T5", f.Opponent)
				continue
			}
			assert.Contains(t, []string{"T1", "T2", "T4", "T7", "T8", "T9"}, f.Opponent)
			if f.Opponent == "T1" || f.Opponent == "T2" || f.Opponent == "T4" {
				n++
			}
		}
		assert.GreaterOrEqual(t, n, 7, "seed %d", seed)
	}
	assert.Empty(t, template[0].Opponent)
}

func TestGenerateRequiresRegionalTeams(t *testing.T) {
	tests := []struct {
		name     string
		regional []string
	}{
		{"no list", nil},
		{"none rated", []string{"Unrated"}},
		{"only the home team", []string{"T0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCompleter(StrategyTop, DefaultRegionalQuota, tt.regional, rand.New(rand.NewSource(2)))
			_, err := c.Generate(nil, tenTeams(), "T0", dates(t, "02/10/2024", 5), 5)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNoCandidates)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "regional_teams", verr.Field)
		})
	}
}

func TestCompleteWithoutQuotaNeedsNoRegionalList(t *testing.T) {
	c := NewCompleter(StrategyTop, 0, nil, rand.New(rand.NewSource(2)))
	out, err := c.Generate(nil, tenTeams(), "T0", dates(t, "02/10/2024", 5), 5)
	require.NoError(t, err)
	for _, f := range out {
		assert.Contains(t, []string{"T7", "T8", "T9"}, f.Opponent)
	}

	// blank template rows alone never consult the regional list
	template := []Fixture{{Date: day(t, "02/10/2024"), Team: "T3"}}
	c = NewCompleter(StrategyTop, DefaultRegionalQuota, nil, rand.New(rand.NewSource(2)))
	out, err = c.Generate(template, tenTeams(), "T0", nil, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].Scheduled())
}
