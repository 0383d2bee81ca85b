package simulation

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// TeamSummary describes a team's rating distribution across realizations.
type TeamSummary struct {
	Team   string  `json:"team"`
	Count  int     `json:"count"`
	Missed int     `json:"missed"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	P10    float64 `json:"p10"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
}

// Summarize reduces each row of the table. Teams never ranked keep a zero
// Count and NaN statistics.
func Summarize(table *WideTable) []TeamSummary {
	out := make([]TeamSummary, len(table.Rows))
	for i, row := range table.Rows {
		out[i] = summarizeValues(row.Team, row.Present(), len(row.Values))
	}
	return out
}

// SummarizeTeam pools one team's ratings over several schedule tables.
func SummarizeTeam(team string, tables []*WideTable) TeamSummary {
	var values []float64
	total := 0
	for _, t := range tables {
		total += len(t.Columns)
		if row, ok := t.Row(team); ok {
			values = append(values, row.Present()...)
		}
	}
	return summarizeValues(team, values, total)
}

func summarizeValues(team string, values []float64, total int) TeamSummary {
	s := TeamSummary{Team: team, Count: len(values), Missed: total - len(values)}
	if len(values) == 0 {
		nan := math.NaN()
		s.Mean, s.StdDev, s.Min, s.Max, s.P10, s.P50, s.P90 = nan, nan, nan, nan, nan, nan, nan
		return s
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	s.Mean = stat.Mean(sorted, nil)
	if len(sorted) > 1 {
		s.StdDev = stat.StdDev(sorted, nil)
	}
	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.P10 = stat.Quantile(0.10, stat.Empirical, sorted, nil)
	s.P50 = stat.Quantile(0.50, stat.Empirical, sorted, nil)
	s.P90 = stat.Quantile(0.90, stat.Empirical, sorted, nil)
	return s
}

// Bin is one histogram bucket, inclusive of Low and exclusive of High.
type Bin struct {
	Low, High float64
	Count     int
	Density   float64
}

// Histogram buckets values into bins equal-width bins spanning their range
// and normalises counts to a probability density.
func Histogram(values []float64, bins int) []Bin {
	if len(values) == 0 || bins < 1 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	lo := sorted[0]
	hi := math.Nextafter(sorted[len(sorted)-1], math.Inf(1))
	if hi-lo < 1e-9 {
		hi = lo + 1
	}

	dividers := make([]float64, bins+1)
	floats.Span(dividers, lo, hi)
	dividers[bins] = hi

	counts := stat.Histogram(nil, dividers, sorted, nil)

	out := make([]Bin, bins)
	n := float64(len(sorted))
	for i := range out {
		width := dividers[i+1] - dividers[i]
		out[i] = Bin{
			Low:     dividers[i],
			High:    dividers[i+1],
			Count:   int(counts[i]),
			Density: counts[i] / (n * width),
		}
	}
	return out
}
