package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/utakatalp/npi-simulator/internal/league"
	"github.com/utakatalp/npi-simulator/internal/simulation"
)

var ErrMissingColumn = errors.New("missing required column")

// ScheduleColumns is the season table layout shared with the entry form.
var ScheduleColumns = []string{
	"date", "team", "opponent", "result", "WL", "attendance", "contest",
	"home_score", "away_score", "game_number", "location",
}

var requiredScheduleColumns = []string{"date", "team", "opponent", "home_score", "away_score"}

var requiredRatingColumns = []string{"team", "elo_rating"}

type header map[string]int

func readHeader(r *csv.Reader, required []string) (header, error) {
	names, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty file: %w", ErrMissingColumn)
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}
	h := make(header, len(names))
	for i, n := range names {
		h[strings.TrimSpace(strings.TrimPrefix(n, "\ufeff"))] = i
	}
	for _, col := range required {
		if _, ok := h[col]; !ok {
			return nil, fmt.Errorf("%q: %w", col, ErrMissingColumn)
		}
	}
	return h, nil
}

func (h header) get(record []string, col string) string {
	i, ok := h[col]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr
}

// ReadRows reads a season table as raw ledger rows. Malformed values are
// left for the ledger to reject.
func ReadRows(r io.Reader) ([]league.Row, error) {
	cr := newReader(r)
	h, err := readHeader(cr, requiredScheduleColumns)
	if err != nil {
		return nil, err
	}

	var rows []league.Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading season row: %w", err)
		}
		rows = append(rows, league.Row{
			Date:       h.get(rec, "date"),
			Team:       h.get(rec, "team"),
			Opponent:   h.get(rec, "opponent"),
			HomeScore:  h.get(rec, "home_score"),
			AwayScore:  h.get(rec, "away_score"),
			GameNumber: h.get(rec, "game_number"),
			WL:         h.get(rec, "WL"),
		})
	}
	return rows, nil
}

// ReadFixtures reads a schedule template. Blank opponents mark unscheduled
// rows; blank scores read as 0 and a blank game number as 1.
func ReadFixtures(r io.Reader) ([]league.Fixture, error) {
	rows, err := ReadRows(r)
	if err != nil {
		return nil, err
	}
	fixtures := make([]league.Fixture, 0, len(rows))
	for i, row := range rows {
		f, err := fixtureFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		fixtures = append(fixtures, f)
	}
	return fixtures, nil
}

func fixtureFromRow(row league.Row) (league.Fixture, error) {
	date, err := league.ParseDate(strings.TrimSpace(row.Date))
	if err != nil {
		return league.Fixture{}, err
	}
	f := league.Fixture{
		Date:       date,
		Team:       league.NormalizeTeam(row.Team),
		Opponent:   league.NormalizeTeam(row.Opponent),
		GameNumber: 1,
		WL:         strings.ToUpper(strings.TrimSpace(row.WL)),
	}
	if f.Team == "" {
		return league.Fixture{}, &league.ValidationError{Field: "team", Message: "team is required"}
	}
	if f.HomeScore, err = optionalInt(row.HomeScore, 0); err != nil {
		return league.Fixture{}, &league.ValidationError{Field: "home_score", Message: err.Error()}
	}
	if f.AwayScore, err = optionalInt(row.AwayScore, 0); err != nil {
		return league.Fixture{}, &league.ValidationError{Field: "away_score", Message: err.Error()}
	}
	if f.GameNumber, err = optionalInt(row.GameNumber, 1); err != nil {
		return league.Fixture{}, &league.ValidationError{Field: "game_number", Message: err.Error()}
	}
	return f, nil
}

func optionalInt(s string, def int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	// pandas writes integer columns with NaN as floats
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int(f)) {
		return int(f), nil
	}
	return strconv.Atoi(s)
}

// WriteFixtures writes a schedule in the season table layout.
func WriteFixtures(w io.Writer, fixtures []league.Fixture) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ScheduleColumns); err != nil {
		return err
	}
	for _, f := range fixtures {
		result := ""
		if f.WL != "" {
			result = fmt.Sprintf("%s %d-%d", f.WL, f.HomeScore, f.AwayScore)
		}
		rec := []string{
			f.Date.Format(league.DateLayout),
			f.Team,
			f.Opponent,
			result,
			f.WL,
			"0",
			"0",
			strconv.Itoa(f.HomeScore),
			strconv.Itoa(f.AwayScore),
			strconv.Itoa(f.GameNumber),
			"",
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadRatings reads a rating seed table: team, elo_rating, games, wins.
func ReadRatings(r io.Reader) ([]league.Rating, error) {
	cr := newReader(r)
	h, err := readHeader(cr, requiredRatingColumns)
	if err != nil {
		return nil, err
	}

	var out []league.Rating
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("reading rating row: %w", err)
		}
		team := league.NormalizeTeam(h.get(rec, "team"))
		if team == "" {
			continue
		}
		elo, err := strconv.ParseFloat(strings.TrimSpace(h.get(rec, "elo_rating")), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: elo_rating: %w", line, err)
		}
		games, err := optionalInt(h.get(rec, "games"), 0)
		if err != nil {
			return nil, fmt.Errorf("line %d: games: %w", line, err)
		}
		wins, err := optionalInt(h.get(rec, "wins"), 0)
		if err != nil {
			return nil, fmt.Errorf("line %d: wins: %w", line, err)
		}
		out = append(out, league.Rating{Team: team, Elo: elo, Played: games, Wins: wins})
	}
	return out, nil
}

// WriteRatings writes a rating seed table.
func WriteRatings(w io.Writer, ratings []league.Rating) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"team", "elo_rating", "games", "wins"}); err != nil {
		return err
	}
	for _, r := range ratings {
		rec := []string{r.Team, formatFloat(r.Elo), strconv.Itoa(r.Played), strconv.Itoa(r.Wins)}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteWide writes team, rating_1..rating_M with empty cells for absence.
func WriteWide(w io.Writer, table *simulation.WideTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"team"}, table.Columns...)); err != nil {
		return err
	}
	for _, row := range table.Rows {
		rec := make([]string, 1, len(row.Values)+1)
		rec[0] = row.Team
		for _, v := range row.Values {
			if v == nil {
				rec = append(rec, "")
			} else {
				rec = append(rec, formatFloat(*v))
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadWide reads a table written by WriteWide.
func ReadWide(r io.Reader) (*simulation.WideTable, error) {
	cr := newReader(r)
	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if len(head) == 0 || strings.TrimSpace(head[0]) != "team" {
		return nil, fmt.Errorf("%q: %w", "team", ErrMissingColumn)
	}
	table := &simulation.WideTable{Columns: head[1:]}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading rating row: %w", err)
		}
		row := simulation.WideRow{Team: rec[0], Values: make([]*float64, len(table.Columns))}
		for i := range table.Columns {
			if i+1 >= len(rec) || strings.TrimSpace(rec[i+1]) == "" {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("team %q column %s: %w", rec[0], table.Columns[i], err)
			}
			row.Values[i] = &v
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// WriteRanking writes the full-match result: team, npi, games, wins, losses.
func WriteRanking(w io.Writer, ranking simulation.Ranking) error {
	record := make(map[string]league.Standing, len(ranking.Standings))
	for _, s := range ranking.Standings {
		record[s.Team] = s
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"team", "npi", "games", "wins", "losses"}); err != nil {
		return err
	}
	write := func(team, rating string) error {
		s := record[team]
		return cw.Write([]string{team, rating, strconv.Itoa(s.Played), strconv.Itoa(s.Wins), strconv.Itoa(s.Losses)})
	}
	for _, rec := range ranking.Records {
		if err := write(rec.Team, formatFloat(rec.Rating)); err != nil {
			return err
		}
	}
	for _, team := range ranking.Unranked {
		if err := write(team, ""); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// CSVSink writes each schedule realization under Dir as
// schedules/schedule_<s>.csv and npis/schedule_<s>_npi.csv.
type CSVSink struct {
	Dir string
}

// NewCSVSink creates the output folders, emptying files left by an earlier
// run.
func NewCSVSink(dir string) (*CSVSink, error) {
	for _, sub := range []string{"schedules", "npis"} {
		path := filepath.Join(dir, sub)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", path, err)
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", path, err)
		}
		for _, e := range entries {
			if e.Type().IsRegular() {
				if err := os.Remove(filepath.Join(path, e.Name())); err != nil {
					return nil, fmt.Errorf("clearing %s: %w", path, err)
				}
			}
		}
	}
	return &CSVSink{Dir: dir}, nil
}

func (s *CSVSink) SchedulePath(index int) string {
	return filepath.Join(s.Dir, "schedules", fmt.Sprintf("schedule_%d.csv", index))
}

func (s *CSVSink) RatingsPath(index int) string {
	return filepath.Join(s.Dir, "npis", fmt.Sprintf("schedule_%d_npi.csv", index))
}

func (s *CSVSink) WriteSchedule(_ context.Context, index int, schedule []league.Fixture) error {
	return writeFile(s.SchedulePath(index), func(w io.Writer) error { return WriteFixtures(w, schedule) })
}

func (s *CSVSink) WriteRatings(_ context.Context, index int, table *simulation.WideTable) error {
	return writeFile(s.RatingsPath(index), func(w io.Writer) error { return WriteWide(w, table) })
}

// writeFile writes through a temporary file so readers never see a partial
// artifact.
func writeFile(path string, fn func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if err := fn(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return os.Rename(tmp.Name(), path)
}

// WriteFile is writeFile for callers outside the sink.
func WriteFile(path string, fn func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return writeFile(path, fn)
}

// ReadFile opens path and hands it to fn.
func ReadFile[T any](path string, fn func(io.Reader) (T, error)) (T, error) {
	f, err := os.Open(path)
	if err != nil {
		var zero T
		return zero, err
	}
	defer f.Close()
	return fn(f)
}

var _ simulation.Sink = (*CSVSink)(nil)
