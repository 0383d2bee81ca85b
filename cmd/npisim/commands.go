package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/utakatalp/npi-simulator/internal/api"
	"github.com/utakatalp/npi-simulator/internal/config"
	"github.com/utakatalp/npi-simulator/internal/league"
	"github.com/utakatalp/npi-simulator/internal/logger"
	"github.com/utakatalp/npi-simulator/internal/npi"
	"github.com/utakatalp/npi-simulator/internal/simulation"
	"github.com/utakatalp/npi-simulator/internal/store"
)

// simulationOptions maps configuration onto runner options.
func simulationOptions(cfg *config.Config) simulation.Options {
	return simulation.Options{
		ScheduleSims:  cfg.ScheduleSims,
		OutcomeSims:   cfg.OutcomeSims,
		Workers:       cfg.Workers,
		Seed:          cfg.Seed,
		Strategy:      league.Strategy(cfg.Strategy),
		RegionalQuota: cfg.RegionalQuota,
		RegionalTeams: cfg.RegionalTeams,
		ScalingFactor: cfg.ScalingFactor,
		UpdateFactor:  cfg.UpdateFactor,
		KeepPlayed:    cfg.KeepPlayed,
		Iterations:    cfg.Iterations,
		Neutral:       cfg.NeutralRating,
		Scorer:        npi.LinearScorer{WinWeight: cfg.WinWeight, OpponentWeight: cfg.OpponentWeight},
	}
}

func newEngine(cfg *config.Config, iterations int, log *logrus.Logger) *npi.Engine {
	e := npi.NewEngine(iterations, npi.LinearScorer{WinWeight: cfg.WinWeight, OpponentWeight: cfg.OpponentWeight}, log)
	e.Neutral = cfg.NeutralRating
	return e
}

func parseFlags(fs *flag.FlagSet, args []string, required ...string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	for _, name := range required {
		if f := fs.Lookup(name); f == nil || f.Value.String() == "" {
			fs.Usage()
			return fmt.Errorf("-%s is required", name)
		}
	}
	return nil
}

func runRank(ctx context.Context, cfg *config.Config, log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("rank", flag.ContinueOnError)
	input := fs.String("input", "", "season CSV with results")
	out := fs.String("out", cfg.OutputDir, "directory for processed_result.csv")
	iterations := fs.Int("iterations", cfg.Iterations, "rating rounds")
	if err := parseFlags(fs, args, "input"); err != nil {
		return err
	}
	if *iterations < 0 {
		return fmt.Errorf("-iterations must not be negative")
	}

	rows, err := store.ReadFile(*input, store.ReadRows)
	if err != nil {
		return fmt.Errorf("reading season: %w", err)
	}

	start := time.Now()
	ranking := simulation.RankSeason(rows, newEngine(cfg, *iterations, log), log)
	log.WithFields(logrus.Fields{
		"games":          ranking.Stats.Loaded,
		"rounds":         ranking.Rounds,
		"execution_time": time.Since(start),
	}).Info("Season rated")

	path := filepath.Join(*out, "processed_result.csv")
	if err := store.WriteFile(path, func(w io.Writer) error { return store.WriteRanking(w, ranking) }); err != nil {
		return err
	}
	log.WithField("path", path).Info("Saved ratings")

	return printRanking(os.Stdout, ranking)
}

func printRanking(w io.Writer, r simulation.Ranking) error {
	record := make(map[string]league.Standing, len(r.Standings))
	for _, s := range r.Standings {
		record[s.Team] = s
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tteam\tnpi\tW\tL\tgames\t")
	for i, rec := range r.Records {
		s := record[rec.Team]
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%d\t%d\t%d\t\n", i+1, rec.Team, rec.Rating, s.Wins, s.Losses, s.Played)
	}
	for _, team := range r.Unranked {
		fmt.Fprintf(tw, "-\t%s\t\t0\t0\t0\t\n", team)
	}
	return tw.Flush()
}

func runSimulate(ctx context.Context, cfg *config.Config, log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	template := fs.String("template", "", "schedule CSV; blank opponents are filled")
	ratings := fs.String("ratings", cfg.RatingsPath, "starting ratings CSV")
	out := fs.String("out", cfg.OutputDir, "output directory")
	schedules := fs.Int("schedules", cfg.ScheduleSims, "schedule realizations")
	outcomes := fs.Int("outcomes", cfg.OutcomeSims, "outcome realizations per schedule")
	workers := fs.Int("workers", cfg.Workers, "concurrent outcome realizations (0 = GOMAXPROCS)")
	seed := fs.Int64("seed", cfg.Seed, "random seed (0 = clock)")
	strategy := fs.Int("strategy", cfg.Strategy, "opponent strategy: 0 random, 1 top, 2 middle, 3 bottom")
	keepPlayed := fs.Bool("keep-played", cfg.KeepPlayed, "replay fixtures that already have results")
	persist := fs.Bool("persist", false, "also store the run in DATABASE_URL")
	hist := fs.String("hist", "", "print a rating histogram for this team")
	if err := parseFlags(fs, args, "template"); err != nil {
		return err
	}

	fixtures, err := store.ReadFile(*template, store.ReadFixtures)
	if err != nil {
		return fmt.Errorf("reading template: %w", err)
	}
	seeds, err := store.ReadFile(*ratings, store.ReadRatings)
	if err != nil {
		return fmt.Errorf("reading ratings: %w", err)
	}

	opts := simulationOptions(cfg)
	opts.ScheduleSims = *schedules
	opts.OutcomeSims = *outcomes
	opts.Workers = *workers
	opts.Seed = *seed
	opts.Strategy = league.Strategy(*strategy)
	opts.KeepPlayed = *keepPlayed
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	runLog := logger.WithRun(fmt.Sprintf("seed-%d", opts.Seed))

	csvSink, err := store.NewCSVSink(*out)
	if err != nil {
		return err
	}
	sinks := simulation.Sinks{csvSink}

	var (
		dbStore *store.Store
		dbRun   *store.Run
	)
	if *persist {
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("-persist needs DATABASE_URL")
		}
		dbStore, err = store.NewStore(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer dbStore.Close()
		if err := dbStore.Migrate(ctx); err != nil {
			return err
		}
		dbRun, err = dbStore.CreateRun(ctx, store.RunInfo{
			Seed:         opts.Seed,
			Strategy:     opts.Strategy,
			ScheduleSims: opts.ScheduleSims,
			OutcomeSims:  opts.OutcomeSims,
			Iterations:   opts.Iterations,
		})
		if err != nil {
			return err
		}
		runLog = logger.WithRun(fmt.Sprintf("%d", dbRun.ID))
		sinks = append(sinks, dbRun)
	}

	// a failed run leaves no stored rows behind
	abandon := func(err error) error {
		if dbRun != nil {
			if derr := dbStore.DeleteRun(context.WithoutCancel(ctx), dbRun.ID); derr != nil {
				runLog.WithError(derr).Warn("Failed to remove incomplete run")
			}
		}
		return err
	}

	runner, err := simulation.NewRunner(opts, sinks, log)
	if err != nil {
		return abandon(err)
	}
	runLog.WithFields(logrus.Fields{
		"template": *template,
		"strategy": opts.Strategy.String(),
		"out":      *out,
	}).Info("Simulation run started")

	results, err := runner.Run(ctx, fixtures, league.NewTable(seeds))
	if err != nil {
		return abandon(err)
	}
	runLog.WithField("schedules", len(results)).Info("Simulation run complete")

	tables := make([]*simulation.WideTable, len(results))
	for i, res := range results {
		tables[i] = res.Ratings
	}
	return reportTables(os.Stdout, tables, *hist)
}

func runSummarize(ctx context.Context, cfg *config.Config, log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("summarize", flag.ContinueOnError)
	dir := fs.String("dir", filepath.Join(cfg.OutputDir, "npis"), "directory of schedule_N_npi.csv files")
	hist := fs.String("hist", "", "print a rating histogram for this team")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	paths, err := filepath.Glob(filepath.Join(*dir, "schedule_*_npi.csv"))
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no rating tables in %s", *dir)
	}
	tables := make([]*simulation.WideTable, 0, len(paths))
	for _, path := range paths {
		table, err := store.ReadFile(path, store.ReadWide)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		tables = append(tables, table)
	}
	log.WithFields(logrus.Fields{"dir": *dir, "schedules": len(tables)}).Info("Loaded rating tables")
	return reportTables(os.Stdout, tables, *hist)
}

// reportTables prints per-team summaries across schedule tables and, when
// hist names a team, that team's rating histogram.
func reportTables(w io.Writer, tables []*simulation.WideTable, hist string) error {
	teams := make(league.TeamSet)
	for _, t := range tables {
		for _, row := range t.Rows {
			teams[row.Team] = struct{}{}
		}
	}
	summaries := make([]simulation.TeamSummary, 0, len(teams))
	for _, team := range teams.Sorted() {
		summaries = append(summaries, simulation.SummarizeTeam(team, tables))
	}
	if err := printSummaries(w, summaries); err != nil {
		return err
	}

	if hist == "" {
		return nil
	}
	var values []float64
	for _, t := range tables {
		if row, ok := t.Row(league.NormalizeTeam(hist)); ok {
			values = append(values, row.Present()...)
		}
	}
	if len(values) == 0 {
		return fmt.Errorf("team %q was never rated", hist)
	}
	return printHistogram(w, simulation.Histogram(values, 10))
}

func printSummaries(w io.Writer, summaries []simulation.TeamSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "team\tmean\tsd\tp10\tp50\tp90\trated\tmissed\t")
	for _, s := range summaries {
		if s.Count == 0 {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t-\t0\t%d\t\n", s.Team, s.Missed)
			continue
		}
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%d\t%d\t\n",
			s.Team, s.Mean, s.StdDev, s.P10, s.P50, s.P90, s.Count, s.Missed)
	}
	return tw.Flush()
}

func printHistogram(w io.Writer, bins []simulation.Bin) error {
	peak := 0
	for _, b := range bins {
		if b.Count > peak {
			peak = b.Count
		}
	}
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	for _, b := range bins {
		bar := 0
		if peak > 0 {
			bar = int(math.Round(40 * float64(b.Count) / float64(peak)))
		}
		fmt.Fprintf(tw, "[%.2f, %.2f)\t%d\t%s\n", b.Low, b.High, b.Count, strings.Repeat("#", bar))
	}
	return tw.Flush()
}

func runGenerate(ctx context.Context, cfg *config.Config, log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	template := fs.String("template", "", "schedule CSV to extend")
	ratings := fs.String("ratings", cfg.RatingsPath, "starting ratings CSV")
	home := fs.String("home", cfg.HomeTeam, "team receiving the new games")
	dates := fs.String("dates", "", "comma-separated game dates")
	games := fs.Int("games", -1, "number of games (default: one per date)")
	out := fs.String("out", "", "output CSV (default stdout)")
	seed := fs.Int64("seed", cfg.Seed, "random seed (0 = clock)")
	strategy := fs.Int("strategy", cfg.Strategy, "opponent strategy: 0 random, 1 top, 2 middle, 3 bottom")
	if err := parseFlags(fs, args, "template", "home", "dates"); err != nil {
		return err
	}

	var when []time.Time
	for _, d := range strings.Split(*dates, ",") {
		if d = strings.TrimSpace(d); d == "" {
			continue
		}
		t, err := league.ParseDate(d)
		if err != nil {
			return err
		}
		when = append(when, t)
	}
	if *games < 0 {
		*games = len(when)
	}

	fixtures, err := store.ReadFile(*template, store.ReadFixtures)
	if err != nil {
		return fmt.Errorf("reading template: %w", err)
	}
	seeds, err := store.ReadFile(*ratings, store.ReadRatings)
	if err != nil {
		return fmt.Errorf("reading ratings: %w", err)
	}

	opts := simulationOptions(cfg)
	opts.Seed = *seed
	// One outcome keeps the runner's seed derivation for the schedule draw.
	opts.ScheduleSims, opts.OutcomeSims = 1, 1
	runner, err := simulation.NewRunner(opts, nil, log)
	if err != nil {
		return err
	}

	completer := league.NewCompleter(league.Strategy(*strategy), cfg.RegionalQuota, cfg.RegionalTeams, runner.ScheduleRand(1))
	schedule, err := completer.Generate(fixtures, league.NewTable(seeds), *home, when, *games)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"home":     *home,
		"added":    *games,
		"fixtures": len(schedule),
		"seed":     runner.Seed(),
	}).Info("Schedule generated")

	if *out == "" {
		return store.WriteFixtures(os.Stdout, schedule)
	}
	return store.WriteFile(*out, func(w io.Writer) error { return store.WriteFixtures(w, schedule) })
}

func runCalibrate(ctx context.Context, cfg *config.Config, log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("calibrate", flag.ContinueOnError)
	season := fs.String("season", "", "played season CSV")
	ratings := fs.String("ratings", cfg.RatingsPath, "ratings at the start of the season")
	start := fs.Float64("start", cfg.UpdateFactor, "initial update factor")
	carry := fs.Bool("carry", false, "regress starting ratings toward the mean first")
	out := fs.String("out", "", "write next season's starting ratings here")
	if err := parseFlags(fs, args, "season"); err != nil {
		return err
	}

	fixtures, err := store.ReadFile(*season, store.ReadFixtures)
	if err != nil {
		return fmt.Errorf("reading season: %w", err)
	}
	seeds, err := store.ReadFile(*ratings, store.ReadRatings)
	if err != nil {
		return fmt.Errorf("reading ratings: %w", err)
	}
	base := league.NewTable(seeds)
	if *carry {
		base.RegressToMean(cfg.CrossSeasonWeight, cfg.CrossSeasonMean)
	}

	before, err := league.Replay(base.Clone(), fixtures, cfg.ScalingFactor, *start, nil)
	if err != nil {
		return err
	}
	cal, err := league.Calibrate(base, fixtures, cfg.ScalingFactor, *start)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"games":         cal.Stats.Games,
		"start":         *start,
		"update_factor": cal.UpdateFactor,
		"mse_before":    before.MSE,
		"mse_after":     cal.Stats.MSE,
	}).Info("Calibration complete")

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tupdate_factor\tmse\terror_rate\tgames")
	fmt.Fprintf(tw, "start\t%.2f\t%.4f\t%.3f\t%d\n", *start, before.MSE, before.ErrorRate, before.Games)
	fmt.Fprintf(tw, "fitted\t%.2f\t%.4f\t%.3f\t%d\n", cal.UpdateFactor, cal.Stats.MSE, cal.Stats.ErrorRate, cal.Stats.Games)
	if err := tw.Flush(); err != nil {
		return err
	}

	if *out == "" {
		return nil
	}
	end := base.Clone()
	if _, err := league.Replay(end, fixtures, cfg.ScalingFactor, cal.UpdateFactor, nil); err != nil {
		return err
	}
	end.RegressToMean(cfg.CrossSeasonWeight, cfg.CrossSeasonMean)
	return store.WriteFile(*out, func(w io.Writer) error { return store.WriteRatings(w, end.Rows()) })
}

func runServe(ctx context.Context, cfg *config.Config, log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	port := fs.String("port", cfg.Port, "listen port")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	var st *store.Store
	if cfg.DatabaseURL != "" {
		var err error
		if st, err = store.NewStore(cfg.DatabaseURL); err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}
	}

	srv := api.NewServer(":"+*port, api.NewHandler(simulationOptions(cfg), st, log))
	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", *port).Info("Server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("Server exited")
	return nil
}
