// Command npisim rates seasons and simulates unplayed ones.
//
// Usage:
//
//	npisim rank      -input season.csv
//	npisim simulate  -template schedule.csv [-ratings elo.csv]
//	npisim generate  -template schedule.csv -home TEAM -dates 01/02/2025,...
//	npisim calibrate -season season.csv [-ratings elo.csv]
//	npisim summarize [-dir result/npis] [-hist TEAM]
//	npisim serve
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/utakatalp/npi-simulator/internal/config"
	"github.com/utakatalp/npi-simulator/internal/logger"
)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, cfg *config.Config, log *logrus.Logger, args []string) error
}

var commands = []command{
	{"rank", "rate a season whose results are known", runRank},
	{"simulate", "complete a schedule and simulate its outcomes", runSimulate},
	{"generate", "add games for one team and complete the schedule", runGenerate},
	{"calibrate", "fit the rating update factor to a played season", runCalibrate},
	{"summarize", "summarize stored schedule rating tables", runSummarize},
	{"serve", "serve the HTTP API", runServe},
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "npisim:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("npisim", flag.ContinueOnError)
	configPath := global.String("config", "", "path to a config file (default ./npisim.yaml)")
	global.Usage = func() {
		fmt.Fprintln(global.Output(), "usage: npisim [-config file] <command> [flags]")
		fmt.Fprintln(global.Output(), "\ncommands:")
		for _, c := range commands {
			fmt.Fprintf(global.Output(), "  %-10s %s\n", c.name, c.usage)
		}
	}
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return fmt.Errorf("no command given")
	}

	name := global.Arg(0)
	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		global.Usage()
		return fmt.Errorf("unknown command %q", name)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	log := logger.InitLogger(cfg.LogLevel, cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithCommand(name).WithField("env", cfg.Env).Debug("Starting command")
	return cmd.run(ctx, cfg, log, global.Args()[1:])
}
