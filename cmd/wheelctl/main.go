// Command wheelctl is the operator tool for the wheel ledger and portfolio.
package main

import (
	"context"
	"flag"
	"os"
	"path"
	"time"

	"github.com/google/subcommands"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/punkice3407/AllYouNeedIsWheel/internal/config"
)

var (
	configPath = flag.String("config", "", "connection file, defaults to $CONNECTION_CONFIG or connection.json")
	debug      = flag.Bool("debug", false, "enable debug logging")
)

// commands lists every subcommand of wheelctl
var commands = []subcommands.Command{
	&migrateCmd{},
	&pairRolloversCmd{},
	&ordersCmd{},
	&holdingsCmd{},
	&weeklyIncomeCmd{},
}

// init configures the logger for the CLI. Reports go to stdout, logs to stderr.
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	decimal.MarshalJSONWithoutQuotes = true
}

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	for _, c := range commands {
		commander.Register(c, "")
	}

	flag.Parse()
	if *debug || os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	os.Exit(int(commander.Execute(context.Background())))
}

// loadConfig reads the configuration named by -config, or the default one
func loadConfig() (*config.Config, error) {
	if *configPath != "" {
		return config.LoadFile(*configPath)
	}
	return config.Load()
}
