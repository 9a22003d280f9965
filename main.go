package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/rtm0/stormsurge/internal/config"
	"github.com/rtm0/stormsurge/internal/logger"
	"github.com/rtm0/stormsurge/internal/tide"
)

var (
	configFile = flag.String("config", "", "path to a configuration file in YAML, TOML or JSON format")
	envFile    = flag.String("env", ".env", "path to a dotenv file loaded before the configuration")
)

type command struct {
	usage string
	run   func(ctx context.Context, log *slog.Logger, conf *config.Config, args []string) error
}

var commands = map[string]command{
	"generate": {"fetch station data and write an archive", runGenerate},
	"stations": {"list stations and their data bounds", runStations},
	"extract":  {"write a single-station sub-archive", runExtract},
	"check":    {"compare an archive with the cached responses", runCheck},
}

func main() {
	flag.Usage = usage
	flag.Parse()
	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		usage()
		os.Exit(2)
	}

	bootstrap := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		bootstrap.Error("Could not load env file", "file", *envFile, logger.Err(err))
		os.Exit(1)
	}
	conf, err := loadConfig(*configFile)
	if err != nil {
		bootstrap.Error("Could not load configuration", logger.Err(err))
		os.Exit(1)
	}
	log, err := logger.New(conf.LogLevel, conf.LogFormat, os.Stderr)
	if err != nil {
		bootstrap.Error("Could not create logger", logger.Err(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = cmd.run(ctx, log, conf, flag.Args()[1:])
	stop()
	if err != nil {
		log.Error("Command failed", "command", flag.Arg(0), "kind", tide.ErrorKind(err), logger.Err(err))
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.New()
	}
	return config.NewFromFile(filepath.Dir(path), filepath.Base(path))
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [flags] <command> [command flags]\n\nCommands:\n", filepath.Base(os.Args[0]))
	for _, name := range []string{"generate", "stations", "extract", "check"} {
		fmt.Fprintf(out, "  %-10s %s\n", name, commands[name].usage)
	}
	fmt.Fprintln(out, "\nFlags:")
	flag.PrintDefaults()
}
