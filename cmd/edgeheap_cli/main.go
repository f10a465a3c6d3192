// Command edgeheap_cli is an interactive shell over the edge heap storage
// engine. Arguments after the flags run as a single command.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/sushant-115/edgeheapdb/config"
	storageengine "github.com/sushant-115/edgeheapdb/core/storage_engine"
	"github.com/sushant-115/edgeheapdb/pkg/logger"
	"github.com/sushant-115/edgeheapdb/pkg/telemetry"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "Path to a YAML config file.")
	dataDir    = flag.String("data", "", "Overrides storage.data_dir.")
)

func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return config.Config{}, err
		}
	}
	if *dataDir != "" {
		cfg.Storage.DataDir = *dataDir
	}
	return cfg, cfg.Validate()
}

func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("open"),
		readline.PcItem("temp"),
		readline.PcItem("insert"),
		readline.PcItem("get"),
		readline.PcItem("update"),
		readline.PcItem("delete"),
		readline.PcItem("scan"),
		readline.PcItem("stats"),
		readline.PcItem("drop"),
		readline.PcItem("files"),
		readline.PcItem("backup"),
		readline.PcItem("flush"),
		readline.PcItem("pool"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
		readline.PcItem("quit"),
	)
}

func interactive(ctx context.Context, s *session, historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "edgeheap> ",
		HistoryFile:     historyFile,
		AutoComplete:    completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("starting line editor: %w", err)
	}
	defer rl.Close()
	prev := s.out
	s.out = rl.Stdout()
	defer func() { s.out = prev }()

	fmt.Fprintln(s.out, "EdgeHeapDB CLI (interactive mode). Type 'help' for commands, 'exit' or 'quit' to leave.")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.processCommand(ctx, strings.Fields(line)); errors.Is(err, errQuit) {
			fmt.Fprintln(s.out, "Exiting EdgeHeapDB CLI.")
			return nil
		}
	}
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	tel, shutdown, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Error("Telemetry shutdown failed", zap.Error(err))
		}
	}()
	if tel.MetricsAddr != "" {
		log.Info("Serving metrics", zap.String("addr", tel.MetricsAddr))
	}

	engine, err := storageengine.Open(cfg.Storage, log, tel)
	if err != nil {
		log.Fatal("Failed to open storage engine", zap.Error(err))
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Error("Failed to close storage engine", zap.Error(err))
		}
	}()

	s := newSession(engine, os.Stdout)
	defer func() {
		if err := s.close(context.Background()); err != nil {
			log.Error("Failed to close session", zap.Error(err))
		}
	}()
	if flag.NArg() > 0 {
		_ = s.processCommand(ctx, flag.Args())
		return
	}

	history := filepath.Join(cfg.Storage.DataDir, ".edgeheap_history")
	if err := interactive(ctx, s, history); err != nil {
		log.Error("Interactive session failed", zap.Error(err))
	}
}
