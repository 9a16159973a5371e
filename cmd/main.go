// Gateway server entrypoint.
//
// Starts the Gemini web gateway: load .env and YAML config, set up
// logging, run the HTTP server, and drain sessions on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/geminiweb/gemini-gateway/internal/config"
	"github.com/geminiweb/gemini-gateway/internal/gateway"
)

const shutdownTimeout = 15 * time.Second

func main() {
	args := os.Args[1:]
	var (
		configFlag string
		portFlag   string
		debugFlag  bool
	)

	i := 0
	for i < len(args) {
		switch args[i] {
		case "-h", "--help":
			printHelp()
			return
		case "-c", "--config":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "Error: --config requires a value")
				os.Exit(1)
			}
			configFlag = args[i+1]
			i += 2
		case "-p", "--port":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "Error: --port requires a value")
				os.Exit(1)
			}
			portFlag = args[i+1]
			i += 2
		case "-d", "--debug":
			debugFlag = true
			i++
		default:
			fmt.Fprintf(os.Stderr, "Error: unknown flag %q\n\n", args[i])
			printHelp()
			os.Exit(1)
		}
	}

	// .env is optional; deployed environments set variables directly.
	_ = godotenv.Load()

	cfg := config.DefaultConfig()
	if configFlag != "" {
		loaded, err := config.Load(configFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config %q: %v\n", configFlag, err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if portFlag != "" {
		port, err := strconv.Atoi(portFlag)
		if err != nil || port <= 0 || port > 65535 {
			fmt.Fprintf(os.Stderr, "Error: invalid port %q\n", portFlag)
			os.Exit(1)
		}
		cfg.Server.Port = port
	}
	if debugFlag {
		cfg.Monitoring.LogLevel = "debug"
	}

	setupLogging(cfg)

	gw, err := gateway.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gateway")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("gateway stopped")
		}
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := gw.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("shutdown incomplete")
		}
	}
}

// setupLogging configures zerolog from the monitoring section: level,
// output, and console vs JSON format. Console rendering only when the
// output is actually a terminal.
func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Monitoring.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out *os.File
	switch cfg.Monitoring.LogOutput {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Monitoring.LogOutput, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log output %q: %v; falling back to stderr\n",
				cfg.Monitoring.LogOutput, err)
			out = os.Stderr
		} else {
			out = f
		}
	}

	console := cfg.Monitoring.LogFormat != "json" && term.IsTerminal(int(out.Fd()))
	if console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen})
	} else {
		log.Logger = log.Output(out)
	}

	// net/http server errors go through the standard logger; route them
	// into the same sink.
	stdlog.SetOutput(log.Logger)
}

func printHelp() {
	fmt.Print(`gemini-gateway - REST gateway for the Gemini web backend

Usage:
  gemini-gateway [flags]

Flags:
  -c, --config <path>   YAML config file
  -p, --port <port>     Listen port (overrides config)
  -d, --debug           Debug logging
  -h, --help            Show this help

Callers authenticate per request with their own Gemini cookies in the
Cookie header: __Secure-1PSID (required), __Secure-1PSIDTS (recommended).
`)
}
