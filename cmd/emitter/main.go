// Command emitter is a command-line client for the Emitter pub/sub broker.
//
// Usage:
//
//	emitter [-config path] <command> [flags]
//
// Commands:
//
//	listen     subscribe to the configured channels and serve the status API
//	publish    publish one message
//	keygen     request a channel key and store it
//	presence   query who is subscribed to a channel
//	link       create a short link to a channel
//	me         show information about this connection
//
// Configuration is read from -config, then EMITTER_CONFIG, then
// configs/config.yaml. Built-in defaults are used when none of these exist.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/nerrad567/emitter-go/internal/infrastructure/config"
	"github.com/nerrad567/emitter-go/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// errUsage is returned for command-line mistakes; main exits with status 2.
var errUsage = errors.New("usage error")

// app carries what every command needs.
type app struct {
	cfg *config.Config
	log *logging.Logger
	out io.Writer
}

// command runs one subcommand with its own flag arguments.
type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"listen":   listenCommand,
	"publish":  publishCommand,
	"keygen":   keygenCommand,
	"presence": presenceCommand,
	"link":     linkCommand,
	"me":       meCommand,
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// run parses global flags, loads configuration and dispatches to a command.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments without the program name
//   - stdout: Destination for command output
//   - stderr: Destination for usage text
//
// Returns:
//   - error: nil on success or clean shutdown
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("emitter", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to the YAML configuration file")
	showVersion := fs.Bool("version", false, "print version and exit")
	fs.Usage = func() { usage(fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	if *showVersion {
		fmt.Fprintf(stdout, "emitter %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("%w: no command given", errUsage)
	}
	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fs.Usage()
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging, version)
	if path != "" {
		log.Debug("configuration loaded", "path", path)
	} else {
		log.Debug("no configuration file, using defaults")
	}

	return cmd(ctx, &app{cfg: cfg, log: log, out: stdout}, fs.Args()[1:])
}

// loadConfig resolves the configuration path and loads it. An explicit
// path must exist; the default path falls back to config.Default().
// It returns the path that was read, or "" when defaults were used.
func loadConfig(flagPath string) (*config.Config, string, error) {
	path, explicit := getConfigPath(flagPath)

	if !explicit {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.Default(), "", nil
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// getConfigPath returns the configuration file path and whether the user
// chose it. The -config flag wins over EMITTER_CONFIG.
func getConfigPath(flagPath string) (string, bool) {
	if flagPath != "" {
		return flagPath, true
	}
	if path := os.Getenv("EMITTER_CONFIG"); path != "" {
		return path, true
	}
	return defaultConfigPath, false
}

func usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintln(w, "Usage: emitter [-config path] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(w, "  %s\n", strings.Join(names, ", "))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Global flags:")
	fs.PrintDefaults()
}
