// Package main is a demo settings panel built on the settle toolkit.
package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/dshills/settle"
	"github.com/dshills/settle/loader"
	"github.com/dshills/settle/logging"
	"github.com/dshills/settle/panel"
	"github.com/dshills/settle/schema"
	"github.com/dshills/settle/script"
	"github.com/dshills/settle/store"
	"github.com/dshills/settle/values"
	"github.com/dshills/settle/watch"
)

//go:embed demo_schema.json
var demoSchema []byte

//go:embed demo.lua
var demoScript string

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

type options struct {
	SchemaPath string
	ValuesPath string
	ScriptPath string
	Watch      bool
	LogPath    string
	LogLevel   string
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	logger := logging.Null
	if opts.LogPath != "" {
		f, err := os.OpenFile(opts.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: open log file: %v\n", err)
			return 1
		}
		defer f.Close()
		logger = logging.New(logging.Config{
			Level:  logging.ParseLevel(opts.LogLevel),
			Output: f,
			Prefix: "settle",
		})
	}

	sch, err := loadSchema(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: load schema: %v\n", err)
		return 1
	}

	var hostValues map[string]any
	if opts.ValuesPath != "" {
		hostValues, err = loader.LoadValues(opts.ValuesPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: load values: %v\n", err)
			return 1
		}
	}

	eng, err := loadScript(opts, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: load script: %v\n", err)
		return 1
	}
	if eng != nil {
		defer eng.Close()
	}

	var session *settle.Session
	session, err = settle.Mount(sch, settle.Config{
		Values:     hostValues,
		OnChange:   saveFunc(opts, func() *settle.Session { return session }),
		OnValidate: validateFunc(eng),
		OnAction:   actionFunc(eng, func() *settle.Session { return session }),
		Logger:     logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer session.Close()

	if opts.Watch && opts.ValuesPath != "" {
		w, err := watch.New(watch.WithLogger(logger.WithComponent("watch")))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: start watcher: %v\n", err)
			return 1
		}
		defer w.Close()
		w.OnChange(func(ev watch.Event) {
			loaded, err := loader.LoadValues(ev.Path)
			if err != nil {
				logger.Warn("reload values: %v", err)
				return
			}
			session.UpdateValues(loaded)
		})
		if err := w.Watch(opts.ValuesPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: watch values: %v\n", err)
			return 1
		}
	}

	screen, err := panel.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: open terminal: %v\n", err)
		return 1
	}

	p := panel.New(screen, session.Store(), panel.WithLogger(logger.WithComponent("panel")))

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		p.Close()
	}()

	if err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func loadSchema(opts options) (*schema.Schema, error) {
	if opts.SchemaPath != "" {
		return loader.LoadSchema(opts.SchemaPath)
	}
	return schema.Parse(demoSchema)
}

// loadScript builds the Lua engine. With no -script flag the embedded
// demo script runs, but only alongside the embedded schema its function
// names were written for.
func loadScript(opts options, logger *logging.Logger) (*script.Engine, error) {
	source := ""
	if opts.ScriptPath != "" {
		data, err := os.ReadFile(opts.ScriptPath)
		if err != nil {
			return nil, err
		}
		source = string(data)
	} else if opts.SchemaPath == "" {
		source = demoScript
	}
	if source == "" {
		return nil, nil
	}

	eng := script.NewEngine(script.WithLogger(logger.WithComponent("script")))
	if err := eng.Load(source); err != nil {
		eng.Close()
		return nil, err
	}
	return eng, nil
}

// scriptName maps a setting key to the Lua function that handles it.
// Dots are not valid in Lua identifiers, so "net.proxyHost" dispatches
// to validate_net_proxyHost.
func scriptName(prefix, key string) string {
	return prefix + "_" + strings.ReplaceAll(key, ".", "_")
}

func validateFunc(eng *script.Engine) store.ValidateFunc {
	if eng == nil {
		return nil
	}
	return func(ctx context.Context, key string, value any) (string, error) {
		name := scriptName("validate", key)
		if !eng.Has(name) {
			return "", nil
		}
		return eng.Validator(name)(ctx, key, value)
	}
}

func actionFunc(eng *script.Engine, session func() *settle.Session) store.ActionFunc {
	return func(key string, payload any) store.Pending {
		if eng != nil {
			if name := scriptName("action", key); eng.Has(name) {
				p := eng.Action(name)(key, payload)
				if key == "app.resetAll" {
					return resetAfter(p, session())
				}
				return p
			}
		}
		if key == "app.resetAll" {
			session().UpdateValues(nil)
		}
		return nil
	}
}

// resetAfter chains the values reset behind the script action so the
// loading indicator covers both.
func resetAfter(p store.Pending, s *settle.Session) store.Pending {
	return store.Async(func() error {
		if p != nil {
			if err := <-p; err != nil {
				return err
			}
		}
		s.UpdateValues(nil)
		return nil
	})
}

// saveFunc persists the full value set to the -values file after each
// write. Without a values file, writes settle synchronously and show no
// save indicator.
func saveFunc(opts options, session func() *settle.Session) store.ChangeFunc {
	if opts.ValuesPath == "" {
		return nil
	}
	return func(key string, value any) store.Pending {
		return store.Async(func() error {
			// Small delay so the saving indicator is visible.
			time.Sleep(300 * time.Millisecond)
			snap := session().Store().State()
			data, err := marshalValues(opts.ValuesPath, values.Unflatten(snap.Values))
			if err != nil {
				return err
			}
			return os.WriteFile(opts.ValuesPath, data, 0o644)
		})
	}
}

// marshalValues encodes in the format the values file already uses.
func marshalValues(path string, nested map[string]any) ([]byte, error) {
	switch filepath.Ext(path) {
	case ".toml":
		return toml.Marshal(nested)
	case ".yaml", ".yml":
		return yaml.Marshal(nested)
	default:
		data, err := json.MarshalIndent(nested, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
}

func parseFlags() options {
	var opts options
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.SchemaPath, "schema", "", "Path to a schema file (json, toml, yaml)")
	flag.StringVar(&opts.SchemaPath, "s", "", "Path to a schema file (shorthand)")
	flag.StringVar(&opts.ValuesPath, "values", "", "Path to a values file; written back on change")
	flag.StringVar(&opts.ScriptPath, "script", "", "Path to a Lua script with validators and actions")
	flag.BoolVar(&opts.Watch, "watch", false, "Reload the values file when it changes on disk")
	flag.StringVar(&opts.LogPath, "log", "", "Append logs to this file (default: logging off)")
	flag.StringVar(&opts.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Settle - schema-driven settings panel\n\n")
		fmt.Fprintf(os.Stderr, "Usage: settle [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  settle                               Run the built-in demo\n")
		fmt.Fprintf(os.Stderr, "  settle -s app.json -values cfg.toml  Edit cfg.toml against app.json\n")
		fmt.Fprintf(os.Stderr, "  settle -s app.json -watch -values cfg.toml\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}
	if showVersion {
		fmt.Printf("Settle %s (%s)\n", version, commit)
		os.Exit(0)
	}

	switch opts.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q\n", opts.LogLevel)
		os.Exit(1)
	}

	return opts
}
