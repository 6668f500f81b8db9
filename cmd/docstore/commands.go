// Implements the docstore subcommands.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/maruel/docstore/internal/config"
	"github.com/maruel/docstore/internal/docdb"
	dberrors "github.com/maruel/docstore/internal/errors"
	"github.com/maruel/docstore/internal/history"
	"github.com/maruel/docstore/internal/token"
	"github.com/maruel/docstore/internal/watch"
)

// env is the state shared by every command.
type env struct {
	ctx   context.Context
	out   io.Writer
	log   *slog.Logger
	root  string
	cfg   *config.Config
	store *docdb.Store
	repo  *history.Repo
}

type command struct {
	name  string
	args  string
	help  string
	min   int
	max   int
	store bool
	run   func(e *env, args []string) error
}

var commands = []*command{
	{name: "init", help: "create the storage root and its configuration file", run: cmdInit},
	{name: "create", args: "<table> [rules]", help: "create or reset a table; rules is a JSON object of field kinds", min: 1, max: 2, store: true, run: cmdCreate},
	{name: "drop", args: "<table>", help: "delete a table", min: 1, max: 1, store: true, run: cmdDrop},
	{name: "tables", help: "list tables", store: true, run: cmdTables},
	{name: "write", args: "<table> <key> <value>", help: "store a value", min: 3, max: 3, store: true, run: cmdWrite},
	{name: "append", args: "<table> <value>", help: "store a value under a new unique key", min: 2, max: 2, store: true, run: cmdAppend},
	{name: "read", args: "<table> <key>", help: "print a value", min: 2, max: 2, store: true, run: cmdRead},
	{name: "check", args: "<table> <key>", help: "print whether a key is set", min: 2, max: 2, store: true, run: cmdCheck},
	{name: "keys", args: "<table>", help: "list the keys of a table", min: 1, max: 1, store: true, run: cmdKeys},
	{name: "edit", args: "<table> <key> [field] <value>", help: "replace a value or one of its fields", min: 3, max: 4, store: true, run: cmdEdit},
	{name: "remove", args: "<table> <key>", help: "delete a key", min: 2, max: 2, store: true, run: cmdRemove},
	{name: "counters", help: "print the auto-increment counters", store: true, run: cmdCounters},
	{name: "set-counter", args: "<table> <value>", help: "move an auto-increment counter forward", min: 2, max: 2, store: true, run: cmdSetCounter},
	{name: "token", args: "[length]", help: "print a random token", max: 1, run: cmdToken},
	{name: "history", args: "[table] [n]", help: "list recorded changes", max: 2, store: true, run: cmdHistory},
	{name: "show", args: "<commit> <table>", help: "print a table as of a recorded change", min: 2, max: 2, store: true, run: cmdShow},
	{name: "watch", help: "print changes as they happen until interrupted", store: true, run: cmdWatch},
	{name: "version", help: "print version and exit", run: cmdVersion},
}

func usage(fs *flag.FlagSet) func() {
	return func() {
		w := fs.Output()
		_, _ = fmt.Fprintf(w, "usage: docstore [flags] <command> [args]\n\nCommands:\n")
		for _, c := range commands {
			_, _ = fmt.Fprintf(w, "  %-12s %-30s %s\n", c.name, c.args, c.help)
		}
		_, _ = fmt.Fprintf(w, "\nValues are parsed as JSON; anything else is stored as a string.\n\nFlags:\n")
		fs.PrintDefaults()
	}
}

// run parses the global flags and executes one command.
func run(ctx context.Context, args []string, stdout io.Writer, ll *slog.LevelVar) error {
	fs := flag.NewFlagSet("docstore", flag.ContinueOnError)
	root := fs.String("root", ".", "Storage root directory")
	cfgPath := fs.String("config", "", "Configuration file (default <root>/"+config.FileName+")")
	logLevel := fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	alerts := fs.Bool("alerts", false, "Log every mutation at info level")
	hist := fs.Bool("history", false, "Record every mutation in a git repository at the storage root")
	fs.Usage = usage(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("a command is required")
	}
	name, cmdArgs := fs.Arg(0), fs.Args()[1:]
	var cmd *command
	for _, c := range commands {
		if c.name == name {
			cmd = c
			break
		}
	}
	if cmd == nil {
		return fmt.Errorf("unknown command %q", name)
	}
	if len(cmdArgs) < cmd.min || len(cmdArgs) > cmd.max {
		return fmt.Errorf("usage: docstore %s %s", cmd.name, cmd.args)
	}

	if *cfgPath == "" {
		*cfgPath = filepath.Join(*root, config.FileName)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	// Flags explicitly set override the configuration file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "log-level":
			cfg.LogLevel = *logLevel
		case "alerts":
			cfg.Alerts = *alerts
		case "history":
			cfg.History.Enabled = *hist
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}
	if ll != nil {
		if err := setLevel(ll, cfg.LogLevel); err != nil {
			return err
		}
	}

	e := &env{ctx: ctx, out: stdout, log: slog.Default(), root: *root, cfg: cfg}
	if cmd.store {
		if err := e.open(); err != nil {
			return err
		}
	}
	return cmd.run(e, cmdArgs)
}

// open binds the store, and the history when enabled.
func (e *env) open() error {
	if e.cfg.CreateRoot {
		if err := os.MkdirAll(e.root, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
			return fmt.Errorf("failed to create storage root: %w", err)
		}
	}
	opts := &docdb.Options{Logger: e.log, Alerts: e.cfg.Alerts, NoFileLock: !e.cfg.FileLock}
	if e.cfg.History.Enabled {
		// A missing root is reported by the store.
		if fi, err := os.Stat(e.root); err == nil && fi.IsDir() {
			repo, err := history.Open(e.root, e.cfg.History.AuthorName, e.cfg.History.AuthorEmail)
			if err != nil {
				return err
			}
			e.repo = repo
			opts.Committer = repo
		}
	}
	s, err := docdb.Open(e.root, opts)
	if err != nil {
		return err
	}
	e.store = s
	return nil
}

func (e *env) print(v any) error {
	data, err := json.MarshalIndent(v, "", "\t")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintf(e.out, "%s\n", data)
	return err
}

func (e *env) println(s string) error {
	_, err := fmt.Fprintln(e.out, s)
	return err
}

// parseValue returns s as raw JSON when it is valid JSON, else as a string.
func parseValue(s string) any {
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	return s
}

func cmdInit(e *env, _ []string) error {
	if err := os.MkdirAll(e.root, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create storage root: %w", err)
	}
	path := filepath.Join(e.root, config.FileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := e.cfg.Save(path); err != nil {
			return err
		}
		e.log.InfoContext(e.ctx, "Created configuration", "path", path)
	}
	if e.cfg.History.Enabled {
		if _, err := history.Open(e.root, e.cfg.History.AuthorName, e.cfg.History.AuthorEmail); err != nil {
			return err
		}
	}
	return e.println(e.root)
}

func cmdCreate(e *env, args []string) error {
	var rules docdb.Rules
	if len(args) == 2 {
		if err := json.Unmarshal([]byte(args[1]), &rules); err != nil {
			return dberrors.Validation("invalid rules: %v", err)
		}
	}
	return e.store.CreateTable(args[0], rules)
}

func cmdDrop(e *env, args []string) error {
	return e.store.RemoveTable(args[0])
}

func cmdTables(e *env, _ []string) error {
	names, err := e.store.Tables()
	if err != nil {
		return err
	}
	for _, n := range names {
		if err := e.println(n); err != nil {
			return err
		}
	}
	return nil
}

func cmdWrite(e *env, args []string) error {
	v, err := e.store.Write(args[0], args[1], parseValue(args[2]))
	if err != nil {
		return err
	}
	return e.print(v)
}

func cmdAppend(e *env, args []string) error {
	key, v, err := e.store.Append(args[0], parseValue(args[1]))
	if err != nil {
		return err
	}
	return e.print(map[string]any{"key": key, "value": v})
}

func cmdRead(e *env, args []string) error {
	v, ok, err := e.store.Read(args[0], args[1])
	if err != nil {
		return err
	}
	if !ok {
		return dberrors.KeyNotFound(args[0], args[1])
	}
	return e.print(v)
}

func cmdCheck(e *env, args []string) error {
	ok, err := e.store.Check(args[0], args[1])
	if err != nil {
		return err
	}
	return e.println(strconv.FormatBool(ok))
}

func cmdKeys(e *env, args []string) error {
	keys, err := e.store.Keys(args[0])
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := e.println(k); err != nil {
			return err
		}
	}
	return nil
}

func cmdEdit(e *env, args []string) error {
	if len(args) == 4 {
		return e.store.EditField(args[0], args[1], args[2], parseValue(args[3]))
	}
	return e.store.Edit(args[0], args[1], parseValue(args[2]))
}

func cmdRemove(e *env, args []string) error {
	return e.store.Remove(args[0], args[1])
}

func cmdCounters(e *env, _ []string) error {
	m, err := e.store.Counters()
	if err != nil {
		return err
	}
	return e.print(m)
}

func cmdSetCounter(e *env, args []string) error {
	v, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return dberrors.Validation("counter value %q is not an integer", args[1])
	}
	return e.store.SetCounter(args[0], v)
}

func cmdToken(e *env, args []string) error {
	length := e.cfg.Token.Length
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("length %q is not an integer", args[0])
		}
		length = n
	}
	opts, err := e.cfg.Token.Options()
	if err != nil {
		return err
	}
	t, err := token.Generate(length, opts)
	if err != nil {
		return err
	}
	return e.println(t)
}

func (e *env) history() (*history.Repo, error) {
	if e.repo == nil {
		return nil, errors.New("history is not enabled, use -history or set history.enabled")
	}
	return e.repo, nil
}

func cmdHistory(e *env, args []string) error {
	repo, err := e.history()
	if err != nil {
		return err
	}
	path := ""
	if len(args) >= 1 {
		path = args[0] + ".json"
	}
	n := 0
	if len(args) == 2 {
		if n, err = strconv.Atoi(args[1]); err != nil {
			return fmt.Errorf("count %q is not an integer", args[1])
		}
	}
	commits, err := repo.Log(path, n)
	if err != nil {
		return err
	}
	for _, c := range commits {
		line := fmt.Sprintf("%s %s %s", c.Hash[:12], c.When.Format("2006-01-02 15:04:05"), c.Message)
		if err := e.println(line); err != nil {
			return err
		}
	}
	return nil
}

func cmdShow(e *env, args []string) error {
	repo, err := e.history()
	if err != nil {
		return err
	}
	data, err := repo.FileAt(args[0], args[1]+".json")
	if err != nil {
		return err
	}
	_, err = e.out.Write(data)
	return err
}

func cmdWatch(e *env, _ []string) error {
	w, err := watch.New(e.root, &watch.Options{Logger: e.log, Throttle: e.cfg.Watch.Throttle})
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	e.log.InfoContext(e.ctx, "Watching", "root", e.root, "throttle", e.cfg.Watch.Throttle)
	enc := json.NewEncoder(e.out)
	return w.Run(e.ctx, func(ev watch.Event) {
		if err := enc.Encode(ev); err != nil {
			e.log.WarnContext(e.ctx, "Failed to print event", "err", err)
		}
	})
}

func cmdVersion(e *env, _ []string) error {
	printVersion(e.out)
	return nil
}
