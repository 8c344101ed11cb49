package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"enroute/internal/layout"
	"enroute/internal/settings"
)

// kvStore is the store the maintenance commands need; *db.KV is one.
type kvStore interface {
	settings.Store
	Keys(ctx context.Context, prefix string) ([]string, error)
}

var errUsage = errors.New("bad arguments, see -h")

// runSettings handles set, unset and get on persisted settings.
func runSettings(ctx context.Context, kv kvStore, args []string, out io.Writer) error {
	switch {
	case args[0] == "set" && len(args) == 3:
		key, value := args[1], args[2]
		if key == "modes" {
			if _, err := settings.ParseModes(value); err != nil {
				return err
			}
		}
		return kv.Set(ctx, settings.Prefix+key, value)
	case args[0] == "unset" && len(args) == 2:
		return kv.Delete(ctx, settings.Prefix+args[1])
	case args[0] == "get" && len(args) == 2:
		v, ok, err := kv.Get(ctx, settings.Prefix+args[1])
		if err != nil {
			return err
		}
		if !ok {
			v = "(unset)"
		}
		fmt.Fprintln(out, v)
		return nil
	case args[0] == "get" && len(args) == 1:
		keys, err := kv.Keys(ctx, settings.Prefix)
		if err != nil {
			return err
		}
		for _, k := range keys {
			if k == layout.GridKey || k == layout.StationKey {
				continue
			}
			v, _, err := kv.Get(ctx, k)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s=%s\n", strings.TrimPrefix(k, settings.Prefix), v)
		}
		return nil
	}
	return errUsage
}

// runLayout edits the stored grid layout, or the station layout with -station.
// Every subcommand but show prints the resulting layout.
func runLayout(ctx context.Context, kv kvStore, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("layout", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	station := fs.Bool("station", false, "edit the station layout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	args = fs.Args()
	if len(args) == 0 {
		return errUsage
	}

	store := layout.NewGridStore(kv)
	if *station {
		store = layout.NewStationStore(kv)
	}

	var (
		cfg layout.LayoutConfig
		err error
	)
	switch args[0] {
	case "show":
		cfg = store.Load(ctx)
	case "reset":
		cfg, err = store.Reset(ctx)
	case "grid":
		if len(args) != 3 {
			return errUsage
		}
		rows, rerr := strconv.Atoi(args[1])
		cols, cerr := strconv.Atoi(args[2])
		if rerr != nil || cerr != nil {
			return fmt.Errorf("grid size must be two integers, got %q %q", args[1], args[2])
		}
		cfg, err = store.Resize(ctx, rows, cols)
	case "pane":
		if len(args) < 3 {
			return errUsage
		}
		updates := make(map[string]string, len(args)-2)
		for _, kvp := range args[2:] {
			k, v, ok := strings.Cut(kvp, "=")
			if !ok || k == "" {
				return fmt.Errorf("expected key=value, got %q", kvp)
			}
			updates[k] = v
		}
		cfg, err = store.UpdatePane(ctx, args[1], updates)
	case "import":
		if len(args) != 2 {
			return errUsage
		}
		cfg, err = importLayout(ctx, store, args[1])
	default:
		return errUsage
	}
	if err != nil {
		return err
	}

	text, err := layout.MarshalYAML(cfg)
	if err != nil {
		return err
	}
	fmt.Fprint(out, text)
	return nil
}

func importLayout(ctx context.Context, store *layout.Store, path string) (layout.LayoutConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return layout.LayoutConfig{}, err
	}
	defer f.Close()
	cfg, err := layout.ImportYAML(f)
	if err != nil {
		return layout.LayoutConfig{}, err
	}
	if err := store.Save(ctx, cfg); err != nil {
		return layout.LayoutConfig{}, err
	}
	return cfg, nil
}
