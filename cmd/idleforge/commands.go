package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/MJE43/idleforge/internal/bignum"
	"github.com/MJE43/idleforge/internal/blueprint"
	"github.com/MJE43/idleforge/internal/export"
	"github.com/MJE43/idleforge/internal/formula"
	"github.com/MJE43/idleforge/internal/runtime"
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func loadBlueprint(path string) (*blueprint.GameBlueprint, error) {
	if path == "" {
		return nil, errors.New("-in is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	bp, err := blueprint.Decode(data)
	if err != nil {
		return nil, err
	}
	if err := bp.Validate(); err != nil {
		return nil, err
	}
	return bp, nil
}

func runExport(args []string, stdout io.Writer) error {
	fs := newFlagSet("export")
	in := fs.String("in", "", "blueprint JSON file")
	out := fs.String("out", "", "output file (default: derived from the title, - for stdout)")
	compress := fs.Bool("brotli", false, "write a brotli-compressed document")
	if err := fs.Parse(args); err != nil {
		return err
	}

	bp, err := loadBlueprint(*in)
	if err != nil {
		return err
	}
	exp, err := export.New(log.New(io.Discard, "", 0))
	if err != nil {
		return err
	}
	art, err := exp.Render(bp)
	if err != nil {
		return err
	}

	body := art.HTML
	path := *out
	if path == "" {
		path = art.Filename
	}
	if *compress {
		if body, err = export.Compress(body); err != nil {
			return err
		}
		if *out == "" {
			path += ".br"
		}
	}
	if err := writeOut(path, body, stdout); err != nil {
		return err
	}
	if path != "-" {
		fmt.Fprintf(stdout, "wrote %s (%d bytes)\n", path, len(body))
	}
	return nil
}

// simulation is what simulate prints.
type simulation struct {
	Purchases map[string]int   `json:"purchases"`
	Fired     map[string]int   `json:"automations,omitempty"`
	Overview  runtime.Overview `json:"overview"`
}

func runSimulate(args []string, stdout io.Writer) error {
	fs := newFlagSet("simulate")
	in := fs.String("in", "", "blueprint JSON file")
	ticks := fs.Int("ticks", 100, "ticks to run")
	buy := fs.String("buy", "", "comma-separated generator ids to buy once per tick when affordable")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ticks < 0 {
		return fmt.Errorf("-ticks must not be negative")
	}

	bp, err := loadBlueprint(*in)
	if err != nil {
		return err
	}
	var targets []string
	for _, id := range strings.Split(*buy, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if !bp.HasGenerator(id) {
			return fmt.Errorf("%w: generator %q", blueprint.ErrUnknownReference, id)
		}
		targets = append(targets, id)
	}

	st := runtime.NewState(bp)
	result := simulation{Purchases: make(map[string]int), Fired: make(map[string]int)}
	for i := 0; i < *ticks; i++ {
		for _, id := range targets {
			if runtime.PurchaseGenerator(bp, st, id) {
				result.Purchases[id]++
			}
		}
		for _, id := range runtime.Step(bp, st) {
			result.Fired[id]++
		}
	}
	result.Overview = runtime.Inspect(bp, st)

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func runEval(args []string, stdout io.Writer) error {
	fs := newFlagSet("eval")
	raw := fs.String("formula", "", `formula JSON, e.g. {"steps":[{"type":"constant","value":"2","operation":"set"}]}`)
	level := fs.String("level", "0", "owner generator level, read by generator_level steps with an empty value")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *raw == "" {
		return errors.New("-formula is required")
	}

	var f formula.Formula
	if err := json.Unmarshal([]byte(*raw), &f); err != nil {
		return fmt.Errorf("parse formula: %w", err)
	}
	self, err := bignum.Parse(*level)
	if err != nil {
		return fmt.Errorf("parse level: %w", err)
	}

	value := formula.Evaluate(f, formula.Vars{Self: self})
	fmt.Fprintf(stdout, "%s = %s\n", formula.Describe(f), value.Format())
	return nil
}
