package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MJE43/idleforge/internal/bignum"
	"github.com/MJE43/idleforge/internal/blueprint"
	"github.com/MJE43/idleforge/internal/export"
)

func writeBlueprint(t *testing.T) string {
	t.Helper()
	bp := blueprint.Default()
	bp.GameTitle = "Tiny Farm"
	bp.Resources = []blueprint.Resource{{ID: "gold", Name: "Gold", InitialAmount: bignum.FromInt(10)}}
	bp.Generators = []blueprint.Generator{{
		ID:             "farm",
		Name:           "Farm",
		OutputResource: "gold",
		BaseProduction: bignum.One,
		BaseCosts:      []blueprint.PurchaseCost{{ResourceID: "gold", Amount: bignum.FromInt(10)}},
	}}
	data, err := blueprint.Encode(bp)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "bp.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunExport(t *testing.T) {
	in := writeBlueprint(t)
	dir := t.TempDir()

	plain := filepath.Join(dir, "game.html")
	var out bytes.Buffer
	if err := runExport([]string{"-in", in, "-out", plain}, &out); err != nil {
		t.Fatalf("runExport failed: %v", err)
	}
	html, err := os.ReadFile(plain)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(html, []byte("<title>Tiny Farm</title>")) {
		t.Error("exported document has the wrong title")
	}

	packed := filepath.Join(dir, "game.html.br")
	if err := runExport([]string{"-in", in, "-out", packed, "-brotli"}, &out); err != nil {
		t.Fatalf("runExport -brotli failed: %v", err)
	}
	data, _ := os.ReadFile(packed)
	unpacked, err := export.Decompress(data)
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if !bytes.Equal(unpacked, html) {
		t.Error("brotli export differs from plain export")
	}

	if err := runExport([]string{"-out", plain}, &out); err == nil {
		t.Error("missing -in accepted")
	}
}

func TestRunSimulate(t *testing.T) {
	in := writeBlueprint(t)

	var out bytes.Buffer
	if err := runSimulate([]string{"-in", in, "-ticks", "30", "-buy", "farm"}, &out); err != nil {
		t.Fatalf("runSimulate failed: %v", err)
	}
	var result simulation
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out.String())
	}
	if result.Overview.Ticks != 30 {
		t.Errorf("ticks = %d, want 30", result.Overview.Ticks)
	}
	if result.Purchases["farm"] == 0 {
		t.Error("farm was never bought")
	}

	err := runSimulate([]string{"-in", in, "-buy", "mine"}, &out)
	if !errors.Is(err, blueprint.ErrUnknownReference) {
		t.Errorf("expected ErrUnknownReference, got %v", err)
	}
}

func TestRunEval(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{
			name: "power of level",
			args: []string{"-formula", `{"steps":[{"type":"constant","value":"2","operation":"set"},{"type":"generator_level","value":"","operation":"power"}]}`, "-level", "3"},
			want: "= 8.00",
		},
		{
			name: "named generator ignores level",
			args: []string{"-formula", `{"steps":[{"type":"constant","value":"2","operation":"set"},{"type":"generator_level","value":"farm","operation":"power"}]}`, "-level", "3"},
			want: "= 1.00",
		},
		{name: "missing formula", args: []string{"-level", "3"}, wantErr: true},
		{name: "bad json", args: []string{"-formula", "{"}, wantErr: true},
		{name: "bad level", args: []string{"-formula", `{"steps":[]}`, "-level", "lots"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := runEval(tt.args, &out)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got output %q", out.String())
				}
				return
			}
			if err != nil {
				t.Fatalf("runEval failed: %v", err)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output %q does not contain %q", out.String(), tt.want)
			}
		})
	}
}
