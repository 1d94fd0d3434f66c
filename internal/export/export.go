// Package export renders a blueprint into a single self-contained HTML
// document that plays the game in a browser.
package export

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/dop251/goja"

	"github.com/MJE43/idleforge/internal/blueprint"
)

//go:embed assets/index.html assets/style.css assets/engine.js
var assets embed.FS

const (
	titlePlaceholder     = "{{GAME_TITLE}}"
	cssPlaceholder       = "/* {{CSS_PLACEHOLDER}} */"
	blueprintPlaceholder = "/* {{BLUEPRINT_PLACEHOLDER}} */"
	enginePlaceholder    = "/* {{ENGINE_JS_PLACEHOLDER}} */"

	checkTimeout = 2 * time.Second

	// CacheTTL is how long a rendered artifact stays cached.
	CacheTTL = 10 * time.Minute
)

// Artifact is a rendered game.
type Artifact struct {
	Filename string
	HTML     []byte
	Hash     string
}

// Exporter renders blueprints and caches the results by content hash.
type Exporter struct {
	template string
	css      string
	engine   string
	program  *goja.Program
	cache    Cache
	logger   *log.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithCache replaces the in-process artifact cache.
func WithCache(c Cache) Option {
	return func(e *Exporter) {
		if c != nil {
			e.cache = c
		}
	}
}

// New loads the embedded assets and compiles the runtime script once.
func New(logger *log.Logger, opts ...Option) (*Exporter, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	read := func(name string) (string, error) {
		b, err := assets.ReadFile("assets/" + name)
		if err != nil {
			return "", fmt.Errorf("read asset %s: %w", name, err)
		}
		return string(b), nil
	}

	tmpl, err := read("index.html")
	if err != nil {
		return nil, err
	}
	css, err := read("style.css")
	if err != nil {
		return nil, err
	}
	engine, err := read("engine.js")
	if err != nil {
		return nil, err
	}
	for _, p := range []string{titlePlaceholder, cssPlaceholder, blueprintPlaceholder, enginePlaceholder} {
		if !strings.Contains(tmpl, p) {
			return nil, fmt.Errorf("template is missing placeholder %q", p)
		}
	}

	program, err := goja.Compile("engine.js", engine, true)
	if err != nil {
		return nil, fmt.Errorf("compile runtime script: %w", err)
	}

	e := &Exporter{
		template: tmpl,
		css:      css,
		engine:   engine,
		program:  program,
		cache:    NewMemoryCache(CacheTTL),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Close releases the cache when it holds connections.
func (e *Exporter) Close() error {
	if c, ok := e.cache.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Render validates bp and produces the playable document. The blueprint is
// never modified.
func (e *Exporter) Render(bp *blueprint.GameBlueprint) (*Artifact, error) {
	if bp == nil {
		return nil, fmt.Errorf("%w: nil blueprint", blueprint.ErrInvalidValue)
	}
	if err := bp.Validate(); err != nil {
		return nil, err
	}
	snapshot := bp.Clone()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("serialize blueprint: %w", err)
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	if cached, ok := e.cache.Get(hash); ok {
		e.logger.Printf("export_cache_hit hash=%s", hash[:12])
		return cached, nil
	}

	if err := e.check(data); err != nil {
		e.logger.Printf("export_check_failed hash=%s error=%v", hash[:12], err)
		return nil, err
	}

	title := snapshot.GameTitle
	if strings.TrimSpace(title) == "" {
		title = blueprint.DefaultTitle
	}
	r := strings.NewReplacer(
		titlePlaceholder, html.EscapeString(title),
		cssPlaceholder, e.css,
		blueprintPlaceholder, embedJSON(data),
		enginePlaceholder, e.engine,
	)
	art := &Artifact{
		Filename: Filename(title),
		HTML:     []byte(r.Replace(e.template)),
		Hash:     hash,
	}
	e.cache.Set(hash, art)
	e.logger.Printf("export_rendered title=%q bytes=%d hash=%s", title, len(art.HTML), hash[:12])
	return art, nil
}

// embedJSON makes serialized JSON safe inside a script element.
func embedJSON(data []byte) string {
	return strings.ReplaceAll(string(data), "</", `<\/`)
}

// check confirms that the embedded blueprint parses in a JavaScript runtime
// and that the runtime script itself loaded. The browser globals are stubbed
// so only syntax and data are exercised.
func (e *Exporter) check(data []byte) error {
	vm := goja.New()
	if err := vm.Set("__blueprint", embedJSON(data)); err != nil {
		return err
	}
	return runWithTimeout(vm, checkTimeout, func() error {
		if _, err := vm.RunString(browserStubs); err != nil {
			return fmt.Errorf("install stubs: %w", err)
		}
		if _, err := vm.RunProgram(e.program); err != nil {
			return fmt.Errorf("runtime script failed to load: %w", err)
		}
		if app := vm.Get("__app"); app == nil || goja.IsUndefined(app) {
			return fmt.Errorf("runtime script did not create an app")
		}
		v, err := vm.RunString(`
			(function () {
				var bp = JSON.parse(__blueprint);
				if (!bp || !Array.isArray(bp.resources) || !Array.isArray(bp.generators)) {
					throw new Error("blueprint is missing resources or generators");
				}
				return bp.generators.length;
			})()`)
		if err != nil {
			return fmt.Errorf("blueprint does not parse as JSON: %w", err)
		}
		if v.ToInteger() < 0 {
			return fmt.Errorf("unexpected generator count %d", v.ToInteger())
		}
		return nil
	})
}

const browserStubs = `
var __app;
var Decimal = function (v) { this.value = v; };
var Vue = {
	createApp: function (opts) { __app = opts; return { mount: function () {} }; },
	ref: function (v) { return { value: v }; },
	computed: function (fn) { return { get value() { return fn(); } }; },
	onMounted: function () {}
};
`

func runWithTimeout(vm *goja.Runtime, timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		vm.Interrupt("export check timeout")
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("export check timed out: %w", err)
			}
			return fmt.Errorf("export check timed out")
		case <-time.After(200 * time.Millisecond):
			return fmt.Errorf("export check timed out")
		}
	}
}

// Compress returns a brotli stream of doc.
func Compress(doc []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.BestCompression)
	if _, err := w.Write(doc); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	return io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Filename turns a game title into a download name such as "my_game.html".
func Filename(title string) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(title), "_"), "_")
	if slug == "" {
		slug = "idle_game"
	}
	return slug + ".html"
}
