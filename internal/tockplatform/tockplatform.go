// Package tockplatform implements platform.Support for the Tock OS
// board target by shelling out to `tockloader` and `make`, the same
// external tools original_source/src/sw/platform.rs's Tock type wraps.
// No board-specific logic beyond a fixed "boards/<name>" source layout
// is assumed.
package tockplatform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/mdclyburn/flexbed/internal/logging"
	"github.com/mdclyburn/flexbed/internal/platform"
)

// Tock drives a Tock OS build/program/load cycle for one board.
type Tock struct {
	mu sync.Mutex

	tockloaderPath string
	sourcePath     string
	board          string
	specPath       string

	loaded map[string]struct{}
	log    *logging.Logger
}

// Config names the external tools and source tree a Tock platform
// needs.
type Config struct {
	TockloaderPath string // path to the tockloader executable
	SourcePath     string // root of the Tock OS source checkout
	Board          string // e.g. "hail"
	SpecPath       string // where reconfigure writes the trace-point spec JSON
}

// New builds a Tock platform support from cfg, defaulting SpecPath to
// a fixed temp-dir path if unset.
func New(cfg Config) *Tock {
	specPath := cfg.SpecPath
	if specPath == "" {
		specPath = filepath.Join(os.TempDir(), "flexbed_trace_spec.json")
	}
	return &Tock{
		tockloaderPath: cfg.TockloaderPath,
		sourcePath:     cfg.SourcePath,
		board:          cfg.Board,
		specPath:       specPath,
		loaded:         make(map[string]struct{}),
		log:            logging.Default().With("tockplatform"),
	}
}

// Load installs the application at appID (a path to a built TAB or
// app binary) via `tockloader install`.
func (t *Tock) Load(appID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	out, err := t.run(t.tockloaderPath, "install", appID)
	if err != nil {
		return fmt.Errorf("tockplatform: tockloader install %s: %w: %s", appID, err, out)
	}
	t.loaded[appID] = struct{}{}
	return nil
}

// Unload removes appID via `tockloader uninstall`, a no-op if it was
// never loaded.
func (t *Tock) Unload(appID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.loaded[appID]; !ok {
		return nil
	}

	out, err := t.run(t.tockloaderPath, "uninstall", appID)
	if err != nil {
		return fmt.Errorf("tockplatform: tockloader uninstall %s: %w: %s", appID, err, out)
	}
	delete(t.loaded, appID)
	return nil
}

// Loaded reports the currently installed application IDs.
func (t *Tock) Loaded() map[string]struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]struct{}, len(t.loaded))
	for k := range t.loaded {
		out[k] = struct{}{}
	}
	return out
}

// Reconfigure assigns trace-point ids, writes the Spec to SpecPath,
// rebuilds the board's image with TRACE_SPEC_PATH pointed at it, and
// programs the board.
func (t *Tock) Reconfigure(tracePoints []string) (platform.Spec, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tps := make([]platform.TracePoint, 0, len(tracePoints))
	for i, name := range tracePoints {
		tps = append(tps, platform.TracePoint{Name: name, Value: uint16(i + 1)})
	}
	spec := platform.Spec{Version: 1, TracePoints: tps}

	f, err := os.Create(t.specPath)
	if err != nil {
		return platform.Spec{}, fmt.Errorf("tockplatform: writing spec to %s: %w", t.specPath, err)
	}
	werr := spec.WriteJSON(f)
	f.Close()
	if werr != nil {
		return platform.Spec{}, fmt.Errorf("tockplatform: encoding spec: %w", werr)
	}

	if err := t.build(); err != nil {
		return platform.Spec{}, err
	}
	if err := t.program(); err != nil {
		return platform.Spec{}, err
	}

	return spec, nil
}

func (t *Tock) boardDir() string {
	return filepath.Join(t.sourcePath, "boards", t.board)
}

func (t *Tock) build() error {
	t.log.Infof("building Tock OS in %s", t.boardDir())

	cmd := exec.Command("make", "-C", t.boardDir())
	cmd.Env = append(os.Environ(),
		"TRACE_SPEC_PATH="+t.specPath,
		"TRACE_VERBOSE=1",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("tockplatform: building %s: %w: %s", t.boardDir(), err, out)
	}
	return nil
}

func (t *Tock) program() error {
	t.log.Infof("programming target from %s", t.boardDir())

	cmd := exec.Command("make", "-C", t.boardDir(), "program")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("tockplatform: programming %s: %w: %s", t.boardDir(), err, out)
	}
	return nil
}

func (t *Tock) run(name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.Bytes(), err
}

// ReadSpec reloads the last-written trace-point spec from SpecPath,
// for callers that need it after a process restart.
func (t *Tock) ReadSpec() (platform.Spec, error) {
	f, err := os.Open(t.specPath)
	if err != nil {
		return platform.Spec{}, fmt.Errorf("tockplatform: opening %s: %w", t.specPath, err)
	}
	defer f.Close()
	var s platform.Spec
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return platform.Spec{}, fmt.Errorf("tockplatform: decoding %s: %w", t.specPath, err)
	}
	return s, nil
}

var _ platform.Support = (*Tock)(nil)
