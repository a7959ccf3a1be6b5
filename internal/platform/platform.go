// Package platform declares the DUT software-management contract the
// executor drives during reconfiguration: loading/unloading
// applications and rebuilding the DUT image against a requested set of
// trace points. Concrete platform tooling (the actual build/flash
// pipeline) lives in other packages, such as internal/tockplatform; this
// package only fixes the interface and the Spec persistence format a
// platform implementation publishes back.
package platform

import (
	"encoding/json"
	"fmt"
	"io"
)

// Support is the DUT platform-management contract.
type Support interface {
	// Load builds/installs the named application onto the DUT.
	Load(appID string) error
	// Unload removes the named application from the DUT.
	Unload(appID string) error
	// Loaded reports the set of currently-loaded application IDs.
	Loaded() map[string]struct{}
	// Reconfigure (re)builds and flashes the DUT against the requested
	// trace points, returning the id assignment it flashed.
	Reconfigure(tracePoints []string) (Spec, error)
}

// TracePoint names one symbolic DUT hook and the u16 id a reconfigure
// assigned it.
type TracePoint struct {
	Name  string `json:"name"`
	Value uint16 `json:"value"`
}

// Spec is the trace-point id assignment a Reconfigure call produced,
// persisted as JSON with a version tag for forward compatibility.
type Spec struct {
	Version     int          `json:"_version"`
	TracePoints []TracePoint `json:"trace-points"`
}

// IDBitLength returns the smallest p in [1,15] such that 2^p exceeds
// the number of declared trace points — the number of bits needed to
// tag a trace-point id inside a parallel-trace encoding, for platforms
// that multiplex trace points onto a single wide channel rather than
// one UART per point.
func (s Spec) IDBitLength() int {
	n := len(s.TracePoints)
	for p := 1; p < 15; p++ {
		if (1 << uint(p)) > n {
			return p
		}
	}
	return 15
}

// WriteJSON persists the Spec in the documented format.
func (s Spec) WriteJSON(w io.Writer) error {
	if s.Version == 0 {
		s.Version = 1
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// ReadSpec loads a persisted Spec, validating its version tag.
func ReadSpec(r io.Reader) (Spec, error) {
	var s Spec
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return Spec{}, fmt.Errorf("platform: decoding spec: %w", err)
	}
	if s.Version != 1 {
		return Spec{}, fmt.Errorf("platform: unsupported spec version %d", s.Version)
	}
	return s, nil
}
