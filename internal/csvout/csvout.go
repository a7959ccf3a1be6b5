// Package csvout writes a per-test CSV bundle (rows per response,
// trace, and energy sample) to a configured base path, using the
// standard library's encoding/csv directly (see DESIGN.md).
package csvout

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mdclyburn/flexbed/internal/observation"
)

// Writer persists one Observation's captured data as three CSV files
// under a base directory, one file per data kind.
type Writer struct {
	baseDir string
}

// New builds a Writer rooted at baseDir. The directory is created on
// first use, not here.
func New(baseDir string) *Writer {
	return &Writer{baseDir: baseDir}
}

func (w *Writer) pathFor(testID, suffix string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s.%s.csv", testID, suffix))
}

// Write persists obs's Responses, Traces, and EnergySamples.
func (w *Writer) Write(obs observation.Observation) error {
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return fmt.Errorf("csvout: creating %s: %w", w.baseDir, err)
	}

	if err := w.writeResponses(obs); err != nil {
		return err
	}
	if err := w.writeTraces(obs); err != nil {
		return err
	}
	return w.writeEnergy(obs)
}

func (w *Writer) writeResponses(obs observation.Observation) error {
	f, err := os.Create(w.pathFor(obs.Test.ID, "responses"))
	if err != nil {
		return fmt.Errorf("csvout: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	if err := cw.Write([]string{"offset_ns", "pin", "signal"}); err != nil {
		return err
	}
	for _, r := range obs.Responses {
		row := []string{
			fmt.Sprintf("%d", r.Offset(obs.Execution.StartedAt).Nanoseconds()),
			fmt.Sprintf("%d", r.Pin),
			r.Output.String(),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return cw.Error()
}

func (w *Writer) writeTraces(obs observation.Observation) error {
	f, err := os.Create(w.pathFor(obs.Test.ID, "traces"))
	if err != nil {
		return fmt.Errorf("csvout: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	if err := cw.Write([]string{"offset_ns", "bytes_hex"}); err != nil {
		return err
	}
	for _, t := range obs.Traces {
		row := []string{
			fmt.Sprintf("%d", t.Offset().Nanoseconds()),
			fmt.Sprintf("%x", t.Data()),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return cw.Error()
}

func (w *Writer) writeEnergy(obs observation.Observation) error {
	f, err := os.Create(w.pathFor(obs.Test.ID, "energy"))
	if err != nil {
		return fmt.Errorf("csvout: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	if err := cw.Write([]string{"meter", "offset_ns", "value_mjs"}); err != nil {
		return err
	}
	for meter, samples := range obs.EnergySamples {
		for _, s := range samples {
			row := []string{
				meter,
				fmt.Sprintf("%d", s.At.Sub(obs.Execution.StartedAt).Nanoseconds()),
				fmt.Sprintf("%f", s.Value),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	return cw.Error()
}
