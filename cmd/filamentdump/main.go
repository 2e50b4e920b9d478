// Command filamentdump inspects snapshot files written by the simulation.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"github.com/pthm-cable/filament/filament"
	"github.com/pthm-cable/filament/particles"
	"github.com/pthm-cable/filament/snapshot"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "filamentdump",
		Short:         "Inspect filament snapshot files",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newInfoCmd(), newCSVCmd())
	return root
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info [snapshot...]",
		Short: "Print the header and a summary of each snapshot",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if err := printInfo(cmd.OutOrStdout(), path); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func printInfo(w io.Writer, path string) error {
	f, err := snapshot.LoadFile(path)
	if err != nil {
		return err
	}
	kind := particles.Kind(f.Kind)
	fmt.Fprintf(w, "%s\n", path)
	fmt.Fprintf(w, "  name:      %s\n", f.Name)
	fmt.Fprintf(w, "  kind:      %s\n", kind)
	fmt.Fprintf(w, "  tick:      %d\n", f.Tick)
	fmt.Fprintf(w, "  particles: %d\n", len(f.Particles))
	fmt.Fprintf(w, "  segments:  %d\n", len(f.Segments))

	if kind != particles.KindFilament {
		return nil
	}
	sys, err := filament.FromSnapshot(f)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  %s\n", sys.Describe())
	for i, seg := range f.Segments {
		fmt.Fprintf(w, "  ring %d: %d vertices, circulation %g\n", i, len(seg.Indices), seg.Circulation)
	}
	return nil
}

// segmentRow is one ring vertex in the segment export.
type segmentRow struct {
	Segment     int     `csv:"segment"`
	Slot        int     `csv:"slot"`
	Particle    uint32  `csv:"particle"`
	X           float64 `csv:"x"`
	Y           float64 `csv:"y"`
	Z           float64 `csv:"z"`
	Circulation float64 `csv:"circulation"`
}

func newCSVCmd() *cobra.Command {
	var out string
	var segments bool

	cmd := &cobra.Command{
		Use:   "csv <snapshot>",
		Short: "Export particles, or ring vertices with --segments, as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := snapshot.LoadFile(args[0])
			if err != nil {
				return err
			}

			if out == "" {
				return writeCSV(cmd.OutOrStdout(), f, segments)
			}
			return exportCSV(out, f, segments)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write to file instead of stdout")
	cmd.Flags().BoolVar(&segments, "segments", false, "export one row per ring vertex")
	return cmd
}

// createFile opens export targets.
var createFile = func(name string) (io.WriteCloser, error) { return os.Create(name) }

func writeCSV(w io.Writer, f *snapshot.Frame, segments bool) error {
	if segments {
		return gocsv.Marshal(segmentRows(f), w)
	}
	return gocsv.Marshal(f.Particles, w)
}

// exportCSV writes f to path. A failed close is reported since it may hide
// a failed write.
func exportCSV(path string, f *snapshot.Frame, segments bool) error {
	file, err := createFile(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := writeCSV(file, f, segments); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}

func segmentRows(f *snapshot.Frame) []segmentRow {
	var rows []segmentRow
	for s, seg := range f.Segments {
		for k, idx := range seg.Indices {
			row := segmentRow{Segment: s, Slot: k, Particle: idx, Circulation: seg.Circulation}
			if int(idx) < len(f.Particles) {
				p := f.Particles[idx]
				row.X, row.Y, row.Z = p.X, p.Y, p.Z
			}
			rows = append(rows, row)
		}
	}
	return rows
}
