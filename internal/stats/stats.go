// Package stats durably records run statistics (spec.md §6: one
// "%.5f" timestamp per completed TX frame in data/tx_result.txt or
// matlab/tx_result.txt) and renders the end-of-run CLI summary table,
// pairing a file-durable record with the internal/monitor live broadcast
// the same way the teacher always pairs recording with streaming
// (recording_loop_linux.go writes to disk while stream_loop_linux.go
// broadcasts the same frames live).
package stats

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
)

// TXWriter appends one timestamp per completed TX frame to a stats file,
// buffered and flushed on Close.
type TXWriter struct {
	f *os.File
	w *bufio.Writer
}

// NewTXWriter opens (creating/truncating) the stats file at path.
func NewTXWriter(path string) (*TXWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("stats: create %s: %w", path, err)
	}
	return &TXWriter{f: f, w: bufio.NewWriter(f)}, nil
}

// RecordFrame writes the timestamp of one completed TX frame.
func (t *TXWriter) RecordFrame(at time.Time) error {
	_, err := fmt.Fprintf(t.w, "%.5f\n", float64(at.UnixNano())/1e9)
	return err
}

// Close flushes and closes the underlying file.
func (t *TXWriter) Close() error {
	if err := t.w.Flush(); err != nil {
		t.f.Close()
		return err
	}
	return t.f.Close()
}

// Summary is the set of run totals the end-of-run table reports.
type Summary struct {
	FramesCompleted int
	DroppedSlots    int
	Elapsed         time.Duration
}

// FramesPerSecond computes throughput, 0 if no time has elapsed.
func (s Summary) FramesPerSecond() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.FramesCompleted) / s.Elapsed.Seconds()
}

// PrintTable renders the run summary as a table to stdout, the same
// end-of-run reporting idiom as the teacher's cli.go printed capture
// summary, realized with the pack's tablewriter dependency instead of
// hand-formatted Printf columns.
func PrintTable(s Summary) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Frames completed", fmt.Sprintf("%d", s.FramesCompleted)})
	table.Append([]string{"Dropped slots", fmt.Sprintf("%d", s.DroppedSlots)})
	table.Append([]string{"Elapsed", s.Elapsed.String()})
	table.Append([]string{"Frames/sec", fmt.Sprintf("%.2f", s.FramesPerSecond())})
	table.Render()
}
