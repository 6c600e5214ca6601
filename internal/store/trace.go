package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const traceFile = "trace.jsonl"

// TraceEntry is one sampled point of an annealing run, stored as a JSON line
// in trace.jsonl.
type TraceEntry struct {
	Iteration int `json:"iteration"`
	// Restart is the index of the independent run that reported the sample.
	Restart int `json:"restart,omitempty"`
	// Cost is the best tour cost of that restart so far.
	Cost        float64   `json:"cost"`
	CurrentCost float64   `json:"currentCost"`
	Temperature float64   `json:"temperature"`
	Timestamp   time.Time `json:"timestamp"`
}

func tracePath(baseDir, jobID string) string {
	return filepath.Join(baseDir, "jobs", jobID, traceFile)
}

// TraceWriter appends entries to a job's trace. Restarts report concurrently,
// so writes are serialized.
type TraceWriter struct {
	mu  sync.Mutex
	f   *os.File
	bw  *bufio.Writer
	enc *json.Encoder
}

// NewTraceWriter opens <baseDir>/jobs/<jobID>/trace.jsonl, truncating it
// unless append is set.
func NewTraceWriter(baseDir, jobID string, append bool) (*TraceWriter, error) {
	path := tracePath(baseDir, jobID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create job directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	bw := bufio.NewWriterSize(f, 64*1024)
	return &TraceWriter{f: f, bw: bw, enc: json.NewEncoder(bw)}, nil
}

// Write buffers one entry. Entries reach the file when the buffer fills or on Close.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.enc.Encode(entry); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	return nil
}

// Close flushes buffered entries and closes the file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	flushErr := tw.bw.Flush()
	closeErr := tw.f.Close()
	if flushErr != nil {
		return fmt.Errorf("failed to flush trace: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close trace file: %w", closeErr)
	}
	return nil
}

// ReadTrace loads every entry of a job's trace in file order. A trace that is
// still being written may end in a partial line; entries up to it are returned.
func ReadTrace(baseDir, jobID string) ([]TraceEntry, error) {
	f, err := os.Open(tracePath(baseDir, jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{JobID: jobID}
		}
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer f.Close()

	entries := []TraceEntry{}
	dec := json.NewDecoder(bufio.NewReader(f))
	for {
		var entry TraceEntry
		err := dec.Decode(&entry)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode trace entry %d: %w", len(entries)+1, err)
		}
		entries = append(entries, entry)
	}
}

// Improvements returns the entries at which the best cost over all restarts
// dropped, in file order. The first entry is always included.
func Improvements(entries []TraceEntry) []TraceEntry {
	var curve []TraceEntry
	for _, e := range entries {
		if len(curve) == 0 || e.Cost < curve[len(curve)-1].Cost {
			curve = append(curve, e)
		}
	}
	return curve
}
