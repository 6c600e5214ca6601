// Package cities reads city coordinates from text sources.
//
// Two layouts are accepted. The plain layout has one "x y" pair per line.
// The TSPLIB layout (detected by a NODE_COORD_SECTION line) has a header
// followed by "id x y" lines and an optional EOF marker. Lines that do not
// parse are skipped and counted.
package cities

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/cwbudde/tspanneal/internal/tour"
)

var (
	// ErrInputUnavailable is returned when the city source cannot be opened or read.
	ErrInputUnavailable = errors.New("city input unavailable")

	// ErrInsufficientInput is returned when fewer than MinCities cities were parsed.
	ErrInsufficientInput = errors.New("insufficient city input")
)

// MinCities is the smallest city count that forms a tour worth optimizing.
const MinCities = 2

// Set is the result of reading a city source.
type Set struct {
	// Name is the TSPLIB NAME header, or empty for plain input.
	Name string
	// Cities in input order; a city's index is its identity.
	Cities []tour.City
	// Skipped counts lines that did not parse as a city record.
	Skipped int
}

// Load opens path and reads cities from it.
func Load(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputUnavailable, err)
	}
	defer f.Close()

	set, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	slog.Info("Loaded cities", "path", path, "count", len(set.Cities), "skipped", set.Skipped)
	return set, nil
}

// MaxLineLength bounds a single input line. Longer lines are skipped as
// malformed without being buffered whole.
const MaxLineLength = 64 * 1024

// Read parses cities from r. It fails with ErrInputUnavailable on read errors
// and with ErrInsufficientInput when fewer than MinCities records parse.
func Read(r io.Reader) (*Set, error) {
	set := &Set{}
	br := bufio.NewReaderSize(r, MaxLineLength)

	tsplib := false
	inCoords := false
	lineNo := 0

	for {
		raw, tooLong, err := readLine(br)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %v", ErrInputUnavailable, err)
		}
		if err != nil && len(raw) == 0 && !tooLong {
			break
		}
		lineNo++

		if tooLong {
			set.Skipped++
			slog.Debug("Skipping over-long city record", "line", lineNo)
			continue
		}

		line := strings.TrimSpace(string(raw))
		if line == "" {
			continue
		}

		if key, value, ok := headerField(line); ok {
			tsplib = true
			if key == "NAME" {
				set.Name = value
			}
			continue
		}

		switch strings.ToUpper(line) {
		case "NODE_COORD_SECTION":
			tsplib = true
			inCoords = true
			continue
		case "EOF":
			if tsplib {
				return finish(set)
			}
		}

		fields := strings.Fields(line)
		var c tour.City
		var ok bool
		switch {
		case inCoords && len(fields) == 3:
			c, ok = parsePair(fields[1], fields[2])
		case !inCoords && len(fields) == 2:
			c, ok = parsePair(fields[0], fields[1])
		}
		if !ok {
			set.Skipped++
			slog.Debug("Skipping malformed city record", "line", lineNo, "text", line)
			continue
		}
		set.Cities = append(set.Cities, c)
	}

	return finish(set)
}

// readLine returns the next line without its terminator. A line longer than
// the reader's buffer is consumed and reported as tooLong with a nil line.
// At the end of input err is io.EOF, possibly together with a final
// unterminated line.
func readLine(br *bufio.Reader) (line []byte, tooLong bool, err error) {
	for {
		chunk, err := br.ReadSlice('\n')
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			tooLong = true
			continue
		case tooLong:
			return nil, true, err
		case err != nil && len(chunk) == 0:
			return nil, false, err
		}
		return bytes.TrimRight(chunk, "\r\n"), false, err
	}
}

func finish(set *Set) (*Set, error) {
	if len(set.Cities) < MinCities {
		return nil, fmt.Errorf("%w: parsed %d cities, need at least %d", ErrInsufficientInput, len(set.Cities), MinCities)
	}
	return set, nil
}

// headerField recognizes TSPLIB specification lines such as "NAME : xqf131".
func headerField(line string) (key, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return "", "", false
	}
	key = strings.ToUpper(strings.TrimSpace(line[:idx]))
	switch key {
	case "NAME", "TYPE", "COMMENT", "DIMENSION", "EDGE_WEIGHT_TYPE", "CAPACITY", "NODE_COORD_TYPE", "DISPLAY_DATA_TYPE":
		return key, strings.TrimSpace(line[idx+1:]), true
	}
	return "", "", false
}

func parsePair(xs, ys string) (tour.City, bool) {
	x, ok := parseCoord(xs)
	if !ok {
		return tour.City{}, false
	}
	y, ok := parseCoord(ys)
	if !ok {
		return tour.City{}, false
	}
	return tour.City{X: x, Y: y}, true
}

// parseCoord accepts finite numbers only; NaN and infinities are malformed.
func parseCoord(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
