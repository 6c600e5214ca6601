// Package report renders an optimized tour for humans and machines.
package report

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/cwbudde/tspanneal/internal/tour"
)

// ErrOutputFailure is returned when the output sink rejects a write.
// Part of the report may already have been written.
var ErrOutputFailure = errors.New("output failure")

// Format selects a rendering.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat maps a flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, FormatJSON:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

// Write renders t and cost to w in the given format.
func Write(w io.Writer, format Format, t tour.Tour, cost float64) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, t, cost)
	default:
		return WriteText(w, t, cost)
	}
}

// WriteText writes the city indices in tour order, each followed by a space,
// then a newline and "Total Cost: <cost>".
func WriteText(w io.Writer, t tour.Tour, cost float64) error {
	bw := bufio.NewWriter(w)
	for _, idx := range t {
		if _, err := bw.WriteString(strconv.Itoa(idx)); err != nil {
			return fmt.Errorf("%w: %v", ErrOutputFailure, err)
		}
		if err := bw.WriteByte(' '); err != nil {
			return fmt.Errorf("%w: %v", ErrOutputFailure, err)
		}
	}
	if _, err := fmt.Fprintf(bw, "\nTotal Cost: %s\n", FormatCost(cost)); err != nil {
		return fmt.Errorf("%w: %v", ErrOutputFailure, err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrOutputFailure, err)
	}
	return nil
}

// Document is the JSON rendering of a result.
type Document struct {
	Tour []int   `json:"tour"`
	Cost float64 `json:"cost"`
}

// WriteJSON writes {"tour": [...], "cost": ...} followed by a newline.
func WriteJSON(w io.Writer, t tour.Tour, cost float64) error {
	doc := Document{Tour: []int(t), Cost: cost}
	if doc.Tour == nil {
		doc.Tour = []int{}
	}
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrOutputFailure, err)
	}
	return nil
}

// FormatCost renders a cost with the shortest representation that round-trips.
func FormatCost(cost float64) string {
	return strconv.FormatFloat(cost, 'g', -1, 64)
}
