// Package tail reconstructs the most recent samples of a session log by
// reading it backward from the end. The log only ever grows, so reads need
// no coordination with the writer: a stale, shorter size is still a valid
// prefix of the file.
package tail

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
)

const (
	// DefaultChunkSize is the backward read granularity.
	DefaultChunkSize = 4096
	// DefaultMaxLineLen bounds a single record. Longer lines are skipped.
	DefaultMaxLineLen = 1024
	// DefaultFullScale is the exclusive upper bound of a valid sample.
	DefaultFullScale = 1024.0
)

const header = "data"

// Sample is one parsed record. Rank 0 is the newest sample.
type Sample struct {
	Value float64
	Rank  int
}

// Sampler reads the tail of a growing log. The zero value uses the defaults.
type Sampler struct {
	ChunkSize  int
	MaxLineLen int
	FullScale  float64
	// OnMalformed, when set, is called with each record that is skipped
	// because it does not parse or is out of range.
	OnMalformed func(line string)
}

func (s Sampler) chunkSize() int {
	if s.ChunkSize > 0 {
		return s.ChunkSize
	}
	return DefaultChunkSize
}

func (s Sampler) maxLineLen() int {
	if s.MaxLineLen > 0 {
		return s.MaxLineLen
	}
	return DefaultMaxLineLen
}

func (s Sampler) fullScale() float64 {
	if s.FullScale > 0 {
		return s.FullScale
	}
	return DefaultFullScale
}

// Sample examines the last w newline-terminated records of the first size
// bytes of r and returns the ones that parse, most recent last.
//
// A trailing record without its newline is still being written and is
// ignored. Malformed records take part in the window of w but are omitted
// from the result. A short read ends the scan without error.
func (s Sampler) Sample(r io.ReaderAt, size int64, w int) ([]Sample, error) {
	if w <= 0 || size <= 0 {
		return nil, nil
	}
	var (
		chunk      = int64(s.chunkSize())
		maxLine    = s.maxLineLen()
		pos        = size
		carry      []byte // bytes of a record whose start has not been read yet
		terminated bool   // carry is followed by a newline
		skipping   bool   // carry belongs to an overlong record
		examined   int
		newest     []float64
	)

	record := func(line []byte, first bool) {
		if first && string(bytes.TrimSpace(line)) == header {
			return
		}
		examined++
		if v, ok := s.parse(line); ok {
			newest = append(newest, v)
		} else if s.OnMalformed != nil {
			s.OnMalformed(string(line))
		}
	}

	for pos > 0 && examined < w {
		n := min(chunk, pos)
		pos -= n
		buf := make([]byte, n, n+int64(len(carry)))
		if read, _ := r.ReadAt(buf, pos); int64(read) < n {
			// The file shrank or vanished under us; keep what we have.
			carry, terminated = nil, false
			break
		}
		buf = append(buf, carry...)

		for examined < w {
			i := bytes.LastIndexByte(buf, '\n')
			if i < 0 {
				break
			}
			line := buf[i+1:]
			switch {
			case skipping:
				skipping = false
			case terminated:
				record(line, false)
			}
			terminated = true
			buf = buf[:i]
		}
		carry = buf
		if len(carry) > maxLine {
			skipping = true
			carry = nil
		}
	}

	if pos == 0 && terminated && !skipping && examined < w {
		record(carry, true)
	}

	out := make([]Sample, len(newest))
	for i, v := range newest {
		out[len(newest)-1-i] = Sample{Value: v, Rank: i}
	}
	return out, nil
}

func (s Sampler) parse(line []byte) (float64, bool) {
	v, err := strconv.ParseFloat(string(bytes.TrimSpace(line)), 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	if v < 0 || v >= s.fullScale() {
		return 0, false
	}
	return v, true
}

// SampleFile snapshots the size of the file at path and samples its tail.
func (s Sampler) SampleFile(path string, w int) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tail: open %q: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("tail: stat %q: %w", path, err)
	}
	return s.Sample(f, info.Size(), w)
}

// Values returns the sample values in the order given.
func Values(samples []Sample) []float64 {
	vs := make([]float64, len(samples))
	for i, s := range samples {
		vs[i] = s.Value
	}
	return vs
}

// PlotY maps v to a vertical coordinate where 0 is the top of a plot of the
// given height and fullScale maps to 0.
func PlotY(v, height, fullScale float64) float64 {
	return height * (1 - v/fullScale)
}

// PlotX maps a recency rank to a column counting back from the right edge.
// The result is negative when the sample falls off the left edge.
func PlotX(rank, width int) int {
	return width - 1 - rank
}
