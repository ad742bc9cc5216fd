// Package sectors maps securities to sector classifications and produces the
// one-hot indicator block the cross-sectional regression consumes. The
// taxonomy itself is data (GICS-style names from the universe table), not
// math: the encoder only guarantees that each encoded row sums to exactly 1.
package sectors

import (
	"sort"
)

// Classification maps symbol to sector name.
type Classification map[string]string

// Encoder produces one-hot sector indicator rows over a fixed, sorted sector
// ordering.
type Encoder struct {
	classification Classification
	names          []string
	index          map[string]int
}

// NewEncoder builds an encoder over the distinct sectors present in the
// classification, sorted by name.
func NewEncoder(classification Classification) *Encoder {
	seen := make(map[string]bool)
	for _, sector := range classification {
		seen[sector] = true
	}
	names := make([]string, 0, len(seen))
	for s := range seen {
		names = append(names, s)
	}
	sort.Strings(names)

	index := make(map[string]int, len(names))
	for i, s := range names {
		index[s] = i
	}
	return &Encoder{classification: classification, names: names, index: index}
}

// Sectors returns the sector names in column order.
func (e *Encoder) Sectors() []string { return e.names }

// NumSectors returns the width of the indicator block.
func (e *Encoder) NumSectors() int { return len(e.names) }

// Sector returns the sector of a symbol.
func (e *Encoder) Sector(symbol string) (string, bool) {
	s, ok := e.classification[symbol]
	return s, ok
}

// Encode returns the one-hot indicator row for a symbol. The second return
// is false for unclassified symbols, which are excluded from regressions.
func (e *Encoder) Encode(symbol string) ([]float64, bool) {
	sector, ok := e.classification[symbol]
	if !ok {
		return nil, false
	}
	row := make([]float64, len(e.names))
	row[e.index[sector]] = 1
	return row, true
}
