// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package aac

import (
	"bytes"
	"io"

	"github.com/grailbio/cram"
)

// Model is an order-0 adaptive frequency model over the byte alphabet
// [0, maxSym]. Symbols start with frequency 1 each; each decode/encode
// bumps the chosen symbol's frequency by 16 and renormalizes (halving
// every frequency) once the total exceeds (1<<16)-17; a symbol that
// overtakes its left neighbor in frequency is swapped one slot toward
// the front (a move-to-front-by-one heuristic, not a full MTF).
type Model struct {
	totalFreq uint32
	symbols   []byte
	freqs     []uint32
}

// NewModel returns a Model over the alphabet [0, maxSym].
func NewModel(maxSym byte) *Model {
	numSym := int(maxSym) + 1
	m := &Model{
		totalFreq: uint32(maxSym) + 1,
		symbols:   make([]byte, numSym),
		freqs:     make([]uint32, numSym),
	}
	for i := range m.symbols {
		m.symbols[i] = byte(i)
		m.freqs[i] = 1
	}
	return m
}

func (m *Model) renormalize() {
	var total uint32
	for i := range m.freqs {
		m.freqs[i] -= m.freqs[i] / 2
		total += m.freqs[i]
	}
	m.totalFreq = total
}

func (m *Model) bumpAndMaybeSwap(x int) {
	m.freqs[x] += 16
	m.totalFreq += 16
	if m.totalFreq > (1<<16)-17 {
		m.renormalize()
	}
	if x > 0 && m.freqs[x] > m.freqs[x-1] {
		m.freqs[x], m.freqs[x-1] = m.freqs[x-1], m.freqs[x]
		m.symbols[x], m.symbols[x-1] = m.symbols[x-1], m.symbols[x]
	}
}

// Encode writes sym through e using m's current frequency table, then
// updates m exactly as Decode would for the same symbol.
func (m *Model) Encode(e *RangeEncoder, sym byte) error {
	x := -1
	for i, s := range m.symbols {
		if s == sym {
			x = i
			break
		}
	}
	if x < 0 {
		return cram.ErrInvalidInput
	}
	var acc uint32
	for i := 0; i < x; i++ {
		acc += m.freqs[i]
	}
	if err := e.EncodeFreq(acc, m.freqs[x], m.totalFreq); err != nil {
		return err
	}
	m.bumpAndMaybeSwap(x)
	return nil
}

// Decode reads one symbol through d using m's current frequency table,
// then updates m.
func (m *Model) Decode(d *RangeDecoder) (byte, error) {
	freq := d.GetFreq(m.totalFreq)

	var acc uint32
	x := 0
	for acc+m.freqs[x] <= freq {
		acc += m.freqs[x]
		x++
	}

	if err := d.Decode(acc, m.freqs[x]); err != nil {
		return 0, err
	}

	sym := m.symbols[x]
	m.bumpAndMaybeSwap(x)
	return sym, nil
}

// EncodeBytes range-codes data through a single order-0 Model over
// [0, maxSym], returning the compressed bytes. This is the whole-block
// convenience form a block's adaptive-arithmetic compression method uses.
func EncodeBytes(data []byte, maxSym byte) ([]byte, error) {
	var buf bytes.Buffer
	enc := NewRangeEncoder(&buf)
	m := NewModel(maxSym)
	for _, b := range data {
		if err := m.Encode(enc, b); err != nil {
			return nil, err
		}
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeBytes is the inverse of EncodeBytes: it decodes exactly n symbols.
func DecodeBytes(data []byte, n int, maxSym byte) ([]byte, error) {
	r := bytes.NewReader(data)
	dec, err := NewRangeDecoder(r)
	if err != nil {
		return nil, err
	}
	m := NewModel(maxSym)
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		b, err := m.Decode(dec)
		if err != nil {
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}
