// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package substitution implements CRAM's SubstitutionMatrix and its
// Histogram builder: a per-reference-base ranking of the other four bases
// by how often a read base substitutes for them, used to encode a
// Substitution feature's BS data series as a 2-bit rank rather than a full
// base.
package substitution

import (
	"sort"

	"github.com/grailbio/base/log"
	"github.com/pkg/errors"

	"github.com/grailbio/cram"
)

// baseOrder is the canonical A<C<G<T<N tie-break order.
var baseOrder = [cram.NumBases]cram.Base{
	cram.BaseA, cram.BaseC, cram.BaseG, cram.BaseT, cram.BaseN,
}

func nonRefBases(ref cram.Base) [cram.NumBases - 1]cram.Base {
	var out [cram.NumBases - 1]cram.Base
	i := 0
	for _, b := range baseOrder {
		if b == ref {
			continue
		}
		out[i] = b
		i++
	}
	return out
}

// Histogram counts (ref_base, read_base) substitution hits.
type Histogram struct {
	counts [cram.NumBases][cram.NumBases]uint64
}

// NewHistogram returns an empty Histogram.
func NewHistogram() *Histogram {
	return &Histogram{}
}

// Hit records one substitution observation: a read base in place of a
// reference base. ref == read is a caller invariant violation, not a data
// error - a true match is never recorded as a substitution - so it panics
// rather than returning an error for a programmer mistake.
func (h *Histogram) Hit(ref, read cram.Base) {
	if ref == read {
		log.Panicf("substitution.Histogram.Hit: ref == read == %v", ref)
	}
	h.counts[ref][read]++
}

// Build ranks, for each reference base, the other four bases by
// descending hit count with a canonical A<C<G<T<N tie-break, producing the
// SubstitutionMatrix a compression header stores.
func (h *Histogram) Build() *Matrix {
	m := &Matrix{}
	for _, ref := range baseOrder {
		candidates := nonRefBases(ref)
		ranked := candidates // copy
		sort.SliceStable(ranked[:], func(i, j int) bool {
			ci, cj := h.counts[ref][ranked[i]], h.counts[ref][ranked[j]]
			if ci != cj {
				return ci > cj
			}
			return ranked[i] < ranked[j]
		})
		m.codes[ref] = ranked
	}
	return m
}

// Matrix is a built SubstitutionMatrix: for each reference base, the other
// four bases ordered by descending observed substitution frequency.
type Matrix struct {
	codes [cram.NumBases][cram.NumBases - 1]cram.Base
}

// Code returns the base at rank (0-3, most frequent first) for ref.
func (m *Matrix) Code(ref cram.Base, rank int) (cram.Base, error) {
	if rank < 0 || rank > 3 {
		return 0, errors.Wrapf(cram.ErrInvalidInput, "substitution rank %d out of range", rank)
	}
	return m.codes[ref][rank], nil
}

// Rank returns the rank (0-3) of substituted within ref's row, or
// cram.ErrInvalidInput if substituted == ref or is not a valid base.
func (m *Matrix) Rank(ref, substituted cram.Base) (int, error) {
	for i, b := range m.codes[ref] {
		if b == substituted {
			return i, nil
		}
	}
	return 0, errors.Wrapf(cram.ErrInvalidInput, "base %v is not a substitution candidate for ref %v", substituted, ref)
}

// Marshal serializes m to CRAM's 5-byte substitution matrix wire form: one
// byte per reference base (in A,C,G,T,N order), each byte packing the four
// ranked non-reference bases as 2-bit indices (MSB first) into that ref's
// canonical 4-base non-reference ordering.
func (m *Matrix) Marshal() []byte {
	buf := make([]byte, cram.NumBases)
	for i, ref := range baseOrder {
		nonRef := nonRefBases(ref)
		var b byte
		for rank := 0; rank < 4; rank++ {
			code := indexWithin(nonRef, m.codes[ref][rank])
			b |= byte(code) << uint((3-rank)*2)
		}
		buf[i] = b
	}
	return buf
}

// Unmarshal parses a 5-byte SubstitutionMatrix.
func Unmarshal(buf []byte) (*Matrix, error) {
	if len(buf) != cram.NumBases {
		return nil, errors.Wrapf(cram.ErrInvalidData, "substitution matrix must be %d bytes, got %d", cram.NumBases, len(buf))
	}
	m := &Matrix{}
	for i, ref := range baseOrder {
		nonRef := nonRefBases(ref)
		b := buf[i]
		for rank := 0; rank < 4; rank++ {
			code := (b >> uint((3-rank)*2)) & 0x3
			m.codes[ref][rank] = nonRef[code]
		}
	}
	return m, nil
}

func indexWithin(bases [cram.NumBases - 1]cram.Base, b cram.Base) int {
	for i, x := range bases {
		if x == b {
			return i
		}
	}
	return 0
}
