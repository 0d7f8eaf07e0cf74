// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package dsem implements CRAM's DataSeriesEncodingMap: the closed,
// two-letter-keyed vocabulary of data series a compression header assigns
// an Encoding to, and that package cram/record drives a record through.
package dsem

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/grailbio/cram"
	"github.com/grailbio/cram/codec"
	"github.com/grailbio/cram/itf8"
)

// Key names a data series by its two-letter CRAM tag.
type Key string

// The closed data series vocabulary. TC and TN are reserved: older CRAM
// writers emitted them for a tag-count/tag-name scheme later revisions
// made obsolete; a reader accepts and discards them.
const (
	BF Key = "BF" // BAM bit Flags
	CF Key = "CF" // Compression bit Flags
	RI Key = "RI" // Reference ID
	RL Key = "RL" // Read Length
	AP Key = "AP" // In-seq Positions
	RG Key = "RG" // Read Group
	RN Key = "RN" // Read Name
	MF Key = "MF" // Mate bit Flags
	NS Key = "NS" // mate's reference sequence id (Next fragment reference Sequence id)
	NP Key = "NP" // Next fragment alignment start Position
	TS Key = "TS" // Template Size
	NF Key = "NF" // distance to Next Fragment
	TL Key = "TL" // Tag Line index
	FN Key = "FN" // number of read Features
	FC Key = "FC" // Feature Code
	FP Key = "FP" // Feature Position
	DL Key = "DL" // Deletion Length
	BB Key = "BB" // stretch of Bases
	QQ Key = "QQ" // stretch of Quality scores
	BS Key = "BS" // Base Substitution code
	IN Key = "IN" // INsertion
	RS Key = "RS" // Reference Skip length
	PD Key = "PD" // PaDding length
	HC Key = "HC" // Hard Clip length
	SC Key = "SC" // Soft Clip bases
	MQ Key = "MQ" // Mapping Quality
	BA Key = "BA" // Base
	QS Key = "QS" // Quality Score
	TC Key = "TC" // reserved: tag count (obsolete)
	TN Key = "TN" // reserved: tag name/type (obsolete)
)

// reservedKeys are accepted on read and discarded: a real Encoding, if
// present, is simply never consulted.
var reservedKeys = map[Key]bool{TC: true, TN: true}

var knownKeys = map[Key]bool{
	BF: true, CF: true, RI: true, RL: true, AP: true, RG: true, RN: true,
	MF: true, NS: true, NP: true, TS: true, NF: true, TL: true, FN: true,
	FC: true, FP: true, DL: true, BB: true, QQ: true, BS: true, IN: true,
	RS: true, PD: true, HC: true, SC: true, MQ: true, BA: true, QS: true,
	TC: true, TN: true,
}

// Map is a DataSeriesEncodingMap: one Encoding per data series actually in
// use by the slice being read or written.
type Map struct {
	entries map[Key]codec.Encoding
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{entries: make(map[Key]codec.Encoding)}
}

// Set assigns e as k's Encoding.
func (m *Map) Set(k Key, e codec.Encoding) {
	m.entries[k] = e
}

// Get returns the Encoding for k, or cram.ErrMissingDataSeriesEncoding if
// k has none. Every data series a record touches must have an Encoding;
// the record codec surfaces the error at point-of-use since the required
// set depends on the record's flags.
func (m *Map) Get(k Key) (codec.Encoding, error) {
	e, ok := m.entries[k]
	if !ok {
		return codec.Encoding{}, errors.Wrapf(cram.ErrMissingDataSeriesEncoding, "data series %q", k)
	}
	return e, nil
}

// Has reports whether k has an assigned Encoding.
func (m *Map) Has(k Key) bool {
	_, ok := m.entries[k]
	return ok
}

// Marshal serializes m to its wire form: itf8(total_len) itf8(count)
// count*(key[2] encoding_descriptor).
func (m *Map) Marshal() []byte {
	keys := make([]Key, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var body []byte
	body = itf8.PutInt32(body, int32(len(keys)))
	for _, k := range keys {
		e := m.entries[k]
		body = append(body, k[0], k[1])
		body = e.WriteDescriptor(body)
	}
	out := itf8.PutInt32(nil, int32(len(body)))
	return append(out, body...)
}

// Unmarshal parses a DataSeriesEncodingMap from the front of buf, returning
// the Map and the number of bytes consumed.
func Unmarshal(buf []byte) (*Map, int, error) {
	totalLen, n0, err := itf8.GetInt32(buf)
	if err != nil {
		return nil, 0, errors.Wrap(err, "data series encoding map total_len")
	}
	if totalLen < 0 || n0+int(totalLen) > len(buf) {
		return nil, 0, errors.Wrap(cram.ErrInvalidData, "data series encoding map truncated")
	}
	body := buf[n0 : n0+int(totalLen)]

	count, n1, err := itf8.GetInt32(body)
	if err != nil {
		return nil, 0, errors.Wrap(err, "data series encoding map count")
	}
	m := NewMap()
	pos := n1
	for i := int32(0); i < count; i++ {
		if pos+2 > len(body) {
			return nil, 0, errors.Wrap(cram.ErrInvalidData, "data series encoding map key truncated")
		}
		key := Key([]byte{body[pos], body[pos+1]})
		pos += 2
		if !knownKeys[key] {
			return nil, 0, errors.Wrapf(cram.ErrInvalidData, "unknown data series %q", key)
		}
		e, n, err := codec.ReadDescriptor(body[pos:])
		if err != nil {
			return nil, 0, errors.Wrapf(err, "data series %q encoding", key)
		}
		pos += n
		if reservedKeys[key] {
			continue
		}
		m.entries[key] = e
	}
	return m, n0 + int(totalLen), nil
}
