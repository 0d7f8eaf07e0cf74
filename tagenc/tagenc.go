// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package tagenc implements CRAM's TagEncodingMap and TagIdsDictionary:
// the per-tag Encoding assignment and the dictionary of tag-set "lines" a
// record's TL data series indexes into.
package tagenc

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/grailbio/cram"
	"github.com/grailbio/cram/codec"
	"github.com/grailbio/cram/itf8"
)

// ID packs a tag's two-letter name and one-byte type into a single
// comparable value: (name[0]<<16 | name[1]<<8 | type). The packed form is
// the tag id a compression header keys its per-tag Encodings by.
type ID int32

// Pack builds an ID from a two-letter tag name and SAM aux type byte.
func Pack(name [2]byte, typ byte) ID {
	return ID(int32(name[0])<<16 | int32(name[1])<<8 | int32(typ))
}

// Unpack splits id back into its tag name and type byte.
func (id ID) Unpack() (name [2]byte, typ byte) {
	name[0] = byte(id >> 16)
	name[1] = byte(id >> 8)
	typ = byte(id)
	return
}

// String renders id as "XY:t", e.g. "NM:c".
func (id ID) String() string {
	name, typ := id.Unpack()
	return fmt.Sprintf("%c%c:%c", name[0], name[1], typ)
}

// Map is a TagEncodingMap: one Encoding per (tag name, type) pair a slice's
// records actually carry.
type Map struct {
	entries map[ID]codec.Encoding
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{entries: make(map[ID]codec.Encoding)}
}

// Set assigns e as id's Encoding.
func (m *Map) Set(id ID, e codec.Encoding) {
	m.entries[id] = e
}

// Get returns the Encoding for id, or cram.ErrMissingTagEncoding if absent.
func (m *Map) Get(id ID) (codec.Encoding, error) {
	e, ok := m.entries[id]
	if !ok {
		return codec.Encoding{}, errors.Wrapf(cram.ErrMissingTagEncoding, "tag %s", id)
	}
	return e, nil
}

// Marshal serializes m: itf8(total_len) itf8(count) count*(itf8(tag_id)
// encoding_descriptor).
func (m *Map) Marshal() []byte {
	ids := make([]ID, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var body []byte
	body = itf8.PutInt32(body, int32(len(ids)))
	for _, id := range ids {
		body = itf8.PutInt32(body, int32(id))
		e := m.entries[id]
		body = e.WriteDescriptor(body)
	}
	out := itf8.PutInt32(nil, int32(len(body)))
	return append(out, body...)
}

// Unmarshal parses a TagEncodingMap from the front of buf, returning the
// Map and the number of bytes consumed.
func Unmarshal(buf []byte) (*Map, int, error) {
	totalLen, n0, err := itf8.GetInt32(buf)
	if err != nil {
		return nil, 0, errors.Wrap(err, "tag encoding map total_len")
	}
	if totalLen < 0 || n0+int(totalLen) > len(buf) {
		return nil, 0, errors.Wrap(cram.ErrInvalidData, "tag encoding map truncated")
	}
	body := buf[n0 : n0+int(totalLen)]

	count, n1, err := itf8.GetInt32(body)
	if err != nil {
		return nil, 0, errors.Wrap(err, "tag encoding map count")
	}
	m := NewMap()
	pos := n1
	for i := int32(0); i < count; i++ {
		id, n, err := itf8.GetInt32(body[pos:])
		if err != nil {
			return nil, 0, errors.Wrap(err, "tag encoding map tag_id")
		}
		pos += n
		e, n, err := codec.ReadDescriptor(body[pos:])
		if err != nil {
			return nil, 0, errors.Wrapf(err, "tag %s encoding", ID(id))
		}
		pos += n
		m.entries[ID(id)] = e
	}
	return m, n0 + int(totalLen), nil
}

// Dictionary is the TagIdsDictionary: an ordered list of "lines", each the
// set of tag IDs a group of records carries together. A record's TL data
// series is an index into this list.
type Dictionary struct {
	Lines [][]ID
}

// Line returns the tag set at index tl, or cram.ErrTagLineNotFound if tl is
// out of range.
func (d *Dictionary) Line(tl int32) ([]ID, error) {
	if tl < 0 || int(tl) >= len(d.Lines) {
		return nil, errors.Wrapf(cram.ErrTagLineNotFound, "TL=%d", tl)
	}
	return d.Lines[tl], nil
}

// IndexOf returns the line index matching the exact ordered tag set ids,
// appending a new line if no existing one matches. Slice encoders call
// this once per record to compute its TL value.
func (d *Dictionary) IndexOf(ids []ID) int32 {
	for i, line := range d.Lines {
		if idsEqual(line, ids) {
			return int32(i)
		}
	}
	d.Lines = append(d.Lines, append([]ID(nil), ids...))
	return int32(len(d.Lines) - 1)
}

func idsEqual(a, b []ID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Marshal serializes d as the TD wire payload: each line is a
// concatenation of packed 3-byte tag keys followed by a terminating NUL.
func (d *Dictionary) Marshal() []byte {
	var buf []byte
	for _, line := range d.Lines {
		for _, id := range line {
			name, typ := id.Unpack()
			buf = append(buf, name[0], name[1], typ)
		}
		buf = append(buf, 0)
	}
	return buf
}

// UnmarshalDictionary parses a TagIdsDictionary from buf. Each line must be
// NUL-terminated; an empty line (a lone NUL) is a record group carrying no
// tags at all.
func UnmarshalDictionary(buf []byte) (*Dictionary, error) {
	d := &Dictionary{}
	if len(buf) == 0 {
		return d, nil
	}
	if buf[len(buf)-1] != 0 {
		return nil, errors.Wrap(cram.ErrInvalidData, "tag ids dictionary missing line terminator")
	}
	for _, lineBytes := range bytes.Split(buf[:len(buf)-1], []byte{0}) {
		if len(lineBytes)%3 != 0 {
			return nil, errors.Wrap(cram.ErrInvalidData, "tag ids dictionary line not a multiple of 3 bytes")
		}
		var line []ID
		for i := 0; i+3 <= len(lineBytes); i += 3 {
			line = append(line, Pack([2]byte{lineBytes[i], lineBytes[i+1]}, lineBytes[i+2]))
		}
		d.Lines = append(d.Lines, line)
	}
	return d, nil
}
