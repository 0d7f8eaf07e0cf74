// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package preservation implements CRAM's PreservationMap: the three
// boolean preservation flags plus the mandatory embedded
// SubstitutionMatrix and TagIdsDictionary every compression header
// carries.
package preservation

import (
	"github.com/pkg/errors"

	"github.com/grailbio/cram"
	"github.com/grailbio/cram/itf8"
	"github.com/grailbio/cram/substitution"
	"github.com/grailbio/cram/tagenc"
)

// Key is a PreservationMap entry's two-letter wire key.
type Key string

const (
	keyReadNamesIncluded  Key = "RN"
	keyAPDataSeriesDelta  Key = "AP"
	keyReferenceRequired  Key = "RR"
	keySubstitutionMatrix Key = "SM"
	keyTagIDsDictionary   Key = "TD"
)

// Map is a parsed PreservationMap. The three booleans default to true when
// their key is absent from the wire map; SubstitutionMatrix and
// TagIDsDictionary are mandatory.
type Map struct {
	ReadNamesIncluded  bool
	APDataSeriesDelta  bool
	ReferenceRequired  bool
	SubstitutionMatrix *substitution.Matrix
	TagIDsDictionary   *tagenc.Dictionary
}

// New returns a Map with the given mandatory fields and all three booleans
// defaulted to true.
func New(sm *substitution.Matrix, td *tagenc.Dictionary) *Map {
	return &Map{
		ReadNamesIncluded:  true,
		APDataSeriesDelta:  true,
		ReferenceRequired:  true,
		SubstitutionMatrix: sm,
		TagIDsDictionary:   td,
	}
}

// Marshal serializes m to its wire form: itf8(data_len) itf8(map_len)
// map_len*(key[2] value).
func (m *Map) Marshal() []byte {
	var body []byte
	count := int32(0)

	appendEntry := func(k Key, val []byte) {
		body = append(body, k[0], k[1])
		body = append(body, val...)
		count++
	}
	if !m.ReadNamesIncluded {
		appendEntry(keyReadNamesIncluded, []byte{0})
	}
	if !m.APDataSeriesDelta {
		appendEntry(keyAPDataSeriesDelta, []byte{0})
	}
	if !m.ReferenceRequired {
		appendEntry(keyReferenceRequired, []byte{0})
	}
	appendEntry(keySubstitutionMatrix, m.SubstitutionMatrix.Marshal())

	tdBytes := m.TagIDsDictionary.Marshal()
	tdVal := itf8.PutInt32(nil, int32(len(tdBytes)))
	tdVal = append(tdVal, tdBytes...)
	appendEntry(keyTagIDsDictionary, tdVal)

	out := itf8.PutInt32(nil, int32(len(body)+itf8len(count)))
	out = itf8.PutInt32(out, count)
	return append(out, body...)
}

func itf8len(v int32) int { return itf8.AppendedLen(v) }

// Unmarshal parses a PreservationMap from the front of buf, returning the
// Map and the number of bytes consumed. Returns cram.ErrInvalidData if the
// mandatory SubstitutionMatrix or TagIDsDictionary entry is absent.
func Unmarshal(buf []byte) (*Map, int, error) {
	dataLen, n0, err := itf8.GetInt32(buf)
	if err != nil {
		return nil, 0, errors.Wrap(err, "preservation map data_len")
	}
	if dataLen < 0 || n0+int(dataLen) > len(buf) {
		return nil, 0, errors.Wrap(cram.ErrInvalidData, "preservation map truncated")
	}
	body := buf[n0 : n0+int(dataLen)]

	mapLen, n1, err := itf8.GetInt32(body)
	if err != nil {
		return nil, 0, errors.Wrap(err, "preservation map map_len")
	}

	m := &Map{ReadNamesIncluded: true, APDataSeriesDelta: true, ReferenceRequired: true}
	pos := n1
	for i := int32(0); i < mapLen; i++ {
		if pos+2 > len(body) {
			return nil, 0, errors.Wrap(cram.ErrInvalidData, "preservation map key truncated")
		}
		key := Key([]byte{body[pos], body[pos+1]})
		pos += 2
		switch key {
		case keyReadNamesIncluded, keyAPDataSeriesDelta, keyReferenceRequired:
			if pos >= len(body) {
				return nil, 0, errors.Wrap(cram.ErrInvalidData, "preservation map bool truncated")
			}
			b, err := decodeBool(body[pos])
			if err != nil {
				return nil, 0, err
			}
			pos++
			switch key {
			case keyReadNamesIncluded:
				m.ReadNamesIncluded = b
			case keyAPDataSeriesDelta:
				m.APDataSeriesDelta = b
			case keyReferenceRequired:
				m.ReferenceRequired = b
			}
		case keySubstitutionMatrix:
			if pos+cram.NumBases > len(body) {
				return nil, 0, errors.Wrap(cram.ErrInvalidData, "preservation map substitution matrix truncated")
			}
			sm, err := substitution.Unmarshal(body[pos : pos+cram.NumBases])
			if err != nil {
				return nil, 0, err
			}
			m.SubstitutionMatrix = sm
			pos += cram.NumBases
		case keyTagIDsDictionary:
			tdLen, n, err := itf8.GetInt32(body[pos:])
			if err != nil {
				return nil, 0, errors.Wrap(err, "preservation map tag ids dictionary length")
			}
			pos += n
			if tdLen < 0 || pos+int(tdLen) > len(body) {
				return nil, 0, errors.Wrap(cram.ErrInvalidData, "preservation map tag ids dictionary truncated")
			}
			td, err := tagenc.UnmarshalDictionary(body[pos : pos+int(tdLen)])
			if err != nil {
				return nil, 0, err
			}
			m.TagIDsDictionary = td
			pos += int(tdLen)
		default:
			return nil, 0, errors.Wrapf(cram.ErrInvalidData, "unknown preservation map key %q", key)
		}
	}

	if m.SubstitutionMatrix == nil {
		return nil, 0, errors.Wrap(cram.ErrInvalidData, "preservation map missing substitution matrix")
	}
	if m.TagIDsDictionary == nil {
		return nil, 0, errors.Wrap(cram.ErrInvalidData, "preservation map missing tag ids dictionary")
	}
	return m, n0 + int(dataLen), nil
}

func decodeBool(b byte) (bool, error) {
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, errors.Wrapf(cram.ErrInvalidData, "invalid bool value 0x%02x", b)
	}
}
