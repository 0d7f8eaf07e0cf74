// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package itf8 implements CRAM's self-delimited variable-length integer
// encodings, ITF8 (32-bit) and LTF8 (64-bit). Both pack a value into 1-5 (or
// 1-9 for LTF8) bytes, with the number of leading one-bits in the first
// byte indicating how many continuation bytes follow.
//
// Neither encoding is self-synchronizing: a reader must know exactly where
// an ITF8/LTF8 value starts. There is no length framing beyond the value
// itself.
package itf8

import "github.com/grailbio/cram"

// PutInt32 appends the ITF8 encoding of v to buf and returns the result.
func PutInt32(buf []byte, v int32) []byte {
	u := uint32(v)
	switch {
	case u&^0x7f == 0:
		return append(buf, byte(u))
	case u&^0x3fff == 0:
		return append(buf, byte(u>>8)|0x80, byte(u))
	case u&^0x1fffff == 0:
		return append(buf, byte(u>>16)|0xc0, byte(u>>8), byte(u))
	case u&^0xfffffff == 0:
		return append(buf, byte(u>>24)|0xe0, byte(u>>16), byte(u>>8), byte(u))
	default:
		return append(buf, 0xf0|byte(u>>28), byte(u>>20), byte(u>>12), byte(u>>4), byte(u)&0x0f)
	}
}

// AppendedLen returns the number of bytes PutInt32 would append for v.
func AppendedLen(v int32) int {
	u := uint32(v)
	switch {
	case u&^0x7f == 0:
		return 1
	case u&^0x3fff == 0:
		return 2
	case u&^0x1fffff == 0:
		return 3
	case u&^0xfffffff == 0:
		return 4
	default:
		return 5
	}
}

// GetInt32 decodes an ITF8 value from the front of buf, returning the value
// and the number of bytes consumed. buf must have enough bytes remaining;
// cram.ErrInvalidData is returned otherwise.
func GetInt32(buf []byte) (int32, int, error) {
	if len(buf) == 0 {
		return 0, 0, cram.ErrInvalidData
	}
	b0 := buf[0]
	switch {
	case b0 < 0x80:
		return int32(b0), 1, nil
	case b0 < 0xc0:
		if len(buf) < 2 {
			return 0, 0, cram.ErrInvalidData
		}
		v := (uint32(b0)<<8 | uint32(buf[1])) & 0x3fff
		return int32(v), 2, nil
	case b0 < 0xe0:
		if len(buf) < 3 {
			return 0, 0, cram.ErrInvalidData
		}
		v := (uint32(b0)<<16 | uint32(buf[1])<<8 | uint32(buf[2])) & 0x1fffff
		return int32(v), 3, nil
	case b0 < 0xf0:
		if len(buf) < 4 {
			return 0, 0, cram.ErrInvalidData
		}
		v := (uint32(b0)<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])) & 0xfffffff
		return int32(v), 4, nil
	default:
		if len(buf) < 5 {
			return 0, 0, cram.ErrInvalidData
		}
		v := uint32(b0&0x0f)<<28 | uint32(buf[1])<<20 | uint32(buf[2])<<12 | uint32(buf[3])<<4 | uint32(buf[4]&0x0f)
		return int32(v), 5, nil
	}
}

// byteReader is the minimal capability GetInt32Reader needs: a source of
// single bytes (the same method set as io.ByteReader).
type byteReader interface {
	ReadByte() (byte, error)
}

// GetInt32Reader decodes an ITF8 value from r, one byte at a time.
func GetInt32Reader(r byteReader) (int32, error) {
	b0, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch {
	case b0 < 0x80:
		return int32(b0), nil
	case b0 < 0xc0:
		b1, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		v := (uint32(b0)<<8 | uint32(b1)) & 0x3fff
		return int32(v), nil
	case b0 < 0xe0:
		b1, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		b2, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		v := (uint32(b0)<<16 | uint32(b1)<<8 | uint32(b2)) & 0x1fffff
		return int32(v), nil
	case b0 < 0xf0:
		bs := [3]byte{}
		for i := range bs {
			b, err := r.ReadByte()
			if err != nil {
				return 0, err
			}
			bs[i] = b
		}
		v := (uint32(b0)<<24 | uint32(bs[0])<<16 | uint32(bs[1])<<8 | uint32(bs[2])) & 0xfffffff
		return int32(v), nil
	default:
		bs := [4]byte{}
		for i := range bs {
			b, err := r.ReadByte()
			if err != nil {
				return 0, err
			}
			bs[i] = b
		}
		v := uint32(b0&0x0f)<<28 | uint32(bs[0])<<20 | uint32(bs[1])<<12 | uint32(bs[2])<<4 | uint32(bs[3]&0x0f)
		return int32(v), nil
	}
}

// PutInt64 appends the LTF8 encoding of v to buf and returns the result.
// LTF8 extends ITF8's continuation scheme up to 9 bytes to cover the full
// int64 range.
func PutInt64(buf []byte, v int64) []byte {
	u := uint64(v)
	switch {
	case u&^0x7f == 0:
		return append(buf, byte(u))
	case u&^0x3fff == 0:
		return append(buf, byte(u>>8)|0x80, byte(u))
	case u&^0x1fffff == 0:
		return append(buf, byte(u>>16)|0xc0, byte(u>>8), byte(u))
	case u&^0xfffffff == 0:
		return append(buf, byte(u>>24)|0xe0, byte(u>>16), byte(u>>8), byte(u))
	case u&^0x7ffffffff == 0:
		return append(buf, byte(u>>32)|0xf0, byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
	case u&^0x3ffffffffff == 0:
		return append(buf, byte(u>>40)|0xf8, byte(u>>32), byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
	case u&^0x1ffffffffffff == 0:
		return append(buf, byte(u>>48)|0xfc, byte(u>>40), byte(u>>32), byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
	case u&^0xffffffffffffff == 0:
		return append(buf, byte(u>>56)|0xfe, byte(u>>48), byte(u>>40), byte(u>>32), byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
	default:
		return append(buf, 0xff,
			byte(u>>56), byte(u>>48), byte(u>>40), byte(u>>32),
			byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
	}
}

// GetInt64 decodes an LTF8 value from the front of buf, returning the value
// and the number of bytes consumed.
func GetInt64(buf []byte) (int64, int, error) {
	if len(buf) == 0 {
		return 0, 0, cram.ErrInvalidData
	}
	b0 := buf[0]
	n := ltf8Len(b0)
	if len(buf) < n {
		return 0, 0, cram.ErrInvalidData
	}
	var v uint64
	switch {
	case b0 < 0x80:
		v = uint64(b0)
	case b0 < 0xc0:
		v = (uint64(b0)<<8 | uint64(buf[1])) & 0x3fff
	case b0 < 0xe0:
		v = (uint64(b0)<<16 | uint64(buf[1])<<8 | uint64(buf[2])) & 0x1fffff
	case b0 < 0xf0:
		v = (uint64(b0)<<24 | uint64(buf[1])<<16 | uint64(buf[2])<<8 | uint64(buf[3])) & 0xfffffff
	case b0 < 0xf8:
		v = (uint64(b0)<<32 | uint64(buf[1])<<24 | uint64(buf[2])<<16 | uint64(buf[3])<<8 | uint64(buf[4])) & 0x7ffffffff
	case b0 < 0xfc:
		v = (uint64(b0)<<40 | uint64(buf[1])<<32 | uint64(buf[2])<<24 | uint64(buf[3])<<16 | uint64(buf[4])<<8 | uint64(buf[5])) & 0x3ffffffffff
	case b0 < 0xfe:
		v = (uint64(b0)<<48 | uint64(buf[1])<<40 | uint64(buf[2])<<32 | uint64(buf[3])<<24 | uint64(buf[4])<<16 | uint64(buf[5])<<8 | uint64(buf[6])) & 0x1ffffffffffff
	case b0 < 0xff:
		v = (uint64(b0)<<56 | uint64(buf[1])<<48 | uint64(buf[2])<<40 | uint64(buf[3])<<32 | uint64(buf[4])<<24 | uint64(buf[5])<<16 | uint64(buf[6])<<8 | uint64(buf[7])) & 0xffffffffffffff
	default:
		v = uint64(buf[1])<<56 | uint64(buf[2])<<48 | uint64(buf[3])<<40 | uint64(buf[4])<<32 |
			uint64(buf[5])<<24 | uint64(buf[6])<<16 | uint64(buf[7])<<8 | uint64(buf[8])
	}
	return int64(v), n, nil
}

func ltf8Len(b0 byte) int {
	switch {
	case b0 < 0x80:
		return 1
	case b0 < 0xc0:
		return 2
	case b0 < 0xe0:
		return 3
	case b0 < 0xf0:
		return 4
	case b0 < 0xf8:
		return 5
	case b0 < 0xfc:
		return 6
	case b0 < 0xfe:
		return 7
	case b0 < 0xff:
		return 8
	default:
		return 9
	}
}
