// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package aac implements CRAM's adaptive arithmetic coder: an order-0
// adaptive frequency Model paired with a carryless byte-renormalizing
// range coder (low and range only, no carry-propagation cache).
//
// Encoder and decoder apply identical model updates per symbol, so the
// two stay in lockstep over any symbol sequence.
package aac

import "io"

const (
	rcTop = uint32(1) << 24
	rcBot = uint32(1) << 16
)

// RangeEncoder is the write side of the range coder.
type RangeEncoder struct {
	low uint32
	rng uint32
	w   io.Writer
}

// NewRangeEncoder returns a RangeEncoder writing to w.
func NewRangeEncoder(w io.Writer) *RangeEncoder {
	return &RangeEncoder{rng: 0xffffffff, w: w}
}

// EncodeFreq narrows the coder's range to [cumFreq, cumFreq+freq) out of
// totFreq, renormalizing (and emitting bytes) as needed.
func (e *RangeEncoder) EncodeFreq(cumFreq, freq, totFreq uint32) error {
	e.rng /= totFreq
	e.low += cumFreq * e.rng
	e.rng *= freq
	for e.rng < rcTop {
		if (e.low ^ (e.low + e.rng)) >= rcTop {
			e.rng = -e.low & (rcBot - 1)
			if e.rng == 0 {
				e.rng = rcBot
			}
		}
		if _, err := e.w.Write([]byte{byte(e.low >> 24)}); err != nil {
			return err
		}
		e.low <<= 8
		e.rng <<= 8
	}
	return nil
}

// Close flushes the remaining bytes of low. Call exactly once, after the
// last EncodeFreq.
func (e *RangeEncoder) Close() error {
	for i := 0; i < 4; i++ {
		if _, err := e.w.Write([]byte{byte(e.low >> 24)}); err != nil {
			return err
		}
		e.low <<= 8
	}
	return nil
}

// RangeDecoder is the read side of the range coder.
type RangeDecoder struct {
	low  uint32
	rng  uint32
	code uint32
	r    io.ByteReader
}

// NewRangeDecoder returns a RangeDecoder reading from r. It consumes the
// coder's 4-byte initial code immediately.
func NewRangeDecoder(r io.ByteReader) (*RangeDecoder, error) {
	d := &RangeDecoder{rng: 0xffffffff, r: r}
	for i := 0; i < 4; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		d.code = d.code<<8 | uint32(b)
	}
	return d, nil
}

// GetFreq returns a value in [0, totFreq) identifying which symbol's
// cumulative frequency range the next encoded value falls in. The caller
// locates the symbol and then calls Decode with its (cumFreq, freq).
func (d *RangeDecoder) GetFreq(totFreq uint32) uint32 {
	d.rng /= totFreq
	v := (d.code - d.low) / d.rng
	if v >= totFreq {
		v = totFreq - 1
	}
	return v
}

// Decode consumes the symbol identified by (cumFreq, freq), renormalizing
// (and reading bytes) as needed.
func (d *RangeDecoder) Decode(cumFreq, freq uint32) error {
	d.low += cumFreq * d.rng
	d.rng *= freq
	for d.rng < rcTop {
		if (d.low ^ (d.low + d.rng)) >= rcTop {
			d.rng = -d.low & (rcBot - 1)
			if d.rng == 0 {
				d.rng = rcBot
			}
		}
		b, err := d.r.ReadByte()
		if err != nil {
			return err
		}
		d.code = d.code<<8 | uint32(b)
		d.low <<= 8
		d.rng <<= 8
	}
	return nil
}
