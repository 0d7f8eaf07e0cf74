// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package codec

import (
	"math/bits"

	"github.com/pkg/errors"

	"github.com/grailbio/cram"
	"github.com/grailbio/cram/bitio"
)

// The five bit-stream encodings (Beta, Subexp, Golomb, GolombRice, Gamma)
// all share the same shape: add an offset to bias the value into a
// non-negative domain, write some bits, and invert on the way back.

func writeUnary(w *bitio.Writer, q int32) error {
	for ; q > 0; q-- {
		if err := w.WriteBits(1, 1); err != nil {
			return err
		}
	}
	return w.WriteBits(0, 1)
}

func readUnary(r *bitio.Reader) (int32, error) {
	var q int32
	for {
		bit, err := r.ReadBits(1)
		if err != nil {
			return 0, err
		}
		if bit == 0 {
			return q, nil
		}
		q++
	}
}

// Beta(offset, bitLength): value+offset stored verbatim in bitLength bits.
func writeBeta(w *bitio.Writer, offset, bitLength, v int32) error {
	if bitLength <= 0 || bitLength > 32 {
		return errors.Wrapf(cram.ErrInvalidInput, "beta: bad bit length %d", bitLength)
	}
	return w.WriteBits(uint32(v+offset), int(bitLength))
}

func readBeta(r *bitio.Reader, offset, bitLength int32) (int32, error) {
	if bitLength <= 0 || bitLength > 32 {
		return 0, errors.Wrapf(cram.ErrInvalidInput, "beta: bad bit length %d", bitLength)
	}
	u, err := r.ReadBits(int(bitLength))
	if err != nil {
		return 0, err
	}
	return int32(u) - offset, nil
}

// Gamma(offset): Elias gamma code of n = value+offset, n >= 1: (bitLen(n)-1)
// leading zero bits followed by n itself in bitLen(n) bits.
func writeGamma(w *bitio.Writer, offset, v int32) error {
	n := uint32(v + offset)
	if n == 0 {
		return errors.Wrap(cram.ErrInvalidInput, "gamma: value+offset must be >= 1")
	}
	length := bits.Len32(n)
	for i := 0; i < length-1; i++ {
		if err := w.WriteBits(0, 1); err != nil {
			return err
		}
	}
	return w.WriteBits(n, length)
}

func readGamma(r *bitio.Reader, offset int32) (int32, error) {
	zeros := 0
	for {
		bit, err := r.ReadBits(1)
		if err != nil {
			return 0, err
		}
		if bit == 1 {
			break
		}
		zeros++
	}
	var n uint32 = 1
	if zeros > 0 {
		rest, err := r.ReadBits(zeros)
		if err != nil {
			return 0, err
		}
		n = 1<<uint(zeros) | rest
	}
	return int32(n) - offset, nil
}

// GolombRice(offset, k): n = value+offset, m = 1<<k. Quotient n>>k in
// unary, remainder n&(m-1) in k bits.
func writeGolombRice(w *bitio.Writer, offset, k, v int32) error {
	if k < 0 || k > 30 {
		return errors.Wrapf(cram.ErrInvalidInput, "golomb-rice: bad k %d", k)
	}
	n := uint32(v + offset)
	q := int32(n >> uint(k))
	if err := writeUnary(w, q); err != nil {
		return err
	}
	if k == 0 {
		return nil
	}
	m := uint32(1) << uint(k)
	return w.WriteBits(n&(m-1), int(k))
}

func readGolombRice(r *bitio.Reader, offset, k int32) (int32, error) {
	if k < 0 || k > 30 {
		return 0, errors.Wrapf(cram.ErrInvalidInput, "golomb-rice: bad k %d", k)
	}
	q, err := readUnary(r)
	if err != nil {
		return 0, err
	}
	var rem uint32
	if k > 0 {
		rem, err = r.ReadBits(int(k))
		if err != nil {
			return 0, err
		}
	}
	n := uint32(q)<<uint(k) | rem
	return int32(n) - offset, nil
}

func ceilLog2(m int32) int {
	if m <= 1 {
		return 0
	}
	return bits.Len32(uint32(m - 1))
}

// Golomb(offset, m): general truncated-binary Golomb code for arbitrary
// (non power-of-two) m. n = value+offset; q = n/m in unary; r = n%m coded
// in b or b-1 bits with b = ceil(log2(m)) (Rice's truncated binary code).
func writeGolomb(w *bitio.Writer, offset, m, v int32) error {
	if m <= 0 {
		return errors.Wrapf(cram.ErrInvalidInput, "golomb: bad modulus %d", m)
	}
	n := v + offset
	if n < 0 {
		return errors.Wrap(cram.ErrInvalidInput, "golomb: value+offset must be >= 0")
	}
	q := n / m
	rem := n % m
	if err := writeUnary(w, q); err != nil {
		return err
	}
	b := ceilLog2(m)
	if b == 0 {
		return nil
	}
	t := (int32(1) << uint(b)) - m
	if rem < t {
		return w.WriteBits(uint32(rem), b-1)
	}
	return w.WriteBits(uint32(rem+t), b)
}

func readGolomb(r *bitio.Reader, offset, m int32) (int32, error) {
	if m <= 0 {
		return 0, errors.Wrapf(cram.ErrInvalidInput, "golomb: bad modulus %d", m)
	}
	q, err := readUnary(r)
	if err != nil {
		return 0, err
	}
	b := ceilLog2(m)
	var rem int32
	if b > 0 {
		t := (int32(1) << uint(b)) - m
		var first uint32
		if b > 1 {
			if first, err = r.ReadBits(b - 1); err != nil {
				return 0, err
			}
		}
		if int32(first) < t {
			rem = int32(first)
		} else {
			extra, err := r.ReadBits(1)
			if err != nil {
				return 0, err
			}
			rem = int32(first)<<1 | int32(extra)
			rem -= t
		}
	}
	n := q*m + rem
	return n - offset, nil
}

// Subexp(offset, k): subexponential code. n = value+offset. Values in
// [0, 2^k) are coded as a single 0 bit followed by n in k bits. Larger
// values are coded as an order i >= 1 (i ones followed by a terminating
// 0), selecting a (k+i)-bit remainder field; successive orders double the
// preceding order's range.
func writeSubexp(w *bitio.Writer, offset, k, v int32) error {
	if k < 0 || k > 24 {
		return errors.Wrapf(cram.ErrInvalidInput, "subexp: bad k %d", k)
	}
	n := int64(v) + int64(offset)
	if n < 0 {
		return errors.Wrap(cram.ErrInvalidInput, "subexp: value+offset must be >= 0")
	}
	base := int64(1) << uint(k)
	if n < base {
		if err := w.WriteBits(0, 1); err != nil {
			return err
		}
		if k == 0 {
			return nil
		}
		return w.WriteBits(uint32(n), int(k))
	}
	i := 1
	cum := base
	for {
		size := int64(1) << uint(int(k)+i)
		if n < cum+size {
			for j := 0; j < i; j++ {
				if err := w.WriteBits(1, 1); err != nil {
					return err
				}
			}
			if err := w.WriteBits(0, 1); err != nil {
				return err
			}
			return w.WriteBits(uint32(n-cum), int(k)+i)
		}
		cum += size
		i++
	}
}

func readSubexp(r *bitio.Reader, offset, k int32) (int32, error) {
	if k < 0 || k > 24 {
		return 0, errors.Wrapf(cram.ErrInvalidInput, "subexp: bad k %d", k)
	}
	i := 0
	for {
		bit, err := r.ReadBits(1)
		if err != nil {
			return 0, err
		}
		if bit == 0 {
			break
		}
		i++
	}
	if i == 0 {
		if k == 0 {
			return -offset, nil
		}
		rest, err := r.ReadBits(int(k))
		if err != nil {
			return 0, err
		}
		return int32(rest) - offset, nil
	}
	cum := int64(1) << uint(k)
	for j := 1; j < i; j++ {
		cum += int64(1) << uint(int(k)+j)
	}
	rest, err := r.ReadBits(int(k) + i)
	if err != nil {
		return 0, err
	}
	n := cum + int64(rest)
	return int32(n) - offset, nil
}
