// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package block implements CRAM's block-level compression step: every
// core or external block a compression header or slice produces is
// compressed as one opaque unit before it is written out, tagged with the
// Method that compressed it so a reader knows how to invert it.
package block

import (
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/grailbio/cram"
)

// Method identifies how a block's payload was compressed.
type Method byte

const (
	// Raw stores the payload uncompressed.
	Raw Method = iota
	// Zstd compresses the payload with zstd.
	Zstd
)

// Compress compresses data with m, returning the bytes to store on the
// wire in place of data.
func Compress(m Method, data []byte) ([]byte, error) {
	switch m {
	case Raw:
		return data, nil
	case Zstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, errors.Wrap(err, "block: creating zstd encoder")
		}
		defer enc.Close()
		return enc.EncodeAll(data, make([]byte, 0, len(data))), nil
	default:
		return nil, errors.Wrapf(cram.ErrInvalidInput, "block: unknown compression method %d", m)
	}
}

// Decompress inverts Compress: data is the compressed bytes as produced
// by Compress(m, ...), and rawLen is the expected decompressed length
// (CRAM blocks always carry their own raw_size alongside compressed_size,
// so the decoder knows this ahead of time and can preallocate).
func Decompress(m Method, data []byte, rawLen int) ([]byte, error) {
	switch m {
	case Raw:
		return data, nil
	case Zstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, errors.Wrap(err, "block: creating zstd decoder")
		}
		defer dec.Close()
		out, err := dec.DecodeAll(data, make([]byte, 0, rawLen))
		if err != nil {
			return nil, errors.Wrap(err, "block: zstd decompress")
		}
		return out, nil
	default:
		return nil, errors.Wrapf(cram.ErrInvalidData, "block: unknown compression method %d", m)
	}
}
