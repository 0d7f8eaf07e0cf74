// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package codec implements CRAM's encoding algebra: the closed set of
// Encodings a data series or tag can be assigned, their self-describing
// wire form, and the encode/decode operations that drive values through
// either the core bit stream or a keyed external block.
package codec

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/grailbio/cram"
	"github.com/grailbio/cram/bitio"
	"github.com/grailbio/cram/itf8"
)

// Kind tags the variant of an Encoding.
type Kind int32

// The closed set of encoding kinds, with the itf8 tag values fixed by the
// wire format.
const (
	KindNull          Kind = 0
	KindExternal      Kind = 1
	KindGolomb        Kind = 2
	KindHuffman       Kind = 3
	KindByteArrayLen  Kind = 4
	KindByteArrayStop Kind = 5
	KindBeta          Kind = 6
	KindSubexp        Kind = 7
	KindGolombRice    Kind = 8
	KindGamma         Kind = 9
)

// Encoding is the tagged sum of all encoding variants. Only the fields
// relevant to Kind are meaningful: one struct with fields validated by
// Kind, rather than ten separate Go types behind an interface.
type Encoding struct {
	Kind Kind

	// External, ByteArrayStop.
	BlockContentID int32

	// Golomb, Beta, Subexp, GolombRice, Gamma.
	Offset int32

	// Golomb.
	M int32

	// Huffman.
	Alphabet    []int32
	CodeLengths []int32

	// ByteArrayLen.
	LenEncoding *Encoding
	ValEncoding *Encoding

	// ByteArrayStop.
	StopByte byte

	// Beta.
	BitLength int32

	// Subexp, GolombRice.
	K int32

	huffman *huffmanTable // lazily built on first use
}

// Null returns the Null encoding.
func Null() Encoding { return Encoding{Kind: KindNull} }

// External returns an External encoding routed to blockContentID.
func External(blockContentID int32) Encoding {
	return Encoding{Kind: KindExternal, BlockContentID: blockContentID}
}

// Golomb returns a Golomb(offset, m) encoding.
func Golomb(offset, m int32) Encoding {
	return Encoding{Kind: KindGolomb, Offset: offset, M: m}
}

// Huffman returns a Huffman encoding over alphabet with matching code
// lengths.
func Huffman(alphabet, codeLengths []int32) Encoding {
	return Encoding{Kind: KindHuffman, Alphabet: alphabet, CodeLengths: codeLengths}
}

// ByteArrayLen returns a ByteArrayLen(lenEncoding, valEncoding) encoding.
func ByteArrayLen(lenEncoding, valEncoding Encoding) Encoding {
	return Encoding{Kind: KindByteArrayLen, LenEncoding: &lenEncoding, ValEncoding: &valEncoding}
}

// ByteArrayStop returns a ByteArrayStop(stopByte, blockContentID) encoding.
func ByteArrayStop(stopByte byte, blockContentID int32) Encoding {
	return Encoding{Kind: KindByteArrayStop, StopByte: stopByte, BlockContentID: blockContentID}
}

// Beta returns a Beta(offset, bitLength) encoding.
func Beta(offset, bitLength int32) Encoding {
	return Encoding{Kind: KindBeta, Offset: offset, BitLength: bitLength}
}

// Subexp returns a Subexp(offset, k) encoding.
func Subexp(offset, k int32) Encoding {
	return Encoding{Kind: KindSubexp, Offset: offset, K: k}
}

// GolombRice returns a GolombRice(offset, log2M) encoding.
func GolombRice(offset, log2M int32) Encoding {
	return Encoding{Kind: KindGolombRice, Offset: offset, K: log2M}
}

// Gamma returns a Gamma(offset) encoding.
func Gamma(offset int32) Encoding {
	return Encoding{Kind: KindGamma, Offset: offset}
}

// Sinks bundles the two destinations an Encoding's Encode* method may route
// a value to: the slice's single core bit stream, or one of its keyed
// external blocks.
type Sinks struct {
	Core     *bitio.Writer
	External bitio.ExternalBlocks
}

// Sources is the read-side counterpart of Sinks.
type Sources struct {
	Core     *bitio.Reader
	External bitio.ExternalSources
}

func (e *Encoding) externalSink(ext bitio.ExternalBlocks) (bitio.Sink, error) {
	s, ok := ext.Get(e.BlockContentID)
	if !ok {
		return nil, errors.Wrapf(cram.ErrMissingExternalBlock, "block_content_id=%d", e.BlockContentID)
	}
	return s, nil
}

func (e *Encoding) externalSource(ext bitio.ExternalSources) (bitio.Source, error) {
	s, ok := ext.Get(e.BlockContentID)
	if !ok {
		return nil, errors.Wrapf(cram.ErrMissingExternalBlock, "block_content_id=%d", e.BlockContentID)
	}
	return s, nil
}

// EncodeInt32 writes v through e to the appropriate sink.
func (e *Encoding) EncodeInt32(sinks Sinks, v int32) error {
	switch e.Kind {
	case KindExternal:
		sink, err := e.externalSink(sinks.External)
		if err != nil {
			return err
		}
		sink.AppendBytes(itf8.PutInt32(nil, v))
		return nil
	case KindHuffman:
		ht, err := e.huffmanTable()
		if err != nil {
			return err
		}
		return ht.encode(sinks.Core, v)
	case KindBeta:
		return writeBeta(sinks.Core, e.Offset, e.BitLength, v)
	case KindSubexp:
		return writeSubexp(sinks.Core, e.Offset, e.K, v)
	case KindGolomb:
		return writeGolomb(sinks.Core, e.Offset, e.M, v)
	case KindGolombRice:
		return writeGolombRice(sinks.Core, e.Offset, e.K, v)
	case KindGamma:
		return writeGamma(sinks.Core, e.Offset, v)
	case KindNull:
		return nil
	default:
		return errors.Wrapf(cram.ErrInvalidInput, "encoding kind %d cannot encode an int32", e.Kind)
	}
}

// DecodeInt32 reads a value through e from the appropriate source.
func (e *Encoding) DecodeInt32(sources Sources) (int32, error) {
	switch e.Kind {
	case KindExternal:
		src, err := e.externalSource(sources.External)
		if err != nil {
			return 0, err
		}
		return itf8.GetInt32Reader(src)
	case KindHuffman:
		ht, err := e.huffmanTable()
		if err != nil {
			return 0, err
		}
		return ht.decode(sources.Core)
	case KindBeta:
		return readBeta(sources.Core, e.Offset, e.BitLength)
	case KindSubexp:
		return readSubexp(sources.Core, e.Offset, e.K)
	case KindGolomb:
		return readGolomb(sources.Core, e.Offset, e.M)
	case KindGolombRice:
		return readGolombRice(sources.Core, e.Offset, e.K)
	case KindGamma:
		return readGamma(sources.Core, e.Offset)
	case KindNull:
		return 0, nil
	default:
		return 0, errors.Wrapf(cram.ErrInvalidInput, "encoding kind %d cannot decode an int32", e.Kind)
	}
}

// EncodeByte writes b through e to the appropriate sink.
func (e *Encoding) EncodeByte(sinks Sinks, b byte) error {
	switch e.Kind {
	case KindExternal:
		sink, err := e.externalSink(sinks.External)
		if err != nil {
			return err
		}
		sink.AppendByte(b)
		return nil
	case KindHuffman:
		ht, err := e.huffmanTable()
		if err != nil {
			return err
		}
		return ht.encode(sinks.Core, int32(b))
	case KindNull:
		return nil
	default:
		return errors.Wrapf(cram.ErrInvalidInput, "encoding kind %d cannot encode a byte", e.Kind)
	}
}

// DecodeByte reads a byte through e from the appropriate source.
func (e *Encoding) DecodeByte(sources Sources) (byte, error) {
	switch e.Kind {
	case KindExternal:
		src, err := e.externalSource(sources.External)
		if err != nil {
			return 0, err
		}
		return src.ReadByte()
	case KindHuffman:
		ht, err := e.huffmanTable()
		if err != nil {
			return 0, err
		}
		sym, err := ht.decode(sources.Core)
		return byte(sym), err
	case KindNull:
		return 0, nil
	default:
		return 0, errors.Wrapf(cram.ErrInvalidInput, "encoding kind %d cannot decode a byte", e.Kind)
	}
}

// EncodeBytes writes data (a variable-length byte array field) through e.
func (e *Encoding) EncodeBytes(sinks Sinks, data []byte) error {
	switch e.Kind {
	case KindExternal:
		sink, err := e.externalSink(sinks.External)
		if err != nil {
			return err
		}
		sink.AppendBytes(data)
		return nil
	case KindByteArrayLen:
		if err := e.LenEncoding.EncodeInt32(sinks, int32(len(data))); err != nil {
			return err
		}
		for _, b := range data {
			if err := e.ValEncoding.EncodeByte(sinks, b); err != nil {
				return err
			}
		}
		return nil
	case KindByteArrayStop:
		sink, err := e.externalSink(sinks.External)
		if err != nil {
			return err
		}
		for _, b := range data {
			if b == e.StopByte {
				return errors.Wrapf(cram.ErrInvalidInput, "data contains stop byte 0x%02x", e.StopByte)
			}
		}
		sink.AppendBytes(data)
		sink.AppendByte(e.StopByte)
		return nil
	default:
		return errors.Wrapf(cram.ErrInvalidInput, "encoding kind %d cannot encode a byte array", e.Kind)
	}
}

// DecodeBytes reads a byte array field through e. n is the number of bytes
// to read for encodings whose length is determined externally (not used by
// ByteArrayLen or ByteArrayStop, which are self-delimiting).
func (e *Encoding) DecodeBytes(sources Sources, n int) ([]byte, error) {
	switch e.Kind {
	case KindExternal:
		src, err := e.externalSource(sources.External)
		if err != nil {
			return nil, err
		}
		return src.ReadBytes(n)
	case KindByteArrayLen:
		length, err := e.LenEncoding.DecodeInt32(sources)
		if err != nil {
			return nil, err
		}
		if length < 0 {
			return nil, errors.Wrapf(cram.ErrInvalidData, "negative ByteArrayLen length %d", length)
		}
		out := make([]byte, length)
		for i := range out {
			b, err := e.ValEncoding.DecodeByte(sources)
			if err != nil {
				return nil, err
			}
			out[i] = b
		}
		return out, nil
	case KindByteArrayStop:
		src, err := e.externalSource(sources.External)
		if err != nil {
			return nil, err
		}
		var out []byte
		for {
			b, err := src.ReadByte()
			if err != nil {
				return nil, err
			}
			if b == e.StopByte {
				return out, nil
			}
			out = append(out, b)
		}
	default:
		return nil, errors.Wrapf(cram.ErrInvalidInput, "encoding kind %d cannot decode a byte array", e.Kind)
	}
}

func (e *Encoding) huffmanTable() (*huffmanTable, error) {
	if e.huffman == nil {
		ht, err := newHuffmanTable(e.Alphabet, e.CodeLengths)
		if err != nil {
			return nil, err
		}
		e.huffman = ht
	}
	return e.huffman, nil
}

// huffmanTable is the canonical-Huffman encode/decode table built from an
// (alphabet, code_lengths) pair. Canonical assignment:
// sort symbols by (length, symbol), then walk assigning codes in order,
// left-shifting whenever length increases - the same construction DEFLATE
// and most other canonical Huffman codecs use.
type huffmanTable struct {
	single       bool // true iff there is exactly one symbol with length 0
	singleSymbol int32
	encode_      map[int32]huffmanCode
	byLenCode    map[int]map[uint32]int32
	maxLen       int
}

type huffmanCode struct {
	code   uint32
	length int
}

func newHuffmanTable(alphabet, codeLengths []int32) (*huffmanTable, error) {
	if len(alphabet) != len(codeLengths) {
		return nil, errors.Wrapf(cram.ErrInvalidData, "huffman alphabet/code_lengths length mismatch: %d vs %d", len(alphabet), len(codeLengths))
	}
	if len(alphabet) == 1 && codeLengths[0] == 0 {
		return &huffmanTable{single: true, singleSymbol: alphabet[0]}, nil
	}

	type entry struct {
		symbol int32
		length int32
	}
	entries := make([]entry, len(alphabet))
	for i := range alphabet {
		entries[i] = entry{alphabet[i], codeLengths[i]}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].length != entries[j].length {
			return entries[i].length < entries[j].length
		}
		return entries[i].symbol < entries[j].symbol
	})

	ht := &huffmanTable{
		encode_:   make(map[int32]huffmanCode, len(entries)),
		byLenCode: make(map[int]map[uint32]int32),
	}
	var code uint32
	var prevLen int32
	for _, e := range entries {
		if e.length <= 0 {
			return nil, errors.Wrapf(cram.ErrInvalidData, "huffman code length must be > 0 for a multi-symbol alphabet, got %d", e.length)
		}
		if e.length > prevLen {
			code <<= uint(e.length - prevLen)
			prevLen = e.length
		}
		ht.encode_[e.symbol] = huffmanCode{code: code, length: int(e.length)}
		if ht.byLenCode[int(e.length)] == nil {
			ht.byLenCode[int(e.length)] = make(map[uint32]int32)
		}
		ht.byLenCode[int(e.length)][code] = e.symbol
		if int(e.length) > ht.maxLen {
			ht.maxLen = int(e.length)
		}
		code++
	}
	return ht, nil
}

func (ht *huffmanTable) encode(w *bitio.Writer, symbol int32) error {
	if ht.single {
		if symbol != ht.singleSymbol {
			return errors.Wrapf(cram.ErrInvalidInput, "huffman: symbol %d not in single-symbol alphabet %d", symbol, ht.singleSymbol)
		}
		return nil
	}
	c, ok := ht.encode_[symbol]
	if !ok {
		return errors.Wrapf(cram.ErrInvalidInput, "huffman: symbol %d not in alphabet", symbol)
	}
	return w.WriteBits(c.code, c.length)
}

func (ht *huffmanTable) decode(r *bitio.Reader) (int32, error) {
	if ht.single {
		return ht.singleSymbol, nil
	}
	var code uint32
	for length := 1; length <= ht.maxLen+1; length++ {
		bit, err := r.ReadBits(1)
		if err != nil {
			return 0, err
		}
		code = code<<1 | bit
		if m, ok := ht.byLenCode[length]; ok {
			if sym, ok := m[code]; ok {
				return sym, nil
			}
		}
	}
	return 0, errors.Wrap(cram.ErrInvalidData, "huffman: no matching code")
}
