// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package bitio provides the MSB-first core bit stream CRAM's Beta,
// Subexp, Golomb, GolombRice and Gamma encodings write to, and the narrow
// Sink/Source capability types an Encoding uses to reach the external byte
// blocks it does not itself own.
//
// Only a handful of data series ever route through the bit stream; the
// vast majority of production data flows through external byte blocks
// instead, so Writer/Reader here are deliberately thin.
package bitio

import (
	"io"

	icza "github.com/icza/bitio"

	"github.com/grailbio/cram"
)

// Writer is a MSB-first bit sink. The zero value is not usable; construct
// with NewWriter.
type Writer struct {
	bw *icza.Writer
}

// NewWriter returns a Writer that flushes its bytes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: icza.NewWriter(w)}
}

// WriteBits writes the low n bits of value, MSB first. 1 <= n <= 32.
func (w *Writer) WriteBits(value uint32, n int) error {
	if n < 1 || n > 32 {
		return cram.ErrInvalidInput
	}
	return w.bw.WriteBits(uint64(value), uint8(n))
}

// Close byte-aligns the stream, padding with zero bits, and flushes any
// buffered byte to the underlying writer.
func (w *Writer) Close() error {
	if _, err := w.bw.Align(); err != nil {
		return err
	}
	return w.bw.Close()
}

// Reader is a MSB-first bit source.
type Reader struct {
	br *icza.Reader
}

// NewReader returns a Reader that pulls bytes from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: icza.NewReader(r)}
}

// ReadBits reads n bits, MSB first, and returns them right-justified in the
// low n bits of the result. 1 <= n <= 32.
func (r *Reader) ReadBits(n int) (uint32, error) {
	if n < 1 || n > 32 {
		return 0, cram.ErrInvalidInput
	}
	v, err := r.br.ReadBits(uint8(n))
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// Align discards any remaining bits in the current partially-read byte.
func (r *Reader) Align() {
	r.br.Align()
}

// Sink is the capability an external block write path needs: append bytes
// to a per-block_content_id byte stream. Encodings never see more of a
// block than this.
type Sink interface {
	AppendByte(b byte)
	AppendBytes(p []byte)
}

// Source is the read-side counterpart of Sink.
type Source interface {
	ReadByte() (byte, error)
	ReadBytes(n int) ([]byte, error)
}

// BufferSink is a Sink backed by an in-memory buffer. A slice encoder owns
// one BufferSink per open external block_content_id.
type BufferSink struct {
	buf []byte
}

// AppendByte implements Sink.
func (s *BufferSink) AppendByte(b byte) { s.buf = append(s.buf, b) }

// AppendBytes implements Sink.
func (s *BufferSink) AppendBytes(p []byte) { s.buf = append(s.buf, p...) }

// Bytes returns the bytes accumulated so far.
func (s *BufferSink) Bytes() []byte { return s.buf }

// Len returns the number of bytes accumulated so far.
func (s *BufferSink) Len() int { return len(s.buf) }

// BufferSource is a Source reading from a fixed in-memory buffer, the
// decode-side counterpart of BufferSink.
type BufferSource struct {
	buf []byte
	pos int
}

// NewBufferSource returns a Source that reads buf from the start.
func NewBufferSource(buf []byte) *BufferSource {
	return &BufferSource{buf: buf}
}

// ReadByte implements Source and io.ByteReader.
func (s *BufferSource) ReadByte() (byte, error) {
	if s.pos >= len(s.buf) {
		return 0, io.EOF
	}
	b := s.buf[s.pos]
	s.pos++
	return b, nil
}

// ReadBytes implements Source.
func (s *BufferSource) ReadBytes(n int) ([]byte, error) {
	if s.pos+n > len(s.buf) {
		return nil, io.ErrUnexpectedEOF
	}
	out := s.buf[s.pos : s.pos+n]
	s.pos += n
	return out, nil
}

// ExternalBlocks maps a block_content_id to the Sink accumulating that
// block's bytes.
type ExternalBlocks map[int32]Sink

// Get returns the sink for id, or (nil, false) if no such block is open.
func (m ExternalBlocks) Get(id int32) (Sink, bool) {
	s, ok := m[id]
	return s, ok
}

// ExternalSources is the read-side counterpart of ExternalBlocks.
type ExternalSources map[int32]Source

// Get returns the source for id, or (nil, false) if no such block is open.
func (m ExternalSources) Get(id int32) (Source, bool) {
	s, ok := m[id]
	return s, ok
}
