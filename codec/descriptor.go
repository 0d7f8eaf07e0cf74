// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package codec

import (
	"github.com/pkg/errors"

	"github.com/grailbio/cram"
	"github.com/grailbio/cram/itf8"
)

// WriteDescriptor appends e's self-describing wire form to buf and returns
// the result: itf8(kind), itf8(args_len), args. This is the header stored
// in a DataSeriesEncodingMap or TagEncodingMap entry, not the value stream
// Encode/Decode drive.
func (e *Encoding) WriteDescriptor(buf []byte) []byte {
	args := e.writeArgs(nil)
	buf = itf8.PutInt32(buf, int32(e.Kind))
	buf = itf8.PutInt32(buf, int32(len(args)))
	return append(buf, args...)
}

func (e *Encoding) writeArgs(buf []byte) []byte {
	switch e.Kind {
	case KindNull:
		return buf
	case KindExternal:
		return itf8.PutInt32(buf, e.BlockContentID)
	case KindGolomb:
		buf = itf8.PutInt32(buf, e.Offset)
		return itf8.PutInt32(buf, e.M)
	case KindHuffman:
		buf = itf8.PutInt32(buf, int32(len(e.Alphabet)))
		for _, s := range e.Alphabet {
			buf = itf8.PutInt32(buf, s)
		}
		buf = itf8.PutInt32(buf, int32(len(e.CodeLengths)))
		for _, l := range e.CodeLengths {
			buf = itf8.PutInt32(buf, l)
		}
		return buf
	case KindByteArrayLen:
		buf = e.LenEncoding.WriteDescriptor(buf)
		return e.ValEncoding.WriteDescriptor(buf)
	case KindByteArrayStop:
		buf = append(buf, e.StopByte)
		return itf8.PutInt32(buf, e.BlockContentID)
	case KindBeta:
		buf = itf8.PutInt32(buf, e.Offset)
		return itf8.PutInt32(buf, e.BitLength)
	case KindSubexp:
		buf = itf8.PutInt32(buf, e.Offset)
		return itf8.PutInt32(buf, e.K)
	case KindGolombRice:
		buf = itf8.PutInt32(buf, e.Offset)
		return itf8.PutInt32(buf, e.K)
	case KindGamma:
		return itf8.PutInt32(buf, e.Offset)
	default:
		return buf
	}
}

// ReadDescriptor parses an Encoding's wire form from the front of buf,
// returning the Encoding and the number of bytes consumed.
func ReadDescriptor(buf []byte) (Encoding, int, error) {
	kind, n0, err := itf8.GetInt32(buf)
	if err != nil {
		return Encoding{}, 0, errors.Wrap(err, "encoding kind")
	}
	argsLen, n1, err := itf8.GetInt32(buf[n0:])
	if err != nil {
		return Encoding{}, 0, errors.Wrap(err, "encoding args_len")
	}
	off := n0 + n1
	if argsLen < 0 || off+int(argsLen) > len(buf) {
		return Encoding{}, 0, errors.Wrap(cram.ErrInvalidData, "encoding args truncated")
	}
	args := buf[off : off+int(argsLen)]
	e := Encoding{Kind: Kind(kind)}
	if err := e.readArgs(args); err != nil {
		return Encoding{}, 0, err
	}
	return e, off + int(argsLen), nil
}

func (e *Encoding) readArgs(args []byte) error {
	switch e.Kind {
	case KindNull:
		return nil
	case KindExternal:
		v, _, err := itf8.GetInt32(args)
		e.BlockContentID = v
		return err
	case KindGolomb:
		off, n, err := itf8.GetInt32(args)
		if err != nil {
			return err
		}
		m, _, err := itf8.GetInt32(args[n:])
		e.Offset, e.M = off, m
		return err
	case KindHuffman:
		alen, n, err := itf8.GetInt32(args)
		if err != nil {
			return err
		}
		pos := n
		e.Alphabet = make([]int32, alen)
		for i := range e.Alphabet {
			v, n, err := itf8.GetInt32(args[pos:])
			if err != nil {
				return err
			}
			e.Alphabet[i] = v
			pos += n
		}
		llen, n, err := itf8.GetInt32(args[pos:])
		if err != nil {
			return err
		}
		pos += n
		e.CodeLengths = make([]int32, llen)
		for i := range e.CodeLengths {
			v, n, err := itf8.GetInt32(args[pos:])
			if err != nil {
				return err
			}
			e.CodeLengths[i] = v
			pos += n
		}
		return nil
	case KindByteArrayLen:
		lenEnc, n, err := ReadDescriptor(args)
		if err != nil {
			return err
		}
		valEnc, _, err := ReadDescriptor(args[n:])
		if err != nil {
			return err
		}
		e.LenEncoding, e.ValEncoding = &lenEnc, &valEnc
		return nil
	case KindByteArrayStop:
		if len(args) < 1 {
			return errors.Wrap(cram.ErrInvalidData, "byte_array_stop args truncated")
		}
		e.StopByte = args[0]
		v, _, err := itf8.GetInt32(args[1:])
		e.BlockContentID = v
		return err
	case KindBeta:
		off, n, err := itf8.GetInt32(args)
		if err != nil {
			return err
		}
		bl, _, err := itf8.GetInt32(args[n:])
		e.Offset, e.BitLength = off, bl
		return err
	case KindSubexp:
		off, n, err := itf8.GetInt32(args)
		if err != nil {
			return err
		}
		k, _, err := itf8.GetInt32(args[n:])
		e.Offset, e.K = off, k
		return err
	case KindGolombRice:
		off, n, err := itf8.GetInt32(args)
		if err != nil {
			return err
		}
		k, _, err := itf8.GetInt32(args[n:])
		e.Offset, e.K = off, k
		return err
	case KindGamma:
		off, _, err := itf8.GetInt32(args)
		e.Offset = off
		return err
	default:
		return errors.Wrapf(cram.ErrInvalidData, "unknown encoding kind %d", e.Kind)
	}
}
