// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package cram defines the domain types shared by the CRAM container/slice
// codec: genomic positions, the five-symbol base alphabet, and the
// sentinel values CRAM uses in place of Go's zero values.
//
// The codec itself lives in the subpackages: itf8 and bitio are the wire
// primitives, codec is the encoding algebra, dsem/tagenc/preservation
// assemble the per-slice compression header, substitution and feature
// implement the two pieces of domain logic the header depends on, aac is
// the adaptive range coder, and record is the driver that ties all of the
// above together into one alignment record at a time.
package cram
