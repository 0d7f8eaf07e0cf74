package cram

import "errors"

// Error taxonomy. These are sentinels: callers distinguish them
// with errors.Is; package code wraps them with github.com/pkg/errors to add
// record/field context before returning.
var (
	// ErrMissingDataSeriesEncoding is returned when a record requires a
	// data series for which the DataSeriesEncodingMap has no Encoding.
	ErrMissingDataSeriesEncoding = errors.New("cram: missing data series encoding")

	// ErrMissingExternalBlock is returned when an Encoding routes to an
	// external block_content_id that has no open sink.
	ErrMissingExternalBlock = errors.New("cram: missing external block")

	// ErrMissingTagEncoding is returned when a tag IDs dictionary line
	// references a tag with no entry in the TagEncodingMap.
	ErrMissingTagEncoding = errors.New("cram: missing tag encoding")

	// ErrInvalidInput covers out-of-range conversions, AP-delta
	// both-or-neither violations, and unknown feature codes.
	ErrInvalidInput = errors.New("cram: invalid input")

	// ErrInvalidData covers malformed wire data: unknown encoding kind,
	// unknown DSEM/preservation/tag key, truncated input.
	ErrInvalidData = errors.New("cram: invalid data")

	// ErrTagLineNotFound is returned when a record's tag set does not
	// match any line in the TagIdsDictionary.
	ErrTagLineNotFound = errors.New("cram: tag line not found in dictionary")
)
