package util

import "errors"

var (
	ErrExtraction        = errors.New("extraction failure")
	ErrNoExtractableText = errors.New("no extractable text found in source")
	ErrGeneration        = errors.New("generation failure")
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failure")
	ErrCursorConflict    = errors.New("book cursor moved concurrently")
)
