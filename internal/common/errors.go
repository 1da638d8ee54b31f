// Package common defines the sentinel error kinds and the progress types
// shared by every layer of carnet-tools. Callers should use errors.Is to match
// the errors; concrete errors wrap one (or more) of them with context.
package common

import "errors"

var (
	// Storage-level errors: SQLite failures, missing directories, refused backups.
	ErrStorage  = errors.New("storage error")
	ErrNotFound = errors.New("not found")

	// Barcode engine errors.
	ErrFormat       = errors.New("invalid payload for barcode format")
	ErrCorruptImage = errors.New("corrupt barcode image")
	ErrVerification = errors.New("barcode round-trip verification failed")

	// ErrOCRUnavailable marks a verifier built without a Tesseract install.
	// Verify never returns it; it reports "unavailable" in its result instead.
	ErrOCRUnavailable = errors.New("ocr unavailable")

	// Rendering errors. A failed render is retried by the orchestrator.
	ErrRenderFailed = errors.New("render failed")

	// Workflow errors.
	ErrCancelled        = errors.New("operation cancelled")
	ErrIDSpaceExhausted = errors.New("unique id space exhausted")
	ErrImportValidation = errors.New("import validation failed")
)
