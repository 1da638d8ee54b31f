// Package barcode encodes 1D barcodes to captioned PNG files and proves each
// file decodes back to its payload.
//
// # Pipeline
//
// Engine.Encode runs, in order:
//
//  1. Payload validation against the symbology (Code128 up to 80 chars,
//     Code39 up to 43, EAN13 exactly 13 digits, EAN8 exactly 8).
//  2. Symbol encoding with no library text, scaled to whole-pixel modules
//     and padded with a quiet zone.
//  3. An optional caption drawn centered under the bars.
//  4. PNG save at default compression.
//  5. An integrity check: non-empty, decodable, at least 10 x 10 px.
//  6. A round-trip decode of the saved file; a mismatch removes the file.
//  7. A non-fatal quality audit, logged.
//
// # Errors
//
// Validation failures wrap common.ErrFormat, integrity failures
// common.ErrCorruptImage and decode mismatches common.ErrVerification.
package barcode
