// Package ocr reads text back from rendered carnets with Tesseract and
// decides whether the expected employee fields are legible.
//
// Tesseract must be installed with the Spanish and English language data:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-spa tesseract-ocr-eng
//   - macOS: brew install tesseract tesseract-lang
//   - Windows: https://github.com/UB-Mannheim/tesseract/wiki
//
// Probe looks for the binary on PATH and in the usual install locations.
// When it is missing, a Verifier still answers every call, with
// Result{OK: false, Message: "unavailable"}, so callers can keep producing
// carnets without verification.
//
// # Matching
//
// Extracted text and each expected value are normalized (whitespace runs
// collapsed, upper-cased, trimmed) and a field matches when any of these hold:
//
//  1. the value is a substring of the text
//  2. the value is a substring once spaces are removed from both
//  3. enough of the value's words are contained in, or contain, a word of the
//     text (the ratio is the configured similarity)
//  4. for short codes with a digit, at least 70% of the value's characters
//     appear somewhere in the space-free text
//
// # Inputs
//
// PNG and JPEG files are read directly. For PDF files the first page is
// rasterized at 300 DPI. Every input is converted to high-contrast grayscale
// and written to a temporary PNG for Tesseract, which needs a file path.
package ocr
