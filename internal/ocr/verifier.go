package ocr

import (
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// Field names used in Result.Fields.
const (
	FieldFirstNames   = "first_names"
	FieldLastNames    = "last_names"
	FieldEmployeeCode = "employee_code"
	FieldUniqueID     = "unique_id"
)

// Expected holds the values that must be legible. Empty values are skipped.
type Expected struct {
	FirstNames   string
	LastNames    string
	EmployeeCode string
	UniqueID     string
}

func (e Expected) fields() map[string]string {
	out := map[string]string{}
	for k, v := range map[string]string{
		FieldFirstNames:   e.FirstNames,
		FieldLastNames:    e.LastNames,
		FieldEmployeeCode: e.EmployeeCode,
		FieldUniqueID:     e.UniqueID,
	} {
		if strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	return out
}

// Result is the outcome of Verify.
type Result struct {
	OK      bool
	Message string
	// Fields maps each supplied field to whether it matched.
	Fields map[string]bool
	// Text is the raw OCR output.
	Text string
}

// MessageUnavailable is returned when Tesseract was not found.
const MessageUnavailable = "unavailable"

// Options tunes a Verifier.
type Options struct {
	Similarity float64
	Languages  string
	Fallback   string
}

// DefaultOptions returns spa+eng with a spa fallback.
func DefaultOptions() Options {
	return Options{Similarity: DefaultSimilarity, Languages: "spa+eng", Fallback: "spa"}
}

// Verifier checks rendered carnets for the expected fields.
type Verifier struct {
	engine Engine
	avail  Availability
	opts   Options
	log    zerolog.Logger
}

// NewVerifier wraps engine. When avail is Missing, every Verify returns
// MessageUnavailable without calling the engine.
func NewVerifier(engine Engine, avail Availability, opts Options, log zerolog.Logger) *Verifier {
	if opts.Similarity <= 0 {
		opts.Similarity = DefaultSimilarity
	}
	if opts.Languages == "" {
		opts.Languages = DefaultOptions().Languages
	}
	return &Verifier{engine: engine, avail: avail, opts: opts, log: log.With().Str("component", "ocr").Logger()}
}

// Available reports whether verification can run.
func (v *Verifier) Available() bool {
	return v != nil && v.engine != nil && v.avail.Status == Available
}

// Verify runs OCR on the file at path and matches every supplied field.
func (v *Verifier) Verify(path string, exp Expected) Result {
	if !v.Available() {
		return Result{Message: MessageUnavailable, Fields: map[string]bool{}}
	}

	img, err := LoadPage(path)
	if err != nil {
		return Result{Message: err.Error(), Fields: map[string]bool{}}
	}
	tmp, err := writeTempPNG(Prepare(img), "ocr-verify-*.png")
	if err != nil {
		return Result{Message: err.Error(), Fields: map[string]bool{}}
	}
	defer os.Remove(tmp)

	text, err := v.engine.Text(tmp, v.opts.Languages)
	if err != nil && v.opts.Fallback != "" && v.opts.Fallback != v.opts.Languages {
		v.log.Debug().Err(err).Str("fallback", v.opts.Fallback).Msg("retrying OCR")
		text, err = v.engine.Text(tmp, v.opts.Fallback)
	}
	if err != nil {
		return Result{Message: "ocr failed: " + err.Error(), Fields: map[string]bool{}}
	}

	res := v.MatchFields(text, exp)
	v.log.Debug().Str("file", path).Bool("ok", res.OK).Str("message", res.Message).Msg("verified")
	return res
}

// MatchFields applies Match to each supplied field of exp.
func (v *Verifier) MatchFields(text string, exp Expected) Result {
	res := Result{OK: true, Fields: map[string]bool{}, Text: text}
	var missed []string
	for name, want := range exp.fields() {
		ok := Match(text, want, v.opts.Similarity) != NoMatch
		res.Fields[name] = ok
		if !ok {
			res.OK = false
			missed = append(missed, name)
		}
	}
	if res.OK {
		res.Message = "ok"
		return res
	}
	sort.Strings(missed)
	res.Message = "not found: " + strings.Join(missed, ", ")
	return res
}
