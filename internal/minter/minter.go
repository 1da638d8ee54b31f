// Package minter generates unique identifiers for barcode records.
//
// An identifier is drawn from one of three alphabets, optionally prefixed with
// up to three letters of the holder's name, and retried against an existence
// probe until an unused value is found.
package minter

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ironsheep/carnet-tools/internal/common"
)

// Charset selects the alphabet identifiers are drawn from.
type Charset string

const (
	Alphanumeric Charset = "alphanumeric"
	Numeric      Charset = "numeric"
	Letters      Charset = "letters"
)

const (
	digits  = "0123456789"
	letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// MaxAttempts bounds the collision retry loop.
	MaxAttempts = 1000

	// DefaultLength is the length used when Options.Length is zero.
	DefaultLength = 6

	maxPrefix = 3
)

// Alphabet returns the characters of the charset.
func (c Charset) Alphabet() (string, error) {
	switch c {
	case Alphanumeric, "":
		return digits + letters, nil
	case Numeric:
		return digits, nil
	case Letters:
		return letters, nil
	default:
		return "", fmt.Errorf("%w: unknown charset %q", common.ErrFormat, string(c))
	}
}

// ParseCharset maps user input ("alnum", "numeric", "letters", ...) to a Charset.
func ParseCharset(s string) (Charset, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "alphanumeric", "alnum", "alfanumerico", "alfanumérico":
		return Alphanumeric, nil
	case "numeric", "numerico", "numérico", "digits":
		return Numeric, nil
	case "letters", "letras", "alpha":
		return Letters, nil
	}
	return "", fmt.Errorf("%w: unknown charset %q", common.ErrFormat, s)
}

// ExistsFunc reports whether a candidate identifier is already taken.
type ExistsFunc func(candidate string) (bool, error)

// Options controls Mint.
type Options struct {
	Charset Charset
	Length  int

	// IncludeName prefixes the identifier with up to three letters of Name.
	IncludeName bool
	Name        string

	// CustomText replaces the random body. Every character must belong to
	// the charset's alphabet; out-of-alphabet text is rejected.
	CustomText string
}

// Minter draws identifiers. The zero value uses crypto/rand.
type Minter struct {
	// Intn returns a uniform integer in [0, n). Tests replace it to force collisions.
	Intn func(n int) (int, error)
}

// New returns a Minter backed by crypto/rand.
func New() *Minter {
	return &Minter{Intn: cryptoIntn}
}

func cryptoIntn(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// Mint returns an identifier that probe reports as unused.
//
// A nil probe accepts the first candidate. After MaxAttempts collisions Mint
// fails with common.ErrIDSpaceExhausted. When the candidate is fully
// determined by Name and CustomText, the first collision is final.
func (m *Minter) Mint(opts Options, probe ExistsFunc) (string, error) {
	alphabet, err := opts.Charset.Alphabet()
	if err != nil {
		return "", err
	}
	length := opts.Length
	if length <= 0 {
		length = DefaultLength
	}

	custom := strings.ToUpper(strings.TrimSpace(opts.CustomText))
	for _, r := range custom {
		if !strings.ContainsRune(alphabet, r) {
			return "", fmt.Errorf("%w: custom text %q has characters outside the %s alphabet",
				common.ErrFormat, opts.CustomText, opts.Charset)
		}
	}

	prefix := ""
	if opts.IncludeName && opts.Name != "" {
		prefix = NamePrefix(opts.Name, alphabet)
	}

	for attempt := 0; attempt < MaxAttempts; attempt++ {
		candidate, random, err := m.candidate(prefix, custom, alphabet, length)
		if err != nil {
			return "", err
		}
		if probe == nil {
			return candidate, nil
		}
		taken, err := probe(candidate)
		if err != nil {
			return "", fmt.Errorf("probe %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		if !random {
			break
		}
	}
	return "", fmt.Errorf("%w after %d attempts", common.ErrIDSpaceExhausted, MaxAttempts)
}

// candidate builds one identifier and reports whether it contains random characters.
func (m *Minter) candidate(prefix, custom, alphabet string, length int) (string, bool, error) {
	if custom != "" {
		return prefix + custom, false, nil
	}

	remaining := length - len(prefix)
	if remaining <= 0 {
		// A prefix that fills the whole length still gets one random char.
		remaining = 1
	}

	var b strings.Builder
	b.Grow(len(prefix) + remaining)
	b.WriteString(prefix)
	for i := 0; i < remaining; i++ {
		idx, err := m.intn(len(alphabet))
		if err != nil {
			return "", false, fmt.Errorf("random source: %w", err)
		}
		b.WriteByte(alphabet[idx])
	}
	return b.String(), true, nil
}

func (m *Minter) intn(n int) (int, error) {
	if m.Intn == nil {
		return cryptoIntn(n)
	}
	return m.Intn(n)
}

// NamePrefix returns up to three upper-case letters from name that belong to
// alphabet. Accents are folded first, so "Ñúñez" yields "NUN".
func NamePrefix(name, alphabet string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	for _, r := range folded {
		if b.Len() == maxPrefix {
			break
		}
		if !unicode.IsLetter(r) {
			continue
		}
		r = unicode.ToUpper(r)
		if strings.ContainsRune(alphabet, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
