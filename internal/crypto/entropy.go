// Package crypto generates random passwords and one-time codes from a
// configurable character set.
package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"sync"
)

// Charset defines the character set to use for password generation
type Charset string

const (
	// CharsetAlpha uses only alphabetic characters (a-z, A-Z)
	CharsetAlpha Charset = "alpha"
	// CharsetAlnum uses alphanumeric characters (a-z, A-Z, 0-9)
	CharsetAlnum Charset = "alnum"
	// CharsetAlnumSym uses alphanumeric and special characters
	CharsetAlnumSym Charset = "alnumsym"
	// CharsetBackupCode uses upper-case letters and digits without look-alikes
	CharsetBackupCode Charset = "backup"
)

const (
	lowerChars   = "abcdefghijklmnopqrstuvwxyz"
	upperChars   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars   = "0123456789"
	symbolChars  = "!@#$%^&*()-_=+[]{}<>?,.:;/'\"|\\~"
	similarChars = "il1Lo0O"
)

var (
	errInvalidLength  = errors.New("length must be positive")
	errUnknownCharset = errors.New("unknown charset")
	errEmptyCharset   = errors.New("generator options select no characters")
)

var (
	charsetLookup = map[Charset][]rune{
		CharsetAlpha:      []rune(lowerChars + upperChars),
		CharsetAlnum:      []rune(lowerChars + upperChars + digitChars),
		CharsetAlnumSym:   []rune(lowerChars + upperChars + digitChars + symbolChars),
		CharsetBackupCode: []rune("ABCDEFGHJKMNPQRSTUVWXYZ23456789"),
	}
	randSource io.Reader = rand.Reader
	randMux    sync.RWMutex
)

// GeneratorOptions mirrors the password generator settings.
type GeneratorOptions struct {
	Length         int    `yaml:"length" json:"length"`
	Uppercase      bool   `yaml:"uppercase" json:"uppercase"`
	Lowercase      bool   `yaml:"lowercase" json:"lowercase"`
	Numbers        bool   `yaml:"numbers" json:"numbers"`
	Symbols        bool   `yaml:"symbols" json:"symbols"`
	ExcludeSimilar bool   `yaml:"exclude_similar" json:"excludeSimilar"`
	CustomCharset  string `yaml:"custom_charset" json:"customCharset"`
}

// DefaultGeneratorOptions returns 16 characters from every class, without
// look-alike characters.
func DefaultGeneratorOptions() GeneratorOptions {
	return GeneratorOptions{
		Length:         16,
		Uppercase:      true,
		Lowercase:      true,
		Numbers:        true,
		Symbols:        true,
		ExcludeSimilar: true,
	}
}

// Alphabet returns the characters selected by the options. A custom charset
// replaces the class flags.
func (o GeneratorOptions) Alphabet() []rune {
	var b strings.Builder
	if o.CustomCharset != "" {
		b.WriteString(o.CustomCharset)
	} else {
		if o.Lowercase {
			b.WriteString(lowerChars)
		}
		if o.Uppercase {
			b.WriteString(upperChars)
		}
		if o.Numbers {
			b.WriteString(digitChars)
		}
		if o.Symbols {
			b.WriteString(symbolChars)
		}
	}

	seen := make(map[rune]bool)
	var out []rune
	for _, r := range b.String() {
		if seen[r] || (o.ExcludeSimilar && strings.ContainsRune(similarChars, r)) {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

// SetRandomSource sets the random number generator source.
// If r is nil, it resets to the default crypto/rand.Reader.
func SetRandomSource(r io.Reader) {
	randMux.Lock()
	if r == nil {
		randSource = rand.Reader
	} else {
		randSource = r
	}
	randMux.Unlock()
}

// GeneratePassword generates a cryptographically secure random password with
// the specified length and named character set.
func GeneratePassword(length int, charset Charset) (string, error) {
	chars, ok := charsetLookup[charset]
	if !ok {
		return "", errUnknownCharset
	}
	return generate(length, chars)
}

// Generate produces a password according to the generator options.
func Generate(opts GeneratorOptions) (string, error) {
	chars := opts.Alphabet()
	if len(chars) == 0 {
		return "", errEmptyCharset
	}
	return generate(opts.Length, chars)
}

func generate(length int, chars []rune) (string, error) {
	if length <= 0 {
		return "", errInvalidLength
	}

	randMux.RLock()
	src := randSource
	randMux.RUnlock()

	var b strings.Builder
	b.Grow(length)

	for i := 0; i < length; i++ {
		idx, err := randomIndex(src, len(chars))
		if err != nil {
			return "", err
		}
		b.WriteRune(chars[idx])
	}

	return b.String(), nil
}

// randomIndex returns a uniform index in [0, max) using rejection sampling.
func randomIndex(r io.Reader, max int) (int, error) {
	if max <= 0 {
		return 0, errInvalidLength
	}

	if max <= 256 {
		var buf [1]byte
		usable := 256 - (256 % max)
		for {
			if _, err := io.ReadFull(r, buf[:]); err != nil {
				return 0, err
			}
			if int(buf[0]) < usable {
				return int(buf[0]) % max, nil
			}
		}
	}

	var buf [4]byte
	const maxUint32 = ^uint32(0)
	limit := maxUint32 - (maxUint32 % uint32(max))
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		val := binary.BigEndian.Uint32(buf[:])
		if val < limit {
			return int(val % uint32(max)), nil
		}
	}
}
