package crypto

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type deterministicReader struct {
	next byte
}

func (r *deterministicReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.next
		r.next++
	}
	return len(p), nil
}

func useDeterministicSource(t *testing.T) {
	t.Helper()
	SetRandomSource(&deterministicReader{})
	t.Cleanup(func() {
		SetRandomSource(nil)
	})
}

func TestGeneratePasswordCharsets(t *testing.T) {
	useDeterministicSource(t)

	tests := []struct {
		name    string
		charset Charset
		length  int
		allowed string
	}{
		{"alpha", CharsetAlpha, 16, lowerChars + upperChars},
		{"alnum", CharsetAlnum, 24, lowerChars + upperChars + digitChars},
		{"alnum_sym", CharsetAlnumSym, 32, lowerChars + upperChars + digitChars + symbolChars},
		{"backup", CharsetBackupCode, 10, "ABCDEFGHJKMNPQRSTUVWXYZ23456789"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pass, err := GeneratePassword(tt.length, tt.charset)
			require.NoError(t, err)
			assert.Len(t, pass, tt.length)

			for _, r := range pass {
				assert.True(t, strings.ContainsRune(tt.allowed, r), "rune %q outside allowed set", r)
			}
		})
	}
}

func TestGeneratePasswordInvalidInput(t *testing.T) {
	_, err := GeneratePassword(0, CharsetAlpha)
	assert.Error(t, err)

	_, err = GeneratePassword(10, Charset("invalid"))
	assert.Error(t, err)
}

func TestGeneratorOptionsAlphabet(t *testing.T) {
	opts := DefaultGeneratorOptions()
	alphabet := string(opts.Alphabet())
	for _, r := range similarChars {
		assert.NotContains(t, alphabet, string(r))
	}
	assert.Contains(t, alphabet, "A")
	assert.Contains(t, alphabet, "#")

	digitsOnly := GeneratorOptions{Length: 6, Numbers: true}
	assert.Equal(t, digitChars, string(digitsOnly.Alphabet()))

	custom := GeneratorOptions{Length: 4, CustomCharset: "abab", Uppercase: true}
	assert.Equal(t, "ab", string(custom.Alphabet()))
}

func TestGenerate(t *testing.T) {
	useDeterministicSource(t)

	pass, err := Generate(GeneratorOptions{Length: 20, Numbers: true})
	require.NoError(t, err)
	assert.Len(t, pass, 20)
	for _, r := range pass {
		assert.True(t, r >= '0' && r <= '9')
	}

	_, err = Generate(GeneratorOptions{Length: 8})
	assert.ErrorIs(t, err, errEmptyCharset)

	_, err = Generate(GeneratorOptions{Length: 0, Numbers: true})
	assert.ErrorIs(t, err, errInvalidLength)
}

func BenchmarkGeneratePassword(b *testing.B) {
	SetRandomSource(nil)

	sizes := []int{16, 32, 64}
	for _, size := range sizes {
		b.Run(fmt.Sprintf("len=%d", size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := GeneratePassword(size, CharsetAlnumSym); err != nil {
					b.Fatalf("GeneratePassword() error = %v", err)
				}
			}
		})
	}
}
