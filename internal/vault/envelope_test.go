package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeSerialization(t *testing.T) {
	original := &Envelope{
		Version:    EnvelopeVersion,
		KDFParams:  DefaultArgon2Params(),
		Salt:       []byte("0123456789abcdef0123456789abcdef"),
		Nonce:      []byte("nonce-12byte"),
		Ciphertext: []byte("ciphertext bytes"),
		Tag:        []byte("tag-sixteen-byte"),
	}

	data := EnvelopeToBytes(original)

	decoded, err := EnvelopeFromBytes(data)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestEnvelopeEmptySalt(t *testing.T) {
	original := &Envelope{
		Version:    EnvelopeVersion,
		KDFParams:  DefaultArgon2Params(),
		Salt:       []byte{},
		Nonce:      make([]byte, NonceSize),
		Ciphertext: []byte{},
		Tag:        make([]byte, TagSize),
	}

	decoded, err := EnvelopeFromBytes(EnvelopeToBytes(original))
	require.NoError(t, err)
	assert.Empty(t, decoded.Salt)
	assert.Empty(t, decoded.Ciphertext)
	assert.Len(t, decoded.Tag, TagSize)
}

func TestEnvelopeFromBytesOversizedLength(t *testing.T) {
	data := EnvelopeToBytes(&Envelope{
		Version: EnvelopeVersion,
		Nonce:   make([]byte, NonceSize),
		Tag:     make([]byte, TagSize),
	})
	// salt length field starts right after the header
	data[envelopeHeaderSize] = 0xff
	data[envelopeHeaderSize+1] = 0xff

	_, err := EnvelopeFromBytes(data)
	assert.ErrorIs(t, err, ErrInvalidEnvelope)
}

func TestEnvelopeFromBytesUnknownVersion(t *testing.T) {
	data := EnvelopeToBytes(&Envelope{Version: 9, Nonce: make([]byte, NonceSize), Tag: make([]byte, TagSize)})

	_, err := EnvelopeFromBytes(data)
	assert.ErrorIs(t, err, ErrInvalidVersion)
}
