package vault

import (
	"encoding/binary"
)

// header: version(1) + memory(4) + iterations(4) + parallelism(1)
const envelopeHeaderSize = 1 + 4 + 4 + 1

// EnvelopeToBytes serializes an envelope for storage.
//
// Layout: version | memory | iterations | parallelism | salt | nonce | ciphertext | tag,
// each variable field prefixed with its little-endian uint32 length.
func EnvelopeToBytes(envelope *Envelope) []byte {
	size := envelopeHeaderSize + 4*4 +
		len(envelope.Salt) + len(envelope.Nonce) + len(envelope.Ciphertext) + len(envelope.Tag)
	buf := make([]byte, 0, size)

	buf = append(buf, envelope.Version)
	buf = binary.LittleEndian.AppendUint32(buf, envelope.KDFParams.Memory)
	buf = binary.LittleEndian.AppendUint32(buf, envelope.KDFParams.Iterations)
	buf = append(buf, envelope.KDFParams.Parallelism)

	for _, field := range [][]byte{envelope.Salt, envelope.Nonce, envelope.Ciphertext, envelope.Tag} {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(field)))
		buf = append(buf, field...)
	}

	return buf
}

// EnvelopeFromBytes deserializes an envelope. Truncated input, trailing bytes
// and unknown versions are rejected.
func EnvelopeFromBytes(data []byte) (*Envelope, error) {
	if len(data) < envelopeHeaderSize+4*4 {
		return nil, ErrInvalidEnvelope
	}
	if data[0] != EnvelopeVersion {
		return nil, ErrInvalidVersion
	}

	r := envelopeReader{data: data, offset: 1}
	envelope := &Envelope{Version: data[0]}
	envelope.KDFParams.Memory = r.uint32()
	envelope.KDFParams.Iterations = r.uint32()
	envelope.KDFParams.Parallelism = r.byte()

	envelope.Salt = r.field()
	envelope.Nonce = r.field()
	envelope.Ciphertext = r.field()
	envelope.Tag = r.field()

	if r.bad || r.offset != len(data) {
		return nil, ErrInvalidEnvelope
	}
	return envelope, nil
}

type envelopeReader struct {
	data   []byte
	offset int
	bad    bool
}

func (r *envelopeReader) byte() byte {
	if r.bad || r.offset+1 > len(r.data) {
		r.bad = true
		return 0
	}
	b := r.data[r.offset]
	r.offset++
	return b
}

func (r *envelopeReader) uint32() uint32 {
	if r.bad || r.offset+4 > len(r.data) {
		r.bad = true
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.offset:])
	r.offset += 4
	return v
}

func (r *envelopeReader) field() []byte {
	n := int(r.uint32())
	if r.bad || n < 0 || n > len(r.data)-r.offset {
		r.bad = true
		return nil
	}
	out := make([]byte, n)
	copy(out, r.data[r.offset:r.offset+n])
	r.offset += n
	return out
}
