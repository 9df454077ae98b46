package vault

// MetadataInfo describes the cryptographic header of a stored envelope
// without decrypting it.
type MetadataInfo struct {
	Cipher      string       `json:"cipher"`
	Version     uint8        `json:"version"`
	KDF         Argon2Params `json:"kdf"`
	SaltLength  int          `json:"salt_length"`
	PayloadSize int          `json:"payload_size"`
}

// DescribeEnvelope decodes the header of a serialized envelope.
func DescribeEnvelope(data []byte) (*MetadataInfo, error) {
	envelope, err := EnvelopeFromBytes(data)
	if err != nil {
		return nil, err
	}

	return &MetadataInfo{
		Cipher:      "AES-256-GCM",
		Version:     envelope.Version,
		KDF:         envelope.KDFParams,
		SaltLength:  len(envelope.Salt),
		PayloadSize: len(envelope.Ciphertext),
	}, nil
}
