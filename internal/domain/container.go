package domain

import (
	"encoding/json"
	"fmt"
)

// ContainerVersion is the version of the plaintext record document.
const ContainerVersion = 1

// Container is the plaintext document sealed inside the vault envelope.
type Container struct {
	Version int       `json:"version"`
	Records []*Record `json:"records"`
}

// NewContainer wraps records in a current-version container.
func NewContainer(records []*Record) *Container {
	if records == nil {
		records = []*Record{}
	}
	return &Container{Version: ContainerVersion, Records: records}
}

// Marshal serializes the container.
func (c *Container) Marshal() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode container: %w", err)
	}
	return data, nil
}

// UnmarshalContainer parses a decrypted container. Unknown versions and
// malformed documents fail with ErrFormat.
func UnmarshalContainer(data []byte) (*Container, error) {
	var c Container
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: container: %v", ErrFormat, err)
	}
	if c.Version != ContainerVersion {
		return nil, fmt.Errorf("%w: unsupported container version %d", ErrFormat, c.Version)
	}
	if c.Records == nil {
		c.Records = []*Record{}
	}
	return &c, nil
}
