// Package domain defines the core data structures of the vault: records,
// the persisted credential, MFA state and audit operations.
package domain

import (
	"encoding/base32"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RecordType selects which payload field of a Record is authoritative.
type RecordType string

const (
	TypePassword RecordType = "password"
	TypeMFA      RecordType = "mfa"
	TypeBase64   RecordType = "base64"
	TypeString   RecordType = "string"
	TypeJSON     RecordType = "json"
)

// RecordTypes lists every known record type in display order.
var RecordTypes = []RecordType{TypePassword, TypeMFA, TypeBase64, TypeString, TypeJSON}

// Valid reports whether t is a known record type.
func (t RecordType) Valid() bool {
	for _, known := range RecordTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Record is a single vault entry. The whole record is encrypted as part of
// the vault container; no field is stored in the clear.
type Record struct {
	ID          string     `json:"id" yaml:"id"`
	Type        RecordType `json:"type" yaml:"type"`
	Website     string     `json:"website" yaml:"website"`
	Username    string     `json:"username" yaml:"username"`
	URL         string     `json:"url" yaml:"url"`
	URLSuffix   string     `json:"urlSuffix" yaml:"url_suffix"`
	ShowURL     bool       `json:"showUrl" yaml:"show_url"`
	Notes       string     `json:"notes" yaml:"notes"`
	Description string     `json:"description" yaml:"description"`

	Password   string `json:"password" yaml:"password,omitempty"`
	Secret     string `json:"secret" yaml:"secret,omitempty"`
	Base64Data string `json:"base64Data" yaml:"base64_data,omitempty"`
	StringData string `json:"stringData" yaml:"string_data,omitempty"`
	JSONData   string `json:"jsonData" yaml:"json_data,omitempty"`

	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updated_at"`
}

// Payload returns the authoritative payload for the record's type.
func (r *Record) Payload() string {
	switch r.Type {
	case TypeMFA:
		return r.Secret
	case TypeBase64:
		return r.Base64Data
	case TypeString:
		return r.StringData
	case TypeJSON:
		return r.JSONData
	default:
		return r.Password
	}
}

// SetPayload stores p in the payload field that is authoritative for the
// record's type.
func (r *Record) SetPayload(p string) {
	switch r.Type {
	case TypeMFA:
		r.Secret = p
	case TypeBase64:
		r.Base64Data = p
	case TypeString:
		r.StringData = p
	case TypeJSON:
		r.JSONData = p
	default:
		r.Password = p
	}
}

// Normalize defaults an empty type to password and clears payload fields
// that are not authoritative for the type.
func (r *Record) Normalize() {
	if r.Type == "" {
		r.Type = TypePassword
	}
	payload := r.Payload()
	r.Password, r.Secret, r.Base64Data, r.StringData, r.JSONData = "", "", "", "", ""
	switch r.Type {
	case TypeMFA:
		r.Secret = strings.ToUpper(strings.ReplaceAll(payload, " ", ""))
	case TypeBase64:
		r.Base64Data = payload
	case TypeString:
		r.StringData = payload
	case TypeJSON:
		r.JSONData = payload
	default:
		r.Password = payload
	}
}

// Validate checks the record at the import/edit boundary. JSON payloads are
// checked for syntax only and kept verbatim.
func (r *Record) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("%w: unknown record type %q", ErrValidation, r.Type)
	}

	switch r.Type {
	case TypeMFA:
		secret := strings.ToUpper(strings.ReplaceAll(r.Secret, " ", ""))
		if secret == "" {
			return fmt.Errorf("%w: mfa record requires a secret", ErrValidation)
		}
		if _, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.TrimRight(secret, "=")); err != nil {
			return fmt.Errorf("%w: mfa secret is not valid base32", ErrValidation)
		}
	case TypeBase64:
		if _, err := base64.StdEncoding.DecodeString(strings.TrimSpace(r.Base64Data)); err != nil {
			return fmt.Errorf("%w: base64 data does not decode: %v", ErrValidation, err)
		}
	case TypeJSON:
		if !json.Valid([]byte(r.JSONData)) {
			return fmt.Errorf("%w: json data is not valid JSON", ErrValidation)
		}
	}

	return nil
}

// SameContent reports whether two records carry the same user-visible data,
// ignoring ID and timestamps.
func (r *Record) SameContent(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.Type == other.Type &&
		r.Website == other.Website &&
		r.Username == other.Username &&
		r.URL == other.URL &&
		r.URLSuffix == other.URLSuffix &&
		r.ShowURL == other.ShowURL &&
		r.Notes == other.Notes &&
		r.Description == other.Description &&
		r.Payload() == other.Payload()
}

// Clone returns a copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	return &c
}

// Statistics is derived from the record set, never stored.
type Statistics struct {
	Total  int                `json:"total"`
	ByType map[RecordType]int `json:"byType"`
}

// NewStatistics returns statistics with a zero count for every known type.
func NewStatistics() Statistics {
	byType := make(map[RecordType]int, len(RecordTypes))
	for _, t := range RecordTypes {
		byType[t] = 0
	}
	return Statistics{ByType: byType}
}

// Operation represents an audit log operation
type Operation struct {
	Type      string    `json:"type"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
}
