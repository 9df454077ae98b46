package transfer

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vault-cli/ciphora/internal/domain"
)

// DocumentVersion is the version of the plain json and yaml exports.
const DocumentVersion = 1

// document is the plain json and yaml export layout.
type document struct {
	Version    int              `json:"version" yaml:"version"`
	ExportedAt time.Time        `json:"exportedAt" yaml:"exported_at"`
	Count      int              `json:"count" yaml:"count"`
	Records    []*domain.Record `json:"records" yaml:"records"`
}

var (
	genericHeader   = []string{"type", "website", "username", "url", "url_suffix", "show_url", "notes", "description", "payload"}
	chromeHeader    = []string{"name", "url", "username", "password", "note"}
	bitwardenHeader = []string{"folder", "favorite", "type", "name", "notes", "fields", "reprompt", "login_uri", "login_username", "login_password", "login_totp"}
)

const bitwardenTypeField = "ciphora_type"

var utf8BOM = []byte("\xef\xbb\xbf")

// encode renders records in a plain format. The second result counts
// records the format cannot represent.
func encode(format Format, records []*domain.Record, now time.Time) ([]byte, int, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(newDocument(records, now), "", "  ")
		return data, 0, err
	case FormatYAML:
		data, err := yaml.Marshal(newDocument(records, now))
		return data, 0, err
	case FormatCSV:
		return writeCSV(genericHeader, records, genericRow)
	case FormatChrome:
		return writeCSV(chromeHeader, records, chromeRow)
	case FormatBitwarden:
		return writeCSV(bitwardenHeader, records, bitwardenRow)
	case FormatBackup:
		return nil, 0, fmt.Errorf("%w: %s is written by the backup command", domain.ErrValidation, format)
	default:
		return nil, 0, fmt.Errorf("%w: unknown format %q", domain.ErrValidation, format)
	}
}

// decode parses a plain source into normalized, validated records.
func decode(format Format, source []byte) ([]*domain.Record, error) {
	var (
		records []*domain.Record
		err     error
	)
	switch format {
	case FormatJSON:
		records, err = decodeJSON(source)
	case FormatYAML:
		records, err = decodeYAML(source)
	case FormatCSV:
		records, err = readCSV(source, []string{"payload"}, genericRecord)
	case FormatChrome:
		records, err = readCSV(source, []string{"url", "password"}, chromeRecord)
	case FormatBitwarden:
		records, err = readCSV(source, []string{"type", "name"}, bitwardenRecord)
	case FormatBackup:
		return nil, fmt.Errorf("%w: %s is read by the restore command", domain.ErrValidation, format)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", domain.ErrValidation, format)
	}
	if err != nil {
		return nil, err
	}

	for i, r := range records {
		if r == nil {
			return nil, fmt.Errorf("%w: record %d is empty", domain.ErrValidation, i+1)
		}
		r.Normalize()
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
	}
	return records, nil
}

func newDocument(records []*domain.Record, now time.Time) *document {
	if records == nil {
		records = []*domain.Record{}
	}
	return &document{
		Version:    DocumentVersion,
		ExportedAt: now.UTC(),
		Count:      len(records),
		Records:    records,
	}
}

func decodeJSON(source []byte) ([]*domain.Record, error) {
	trimmed := bytes.TrimSpace(source)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var records []*domain.Record
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("%w: json: %v", domain.ErrValidation, err)
		}
		return records, nil
	}

	var doc document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("%w: json: %v", domain.ErrValidation, err)
	}
	return checkDocument(&doc)
}

func decodeYAML(source []byte) ([]*domain.Record, error) {
	var doc document
	if err := yaml.Unmarshal(source, &doc); err != nil {
		return nil, fmt.Errorf("%w: yaml: %v", domain.ErrValidation, err)
	}
	return checkDocument(&doc)
}

func checkDocument(doc *document) ([]*domain.Record, error) {
	if doc.Version != 0 && doc.Version != DocumentVersion {
		return nil, fmt.Errorf("%w: unsupported export version %d", domain.ErrValidation, doc.Version)
	}
	if doc.Records == nil {
		return []*domain.Record{}, nil
	}
	return doc.Records, nil
}

// rowFunc renders one record; ok is false when the format has no place
// for it.
type rowFunc func(r *domain.Record) (row []string, ok bool)

func writeCSV(header []string, records []*domain.Record, row rowFunc) ([]byte, int, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, 0, err
	}

	skipped := 0
	for _, r := range records {
		fields, ok := row(r)
		if !ok {
			skipped++
			continue
		}
		if err := w.Write(fields); err != nil {
			return nil, 0, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), skipped, nil
}

// csvRow gives access to a data row by lower-cased header name.
type csvRow struct {
	index  map[string]int
	fields []string
}

func (r csvRow) get(name string) string {
	i, ok := r.index[name]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

// raw returns the field untrimmed, for payloads.
func (r csvRow) raw(name string) string {
	i, ok := r.index[name]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return r.fields[i]
}

// recordFunc converts a row; a nil record skips the row.
type recordFunc func(row csvRow) (*domain.Record, error)

func readCSV(source []byte, required []string, convert recordFunc) ([]*domain.Record, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(source, utf8BOM)))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: csv file is empty", domain.ErrValidation)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: csv header: %v", domain.ErrValidation, err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range required {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("%w: csv header is missing column %q", domain.ErrValidation, name)
		}
	}

	records := []*domain.Record{}
	for row := 1; ; row++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: csv: %v", domain.ErrValidation, err)
		}
		if isBlank(fields) {
			continue
		}

		record, err := convert(csvRow{index: index, fields: fields})
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		if record != nil {
			records = append(records, record)
		}
	}
	return records, nil
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func genericRow(r *domain.Record) ([]string, bool) {
	return []string{
		string(r.Type),
		r.Website,
		r.Username,
		r.URL,
		r.URLSuffix,
		strconv.FormatBool(r.ShowURL),
		r.Notes,
		r.Description,
		r.Payload(),
	}, true
}

func genericRecord(row csvRow) (*domain.Record, error) {
	r := &domain.Record{
		Type:        domain.RecordType(strings.ToLower(row.get("type"))),
		Website:     row.get("website"),
		Username:    row.get("username"),
		URL:         row.get("url"),
		URLSuffix:   row.get("url_suffix"),
		Notes:       row.get("notes"),
		Description: row.get("description"),
	}
	if r.Type == "" {
		r.Type = domain.TypePassword
	}
	if raw := row.get("show_url"); raw != "" {
		show, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: show_url %q is not a boolean", domain.ErrValidation, raw)
		}
		r.ShowURL = show
	}
	r.SetPayload(row.raw("payload"))
	return r, nil
}

func chromeRow(r *domain.Record) ([]string, bool) {
	if r.Type != domain.TypePassword {
		return nil, false
	}
	return []string{r.Website, r.URL, r.Username, r.Password, r.Notes}, true
}

func chromeRecord(row csvRow) (*domain.Record, error) {
	r := &domain.Record{
		Type:     domain.TypePassword,
		Website:  row.get("name"),
		URL:      row.get("url"),
		Username: row.get("username"),
		Password: row.raw("password"),
		Notes:    row.get("note"),
	}
	if r.Website == "" {
		r.Website = hostOf(r.URL)
	}
	r.ShowURL = r.URL != ""
	return r, nil
}

func bitwardenRow(r *domain.Record) ([]string, bool) {
	switch r.Type {
	case domain.TypePassword:
		return []string{"", "", "login", r.Website, r.Notes, "", "0", r.URL, r.Username, r.Password, ""}, true
	case domain.TypeMFA:
		return []string{"", "", "login", r.Website, r.Notes, "", "0", r.URL, r.Username, "", r.Secret}, true
	case domain.TypeString:
		return []string{"", "", "note", r.Website, r.StringData, "", "0", "", "", "", ""}, true
	case domain.TypeBase64, domain.TypeJSON:
		fields := bitwardenTypeField + ": " + string(r.Type)
		return []string{"", "", "note", r.Website, r.Payload(), fields, "0", "", "", "", ""}, true
	default:
		return nil, false
	}
}

func bitwardenRecord(row csvRow) (*domain.Record, error) {
	name := row.get("name")
	switch strings.ToLower(row.get("type")) {
	case "login":
		r := &domain.Record{
			Type:     domain.TypePassword,
			Website:  name,
			URL:      row.get("login_uri"),
			Username: row.get("login_username"),
			Password: row.raw("login_password"),
			Notes:    row.get("notes"),
		}
		if totp := row.get("login_totp"); totp != "" && r.Password == "" {
			r.Type = domain.TypeMFA
			r.Secret = totpSecret(totp)
		}
		if r.Website == "" {
			r.Website = hostOf(r.URL)
		}
		r.ShowURL = r.URL != ""
		return r, nil
	case "note":
		r := &domain.Record{Type: domain.TypeString, Website: name}
		if t := bitwardenField(row.get("fields"), bitwardenTypeField); t != "" {
			r.Type = domain.RecordType(t)
		}
		r.SetPayload(row.raw("notes"))
		return r, nil
	default:
		// cards and identities have no record type
		return nil, nil
	}
}

// bitwardenField looks up a "name: value" line in the fields column.
func bitwardenField(fields, name string) string {
	for _, line := range strings.Split(fields, "\n") {
		k, v, ok := strings.Cut(line, ":")
		if ok && strings.TrimSpace(k) == name {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// totpSecret accepts a bare secret or an otpauth:// URI.
func totpSecret(raw string) string {
	if !strings.HasPrefix(strings.ToLower(raw), "otpauth://") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Query().Get("secret")
}

func hostOf(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
