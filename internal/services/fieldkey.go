package services

import (
	"bytes"
	"encoding/json"
	"strings"
)

// BatchType is the upstream batch type_id. It is passed in by the caller and
// never guessed from the record.
type BatchType int

const (
	BatchSingle  BatchType = 1
	BatchCompare BatchType = 2
)

func (t BatchType) IsComparison() bool { return t == BatchCompare }

// FieldKind is how a decoded record value is displayed.
type FieldKind string

const (
	KindText  FieldKind = "text"
	KindURL   FieldKind = "url"
	KindImage FieldKind = "img"
)

// FieldDescriptor is one column of an uploaded row, decoded from its header.
// Group is nil outside comparison batches or when the key carries no digit.
type FieldDescriptor struct {
	Key   string    `json:"key"`
	Kind  FieldKind `json:"type"`
	Group *int      `json:"group"`
	Value string    `json:"value"`
}

// RecordFallbackKey names the single field produced for a payload that is not
// a JSON object.
const RecordFallbackKey = "data"

// DecodeKey parses a column name of the form name[N]_text|_url|_img (or a bare
// name). It never fails: unknown suffixes decode as text.
func DecodeKey(key string, comparison bool) FieldDescriptor {
	segments := strings.Split(key, "_")
	out := FieldDescriptor{Key: key, Kind: KindText}

	var group *int
	if len(segments) == 1 {
		group = trailingDigit(key)
	} else {
		group = trailingDigit(segments[len(segments)-2])
		switch segments[len(segments)-1] {
		case "text":
			out.Kind = KindText
			out.Key = strings.Join(segments[:len(segments)-1], "_")
		case "url":
			out.Kind = KindURL
			out.Key = strings.Join(segments[:len(segments)-1], "_")
		case "img":
			out.Kind = KindImage
			out.Key = strings.Join(segments[:len(segments)-1], "_")
		default:
			group = trailingDigit(key)
		}
	}
	if comparison {
		out.Group = group
	}
	return out
}

func trailingDigit(s string) *int {
	if s == "" {
		return nil
	}
	c := s[len(s)-1]
	if c < '0' || c > '9' {
		return nil
	}
	d := int(c - '0')
	return &d
}

// DecodeRecord decodes a raw row (a JSON object of column -> value) into
// descriptors, keeping the column order of the source document. Keys are
// trimmed before decoding. Non-string values keep their JSON text; null
// becomes "". A payload that is not a JSON object yields one text field under
// RecordFallbackKey holding the payload verbatim.
func DecodeRecord(data string, batch BatchType) []FieldDescriptor {
	fields, ok := decodeObject(data, batch.IsComparison())
	if !ok {
		return []FieldDescriptor{{Key: RecordFallbackKey, Kind: KindText, Value: data}}
	}
	return fields
}

func decodeObject(data string, comparison bool) ([]FieldDescriptor, bool) {
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, false
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, false
	}
	fields := []FieldDescriptor{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, ok := tok.(string)
		if !ok {
			return nil, false
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, false
		}
		fd := DecodeKey(strings.TrimSpace(key), comparison)
		fd.Value = rawToString(raw)
		fields = append(fields, fd)
	}
	if _, err := dec.Token(); err != nil {
		return nil, false
	}
	return fields, true
}

func rawToString(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return string(trimmed)
	}
	return buf.String()
}
