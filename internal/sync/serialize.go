package sync

import (
	"encoding/json"
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

// codec keeps numbers as json.Number so identifiers survive the round trip
// through map[string]any unchanged.
var codec = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// Record is the flat transport form of one entity.
type Record map[string]any

// Serialize renders entity into a Record holding exactly fields. Fields the
// entity does not carry are sent as null.
func Serialize(entity any, fields []string) (Record, error) {
	data, err := codec.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("serialize %T: %w", entity, err)
	}

	full := make(map[string]any)
	if err := codec.Unmarshal(data, &full); err != nil {
		return nil, fmt.Errorf("serialize %T: %w", entity, err)
	}

	rec := make(Record, len(fields))
	for _, f := range fields {
		rec[f] = full[f]
	}
	return rec, nil
}

// StripID removes the local identifier before a create.
func (r Record) StripID() {
	delete(r, "id")
}

// ID reads an identifier field. ok is false for null or absent values.
func (r Record) ID(field string) (int64, bool) {
	switch v := r[field].(type) {
	case interface{ Int64() (int64, error) }:
		id, err := v.Int64()
		return id, err == nil
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		return id, err == nil
	default:
		return 0, false
	}
}

// parseRemoteID extracts the identifier the home base assigned to a created
// record. Some endpoints wrap the object under its kind, e.g. {"action": {"id": 3}}.
func parseRemoteID(body []byte, key string) (int64, error) {
	var top map[string]json.RawMessage
	if err := codec.Unmarshal(body, &top); err != nil {
		return 0, fmt.Errorf("parse remote response: %w", err)
	}

	if raw, ok := top["id"]; ok {
		return parseIDValue(raw)
	}
	if raw, ok := top[key]; ok && key != "" {
		var nested map[string]json.RawMessage
		if err := codec.Unmarshal(raw, &nested); err == nil {
			if id, ok := nested["id"]; ok {
				return parseIDValue(id)
			}
		}
	}
	return 0, fmt.Errorf("parse remote response: no id in %s", truncate(body, 120))
}

func parseIDValue(raw json.RawMessage) (int64, error) {
	var n json.Number
	if err := codec.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("parse remote id %s: %w", raw, err)
	}
	return n.Int64()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
