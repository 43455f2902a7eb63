package intake

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// wireUpdate is the JSON shape of one update record:
//
//	{"provider":"sensor1","service":"temperature","resource":"value",
//	 "timestamp":1767323045000,"value":21.5,"type":"float"}
//
// A record with "metadata" yields a MetadataUpdate. A record carrying both
// "value" and "metadata" yields the value update first.
type wireUpdate struct {
	ModelPackageURI     string          `json:"modelPackageUri"`
	Model               string          `json:"model"`
	Provider            string          `json:"provider"`
	Service             string          `json:"service"`
	Resource            string          `json:"resource"`
	Timestamp           json.RawMessage `json:"timestamp"`
	Value               json.RawMessage `json:"value"`
	Type                string          `json:"type"`
	Metadata            map[string]any  `json:"metadata"`
	RemoveNullValues    bool            `json:"removeNullValues"`
	RemoveMissingValues bool            `json:"removeMissingValues"`
}

// Decode parses one JSON update object or an array of them.
func Decode(data []byte) ([]Update, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}

	var records []json.RawMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	} else {
		records = []json.RawMessage{data}
	}

	var out []Update
	for i, raw := range records {
		ups, err := decodeOne(raw)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, ups...)
	}
	return out, nil
}

func decodeOne(raw json.RawMessage) ([]Update, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var w wireUpdate
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	ts, err := parseTimestamp(w.Timestamp)
	if err != nil {
		return nil, err
	}
	if err := checkPath(w.Provider, w.Service, w.Resource); err != nil {
		return nil, err
	}

	var out []Update
	if w.Value != nil {
		v, err := decodeValue(w.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, ValueUpdate{
			ModelPackageURI: w.ModelPackageURI,
			Model:           w.Model,
			Provider:        w.Provider,
			Service:         w.Service,
			Resource:        w.Resource,
			Timestamp:       ts,
			Value:           v,
			Type:            w.Type,
			Source:          raw,
		})
	}
	if w.Metadata != nil {
		out = append(out, MetadataUpdate{
			ModelPackageURI:     w.ModelPackageURI,
			Model:               w.Model,
			Provider:            w.Provider,
			Service:             w.Service,
			Resource:            w.Resource,
			Timestamp:           ts,
			Metadata:            Normalize(w.Metadata).(map[string]any),
			RemoveNullValues:    w.RemoveNullValues,
			RemoveMissingValues: w.RemoveMissingValues,
			Source:              raw,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: neither value nor metadata", ErrInvalidPayload)
	}
	return out, nil
}

func decodeValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: value: %v", ErrInvalidPayload, err)
	}
	// Top-level numbers stay json.Number so integers keep their kind.
	if n, ok := v.(json.Number); ok {
		return n, nil
	}
	return Normalize(v), nil
}

// parseTimestamp accepts epoch milliseconds or RFC 3339 text. Absent or
// null means now.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	s := string(bytes.TrimSpace(raw))
	if s == "" || s == "null" {
		return time.Time{}, nil
	}
	if s[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp: %v", ErrInvalidPayload, err)
		}
		t, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp: %v", ErrInvalidPayload, err)
		}
		return t.UTC(), nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %s", ErrInvalidPayload, s)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// Normalize turns nested json.Number values into int64 or float64, the
// types twin values hold for JSON numbers.
func Normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		for k, e := range x {
			x[k] = Normalize(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = Normalize(e)
		}
		return x
	}
	return v
}
