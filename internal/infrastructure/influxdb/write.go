package influxdb

import (
	"encoding/json"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-twin/internal/notify"
)

// MeasurementResource is the measurement holding resource values.
const MeasurementResource = "resource_values"

// Field keys of MeasurementResource. Each value type gets its own key so
// resources of different kinds never conflict on a field type.
const (
	FieldNumber = "value"
	FieldBool   = "value_bool"
	FieldString = "value_str"
	FieldJSON   = "value_json"
)

// ResourcePoint converts a DATA event into a point.
//
// Tags carry the resource path and model; the single field is chosen from
// the Go type of the new value. Events without a value (deleted or null)
// produce no point.
//
// Returns:
//   - *write.Point: The point to write
//   - bool: false if the event has nothing to record
func ResourcePoint(ev notify.Event) (*write.Point, bool) {
	if ev.Type != notify.EventData || ev.NewValue == nil {
		return nil, false
	}

	key, value, ok := fieldFor(ev.NewValue)
	if !ok {
		return nil, false
	}

	tags := map[string]string{
		"provider": ev.Provider,
		"service":  ev.Service,
		"resource": ev.Resource,
	}
	if ev.Model != "" {
		tags["model"] = ev.Model
	}
	if ev.ValueKind != "" {
		tags["kind"] = ev.ValueKind
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return write.NewPoint(MeasurementResource, tags, map[string]interface{}{key: value}, ts), true
}

func fieldFor(v any) (string, any, bool) {
	switch x := v.(type) {
	case float64:
		return FieldNumber, x, true
	case float32:
		return FieldNumber, float64(x), true
	case int:
		return FieldNumber, float64(x), true
	case int32:
		return FieldNumber, float64(x), true
	case int64:
		return FieldNumber, float64(x), true
	case uint64:
		return FieldNumber, float64(x), true
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return FieldString, x.String(), true
		}
		return FieldNumber, f, true
	case bool:
		return FieldBool, x, true
	case string:
		return FieldString, x, true
	case time.Time:
		return FieldString, x.UTC().Format(time.RFC3339Nano), true
	default:
		raw, err := json.Marshal(x)
		if err != nil {
			return "", nil, false
		}
		return FieldJSON, string(raw), true
	}
}

// WriteResourceValue queues the value carried by a DATA event. Events that
// carry no value are ignored.
func (c *Client) WriteResourceValue(ev notify.Event) {
	if point, ok := ResourcePoint(ev); ok {
		c.Write(point)
	}
}
