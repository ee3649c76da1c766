package protocol

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// Column names used by the streaming server.
const (
	ColumnTimestamp        = "timestamp"
	ColumnSpeed            = "speed"
	ColumnOdometer         = "odometer"
	ColumnSOC              = "soc"
	ColumnElevation        = "elevation"
	ColumnEstimatedHeading = "est_heading"
	ColumnLatitude         = "est_lat"
	ColumnLongitude        = "est_lng"
	ColumnPower            = "power"
	ColumnShiftState       = "shift_state"
	ColumnRange            = "range"
	ColumnEstimatedRange   = "est_range"
	ColumnHeading          = "heading"
)

// StreamEvent is one telemetry sample. Fields the vehicle did not report are absent.
type StreamEvent struct {
	Fields map[string]string
}

// ParseStreamEvent parses the value of a data:update message.
//
// Values are comma separated. Each entry is either "name:value", or a bare value whose name is
// given by its position: the first entry is the sample timestamp and the rest follow columns.
// Empty entries are omitted from the result.
func ParseStreamEvent(value string, columns []string) StreamEvent {
	if len(columns) == 0 {
		columns = DefaultColumns
	}
	event := StreamEvent{Fields: make(map[string]string)}
	for i, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if name, v, ok := strings.Cut(entry, ":"); ok && !isNumber(name) {
			event.Fields[strings.TrimSpace(name)] = strings.TrimSpace(v)
			continue
		}
		var name string
		switch {
		case i == 0:
			name = ColumnTimestamp
		case i-1 < len(columns):
			name = columns[i-1]
		default:
			continue
		}
		event.Fields[name] = entry
	}
	return event
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil
}

// Get returns the raw value of a field.
func (e StreamEvent) Get(name string) (string, bool) {
	v, ok := e.Fields[name]
	return v, ok
}

// Float returns the value of a numeric field.
func (e StreamEvent) Float(name string) (float64, bool) {
	v, ok := e.Fields[name]
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Timestamp returns the time the vehicle recorded the sample. The server reports milliseconds
// since the Unix epoch.
func (e StreamEvent) Timestamp() (time.Time, bool) {
	v, ok := e.Fields[ColumnTimestamp]
	if !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

func (e StreamEvent) Speed() (float64, bool)            { return e.Float(ColumnSpeed) }
func (e StreamEvent) Odometer() (float64, bool)         { return e.Float(ColumnOdometer) }
func (e StreamEvent) SOC() (float64, bool)              { return e.Float(ColumnSOC) }
func (e StreamEvent) Elevation() (float64, bool)        { return e.Float(ColumnElevation) }
func (e StreamEvent) EstimatedHeading() (float64, bool) { return e.Float(ColumnEstimatedHeading) }
func (e StreamEvent) Latitude() (float64, bool)         { return e.Float(ColumnLatitude) }
func (e StreamEvent) Longitude() (float64, bool)        { return e.Float(ColumnLongitude) }
func (e StreamEvent) Power() (float64, bool)            { return e.Float(ColumnPower) }
func (e StreamEvent) Range() (float64, bool)            { return e.Float(ColumnRange) }
func (e StreamEvent) EstimatedRange() (float64, bool)   { return e.Float(ColumnEstimatedRange) }
func (e StreamEvent) Heading() (float64, bool)          { return e.Float(ColumnHeading) }

// ShiftState returns the gear selector position (P, R, N or D). Parked vehicles often omit it.
func (e StreamEvent) ShiftState() (string, bool) {
	return e.Get(ColumnShiftState)
}

// String renders the sample as name=value pairs in name order.
func (e StreamEvent) String() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + e.Fields[name]
	}
	return strings.Join(parts, " ")
}

// Struct converts the sample into a protobuf Struct. Numeric fields become number values and
// everything else is kept as a string.
func (e StreamEvent) Struct() (*structpb.Struct, error) {
	fields := make(map[string]interface{}, len(e.Fields))
	for name, v := range e.Fields {
		if f, err := strconv.ParseFloat(v, 64); err == nil && name != ColumnShiftState {
			fields[name] = f
		} else {
			fields[name] = v
		}
	}
	return structpb.NewStruct(fields)
}
