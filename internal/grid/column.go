package grid

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"smtparts/internal/format"
)

// Kind is the input kind of a column.
type Kind int

const (
	KindText Kind = iota
	KindNumber
	KindSelect
)

// Column describes one editable grid column.
type Column struct {
	Key      string
	Label    string
	Kind     Kind
	Required bool
	Options  []string // KindSelect only
	Width    int      // display hint, in cells
}

// Record maps column keys to values. Text and select values are strings,
// numbers are float64, and nil means absent.
type Record map[string]any

func (r Record) clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Row is an authoritative row as last fetched from the backend.
type Row struct {
	ID     RowID
	Values Record
}

// RowID identifies a persisted row, or NewRow for the creation slot.
type RowID int64

// NewRow is the identity of the single not-yet-created row.
const NewRow RowID = -1

func (id RowID) String() string {
	if id == NewRow {
		return "new"
	}
	return strconv.FormatInt(int64(id), 10)
}

// Display messages recorded in the error map.
const (
	MsgInvalidNumber = "Số không hợp lệ"
	MsgInvalidOption = "Giá trị không hợp lệ"
	MsgRequired      = "Bắt buộc"
)

// parse converts raw input into a column value.
func (c Column) parse(raw string) (any, string) {
	switch c.Kind {
	case KindNumber:
		s := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
		if s == "" {
			return nil, ""
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, MsgInvalidNumber
		}
		return f, ""
	case KindSelect:
		s := strings.TrimSpace(raw)
		if s == "" {
			return nil, ""
		}
		for _, o := range c.Options {
			if o == s {
				return s, ""
			}
		}
		return nil, MsgInvalidOption
	default:
		s := strings.TrimSpace(raw)
		if s == "" {
			return nil, ""
		}
		return s, ""
	}
}

// input renders a value as the text pre-filled into an editor.
func (c Column) input(v any) string {
	switch x := normalize(v).(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// display renders a value for the table body.
func (c Column) display(v any) string {
	v = normalize(v)
	if c.Kind == KindNumber {
		if f, ok := v.(float64); ok {
			return format.Number(f)
		}
		return format.Placeholder
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// normalize maps the loose value types callers may hand in onto the
// canonical nil / string / float64 set, so equality is well defined.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		if x == "" {
			return nil
		}
		return x
	case *string:
		if x == nil {
			return nil
		}
		return normalize(*x)
	case float64:
		return x
	case *float64:
		if x == nil {
			return nil
		}
		return *x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case *int64:
		if x == nil {
			return nil
		}
		return float64(*x)
	}
	return v
}

func equal(a, b any) bool {
	return normalize(a) == normalize(b)
}

func empty(v any) bool {
	v = normalize(v)
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return v == nil
}
