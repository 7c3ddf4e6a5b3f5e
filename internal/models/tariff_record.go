package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// TariffRecord is one warehouseList entry exactly as the tariff API returned it.
// Field order is preserved, which matters for the coefficient fallback scan.
type TariffRecord json.RawMessage

func (r TariffRecord) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

func (r *TariffRecord) UnmarshalJSON(b []byte) error {
	if r == nil {
		return errors.New("models.TariffRecord: UnmarshalJSON on nil pointer")
	}
	*r = append((*r)[0:0], b...)
	return nil
}

// IsObject reports whether the record is a JSON object.
func (r TariffRecord) IsObject() bool {
	return gjson.ParseBytes(r).IsObject()
}

// Field returns the top-level field named key. A repeated key yields its
// last value, as a JSON object decoder would.
func (r TariffRecord) Field(key string) (gjson.Result, bool) {
	keys, values := members(gjson.ParseBytes(r))
	if keys == nil {
		return gjson.Result{}, false
	}
	v, ok := values[key]
	return v, ok
}

// Each walks top-level fields in document order until fn returns false.
// A repeated key is visited once, at its first position, with its last value.
func (r TariffRecord) Each(fn func(key string, value gjson.Result) bool) {
	keys, values := members(gjson.ParseBytes(r))
	for _, k := range keys {
		if !fn(k, values[k]) {
			return
		}
	}
}

// Text returns the string form of a non-null field.
func (r TariffRecord) Text(key string) (string, bool) {
	v, ok := r.Field(key)
	if !ok || v.Type == gjson.Null {
		return "", false
	}
	return v.String(), true
}

// Compact renders the record as canonical single-line JSON: escapes decoded,
// duplicate keys collapsed and numbers in shortest form ("1.0" becomes "1").
func (r TariffRecord) Compact() string {
	if len(r) == 0 {
		return "null"
	}
	res := gjson.ParseBytes(r)
	if !res.Exists() || !gjson.ValidBytes(r) {
		return string(r)
	}
	var buf bytes.Buffer
	writeCanonical(&buf, res)
	return buf.String()
}

func members(obj gjson.Result) ([]string, map[string]gjson.Result) {
	if !obj.IsObject() {
		return nil, nil
	}
	keys := []string{}
	values := make(map[string]gjson.Result)
	obj.ForEach(func(k, v gjson.Result) bool {
		name := k.String()
		if _, seen := values[name]; !seen {
			keys = append(keys, name)
		}
		values[name] = v
		return true
	})
	return keys, values
}

func writeCanonical(buf *bytes.Buffer, v gjson.Result) {
	switch {
	case v.IsObject():
		keys, values := members(v)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, k)
			buf.WriteByte(':')
			writeCanonical(buf, values[k])
		}
		buf.WriteByte('}')
	case v.IsArray():
		buf.WriteByte('[')
		first := true
		v.ForEach(func(_, item gjson.Result) bool {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			writeCanonical(buf, item)
			return true
		})
		buf.WriteByte(']')
	case v.Type == gjson.String:
		writeString(buf, v.Str)
	case v.Type == gjson.Number:
		buf.WriteString(formatNumber(v.Raw))
	case v.Type == gjson.True:
		buf.WriteString("true")
	case v.Type == gjson.False:
		buf.WriteString("false")
	default:
		buf.WriteString("null")
	}
}

func writeString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	buf.Truncate(buf.Len() - 1) // Encode appends a newline
}

// formatNumber prints raw the way JavaScript number serialization does.
// Values beyond float64 range become null.
func formatNumber(raw string) string {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return raw
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return "null"
	}
	if f == 0 {
		return "0"
	}
	if abs := math.Abs(f); abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		// Go pads the exponent to two digits: 1e-07 vs 1e-7
		mant, exp, _ := strings.Cut(s, "e")
		sign := exp[:1]
		exp = strings.TrimLeft(exp[1:], "0")
		return mant + "e" + sign + exp
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// TariffRecords is the snapshot payload column.
type TariffRecords []TariffRecord

func (rs TariffRecords) Value() (driver.Value, error) {
	if rs == nil {
		rs = TariffRecords{}
	}
	b, err := json.Marshal([]TariffRecord(rs))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (rs *TariffRecords) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*rs = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("models.TariffRecords: unsupported scan type %T", src)
	}
	var out []TariffRecord
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("models.TariffRecords: %w", err)
	}
	*rs = out
	return nil
}

// GormDBDataType picks a column type that returns the payload verbatim.
// JSONB and MySQL JSON reorder keys; postgres json keeps the input text.
func (TariffRecords) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	switch db.Dialector.Name() {
	case "mysql":
		return "LONGTEXT"
	case "postgres":
		return "JSON"
	default:
		return "TEXT"
	}
}
