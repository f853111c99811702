// Package transform computes field-level update-sets between records.
package transform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"vfzsync/internal/inventory"
)

// Record is anything addressable by field name.
type Record interface {
	Field(name string) any
}

// Rule maps a source field onto a target field.
type Rule struct {
	Source string `mapstructure:"source" json:"source"`
	Target string `mapstructure:"target" json:"target"`
}

// Map is an ordered list of rules.
type Map []Rule

// Diff returns target -> source value for every rule whose normalized values
// differ. A nil dst is treated as a record with every field absent.
func Diff(src, dst Record, m Map) *UpdateSet {
	out := NewUpdateSet()
	for _, r := range m {
		sv := src.Field(r.Source)
		var dv any
		if dst != nil && !isNilRecord(dst) {
			dv = dst.Field(r.Target)
		}
		if Normalize(sv) != Normalize(dv) {
			out.Set(r.Target, sv)
		}
	}
	return out
}

func isNilRecord(r Record) bool {
	v := reflect.ValueOf(r)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// Normalize returns the canonical comparison form of a value. Absent values
// and empty strings both normalize to "".
func Normalize(v any) string {
	if v == nil {
		return ""
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return ""
		}
		return Normalize(rv.Elem().Interface())
	}
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return inventory.YesNo(x)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return decimal.NewFromFloat32(x).String()
	case float64:
		return decimal.NewFromFloat(x).String()
	case json.Number:
		if d, err := decimal.NewFromString(x.String()); err == nil {
			return d.String()
		}
		return x.String()
	case decimal.Decimal:
		return x.String()
	case time.Time:
		if x.IsZero() {
			return ""
		}
		return x.In(time.Local).Format(inventory.TimestampLayout)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// UpdateSet is an insertion-ordered field -> value map.
type UpdateSet struct {
	keys   []string
	values map[string]any
}

func NewUpdateSet() *UpdateSet {
	return &UpdateSet{values: make(map[string]any)}
}

func (u *UpdateSet) Set(key string, value any) {
	if _, ok := u.values[key]; !ok {
		u.keys = append(u.keys, key)
	}
	u.values[key] = value
}

func (u *UpdateSet) Get(key string) (any, bool) {
	if u == nil {
		return nil, false
	}
	v, ok := u.values[key]
	return v, ok
}

func (u *UpdateSet) Delete(key string) {
	if _, ok := u.values[key]; !ok {
		return
	}
	delete(u.values, key)
	for i, k := range u.keys {
		if k == key {
			u.keys = append(u.keys[:i], u.keys[i+1:]...)
			break
		}
	}
}

func (u *UpdateSet) Len() int {
	if u == nil {
		return 0
	}
	return len(u.keys)
}

func (u *UpdateSet) Empty() bool { return u.Len() == 0 }

func (u *UpdateSet) Keys() []string {
	if u == nil {
		return nil
	}
	return append([]string(nil), u.keys...)
}

// Merge copies other into u; other's values win.
func (u *UpdateSet) Merge(other *UpdateSet) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		u.Set(k, other.values[k])
	}
}

// Map returns an unordered copy.
func (u *UpdateSet) Map() map[string]any {
	out := make(map[string]any, u.Len())
	if u == nil {
		return out
	}
	for k, v := range u.values {
		out[k] = v
	}
	return out
}

func (u *UpdateSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range u.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(u.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// String renders the update-set for logs.
func (u *UpdateSet) String() string {
	b, err := u.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("%v", u.Map())
	}
	return string(b)
}
