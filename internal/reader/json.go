package reader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/JonMunkholm/tableimport/internal/tabular"
)

// rowListKeys are root-object keys whose array holds the rows.
var rowListKeys = []string{"people", "data"}

// canonicalFields are renamed to lower case regardless of source casing.
var canonicalFields = map[string]bool{
	"id":    true,
	"name":  true,
	"age":   true,
	"email": true,
}

// scalarColumn holds array elements that are not objects.
const scalarColumn = "value"

// object is a decoded JSON object that remembers key order.
type object struct {
	keys   []string
	values map[string]any
}

func (o *object) get(key string) (any, bool) {
	v, ok := o.values[key]
	return v, ok
}

// MarshalJSON writes the object back out in source key order.
func (o *object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(o.values[k])
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

// readJSON parses a JSON document into a table.
func readJSON(data []byte) (*tabular.Table, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	root, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrUnsupportedFormat, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: invalid JSON: trailing data after root value", ErrUnsupportedFormat)
	}

	elems, err := rowElements(root)
	if err != nil {
		return nil, err
	}

	t := tableFromElements(elems)
	mergeNameParts(t)
	canonicalizeFields(t)
	return t, nil
}

// decodeValue reads one JSON value, keeping object key order.
func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		obj := &object{values: make(map[string]any)}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("object key is %T", keyTok)
			}
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			if _, dup := obj.values[key]; !dup {
				obj.keys = append(obj.keys, key)
			}
			obj.values[key] = val
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil

	case '[':
		arr := []any{}
		for dec.More() {
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	}

	return nil, fmt.Errorf("unexpected delimiter %q", delim)
}

// rowElements picks the list of row values out of the document root.
func rowElements(root any) ([]any, error) {
	switch v := root.(type) {
	case []any:
		return v, nil

	case *object:
		for _, key := range rowListKeys {
			if list, ok := v.get(key); ok {
				if arr, ok := list.([]any); ok {
					return arr, nil
				}
			}
		}
		if len(v.keys) == 1 {
			if arr, ok := v.values[v.keys[0]].([]any); ok {
				return arr, nil
			}
		}
		elems := make([]any, 0, len(v.keys))
		for _, k := range v.keys {
			elems = append(elems, v.values[k])
		}
		return elems, nil
	}

	return nil, fmt.Errorf("%w: root is %s", ErrUnsupportedJSONShape, jsonKind(root))
}

// tableFromElements lays out row elements under the union of their keys, in
// first-seen order.
func tableFromElements(elems []any) *tabular.Table {
	var columns []string
	seen := make(map[string]bool)
	addColumn := func(name string) {
		if !seen[name] {
			seen[name] = true
			columns = append(columns, name)
		}
	}

	rows := make([]tabular.Row, 0, len(elems))
	for _, e := range elems {
		row := make(tabular.Row)
		switch v := e.(type) {
		case *object:
			for _, k := range v.keys {
				addColumn(k)
				row[k] = jsonValue(v.values[k])
			}
		case []any:
			for i, item := range v {
				k := strconv.Itoa(i)
				addColumn(k)
				row[k] = jsonValue(item)
			}
		default:
			addColumn(scalarColumn)
			row[scalarColumn] = jsonValue(v)
		}
		rows = append(rows, row)
	}

	t := tabular.New(columns)
	for _, r := range rows {
		t.Append(r)
	}
	return t
}

// jsonValue converts a decoded JSON value into a cell. Nested objects and
// arrays are kept as compact JSON text.
func jsonValue(v any) tabular.Value {
	switch x := v.(type) {
	case nil:
		return tabular.Null()
	case json.Number:
		if n, ok := tabular.ParseNumber(x.String()); ok {
			return n
		}
		return tabular.Text(x.String())
	case string:
		return tabular.ParseCell(x)
	case bool:
		return tabular.Text(strconv.FormatBool(x))
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return tabular.Text(fmt.Sprint(x))
		}
		return tabular.Text(string(b))
	}
}

// mergeNameParts replaces firstName and lastName with a single name column.
func mergeNameParts(t *tabular.Table) {
	if !t.HasColumn("firstName") || !t.HasColumn("lastName") {
		return
	}

	first, last := t.Values("firstName"), t.Values("lastName")
	names := make([]tabular.Value, len(first))
	for i := range first {
		var parts []string
		for _, v := range []tabular.Value{first[i], last[i]} {
			if !v.IsNull() {
				parts = append(parts, v.String())
			}
		}
		if len(parts) == 0 {
			names[i] = tabular.Null()
			continue
		}
		names[i] = tabular.Text(strings.Join(parts, " "))
	}

	t.AddColumn("name")
	t.SetValues("name", names)
	t.DropColumn("firstName")
	t.DropColumn("lastName")
}

// canonicalizeFields lower-cases the common field names.
func canonicalizeFields(t *tabular.Table) {
	for _, c := range append([]string(nil), t.Columns...) {
		lower := strings.ToLower(c)
		if canonicalFields[lower] && c != lower {
			t.RenameColumn(c, lower)
		}
	}
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "a string"
	case json.Number:
		return "a number"
	case bool:
		return "a boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
