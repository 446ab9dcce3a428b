package dicomscan

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"

	"github.com/macadamian/dicomscan/tlv"
)

// watchField describes where and how a matched element lands in HeaderFields.
type watchField struct {
	field int
	name  string
	vr    tlv.VR
	index int
	// presence fields record that the element exists and never read its value.
	presence bool
}

// watchlist maps each watched tag to its field.
type watchlist map[tlv.Tag]watchField

// values counts the fields that take their content from an element value.
func (w watchlist) values() int {
	n := 0
	for _, wf := range w {
		if !wf.presence {
			n++
		}
	}
	return n
}

var (
	headerWatch  = mustWatchlist(reflect.TypeOf(HeaderFields{}))
	headerValues = headerWatch.values()
)

func mustWatchlist(t reflect.Type) watchlist {
	w, err := buildWatchlist(t)
	if err != nil {
		panic(err)
	}
	return w
}

// buildWatchlist reads the tag, vr and index struct tags of a struct type. Fields without a tag
// are not watched.
func buildWatchlist(t reflect.Type) (watchlist, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("watchlist needs a struct type, got %v", t)
	}

	w := make(watchlist)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		ts, ok := f.Tag.Lookup("tag")
		if !ok {
			continue
		}
		tag, err := tlv.ParseTag(ts)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		if _, dup := w[tag]; dup {
			return nil, fmt.Errorf("field %s: tag %v watched twice", f.Name, tag)
		}

		wf := watchField{field: i, name: f.Name, vr: tlv.VR(f.Tag.Get("vr"))}
		if s := f.Tag.Get("index"); s != "" {
			if wf.index, err = strconv.Atoi(s); err != nil || wf.index < 0 {
				return nil, fmt.Errorf("field %s: bad index %q", f.Name, s)
			}
		}

		switch f.Type.Kind() {
		case reflect.Bool:
			wf.presence = true
		case reflect.String:
		case reflect.Ptr:
			switch f.Type.Elem().Kind() {
			case reflect.Int, reflect.Float64:
			default:
				return nil, fmt.Errorf("field %s: unsupported type %v", f.Name, f.Type)
			}
		default:
			return nil, fmt.Errorf("field %s: unsupported type %v", f.Name, f.Type)
		}
		w[tag] = wf
	}
	return w, nil
}

// assign decodes value according to wf and stores it into the struct v points to. Values that do
// not parse leave the field untouched and report false.
func (wf watchField) assign(v reflect.Value, value []byte, dec *encoding.Decoder) bool {
	fv := v.Elem().Field(wf.field)
	if !fv.CanSet() {
		return false
	}

	switch fv.Kind() {
	case reflect.Bool:
		fv.SetBool(true)
		return true

	case reflect.String:
		s, ok := wf.text(value, dec)
		if ok {
			fv.SetString(s)
		}
		return ok

	case reflect.Ptr:
		switch fv.Type().Elem().Kind() {
		case reflect.Int:
			n, ok := wf.integer(value)
			if !ok {
				return false
			}
			fv.Set(reflect.ValueOf(&n))
			return true
		case reflect.Float64:
			s, ok := wf.text(value, nil)
			if !ok {
				return false
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return false
			}
			fv.Set(reflect.ValueOf(&f))
			return true
		}
	}
	return false
}

func (wf watchField) integer(value []byte) (int, bool) {
	switch wf.vr {
	case tlv.US:
		i := wf.index * 2
		if len(value) < i+2 {
			return 0, false
		}
		return int(binary.LittleEndian.Uint16(value[i:])), true
	case tlv.SS:
		i := wf.index * 2
		if len(value) < i+2 {
			return 0, false
		}
		return int(int16(binary.LittleEndian.Uint16(value[i:]))), true
	}
	s, ok := wf.text(value, nil)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(s, "+"))
	if err != nil {
		return 0, false
	}
	return n, true
}

// text returns the selected backslash separated component, trimmed of padding.
func (wf watchField) text(value []byte, dec *encoding.Decoder) (string, bool) {
	s := string(value)
	if dec != nil && wf.vr.IsText() {
		if b, err := dec.Bytes(value); err == nil {
			s = string(b)
		}
	}
	if wf.vr.MultiValued() {
		parts := strings.Split(s, `\`)
		if wf.index >= len(parts) {
			return "", false
		}
		s = parts[wf.index]
	}
	return trimValue(s), true
}

func trimValue(s string) string {
	return strings.Trim(s, " \x00")
}
