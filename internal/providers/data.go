package providers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AuthData is one provider's credential payload, as received or as stored.
type AuthData map[string]any

// String returns field k as a string. Numbers are formatted without
// exponent so numeric provider ids compare as strings.
func (a AuthData) String(k string) string {
	return stringOf(a[k])
}

// Has reports whether k is present and not null.
func (a AuthData) Has(k string) bool {
	v, ok := a[k]
	return ok && v != nil
}

// Clone deep-copies a through JSON, which is how payloads are persisted.
func (a AuthData) Clone() AuthData {
	if a == nil {
		return nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		out := make(AuthData, len(a))
		for k, v := range a {
			out[k] = v
		}
		return out
	}
	var out AuthData
	_ = json.Unmarshal(b, &out)
	return out
}

// Equal compares two payloads by their JSON form.
func (a AuthData) Equal(b AuthData) bool {
	x, err1 := json.Marshal(a)
	y, err2 := json.Marshal(b)
	return err1 == nil && err2 == nil && string(x) == string(y)
}

// Options are a provider's configuration values (providerOptions).
type Options map[string]any

// String returns option k as a string.
func (o Options) String(k string) string {
	return stringOf(o[k])
}

// Bool returns option k when it is a boolean (or "true"/"false").
func (o Options) Bool(k string) bool {
	switch v := o[k].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// Strings returns option k as a list. A scalar string becomes a one-element
// list; isList reports whether the configured value was a list.
func (o Options) Strings(k string) (values []string, isList bool) {
	return stringsOf(o[k])
}

// Int returns option k as an int.
func (o Options) Int(k string) (int, bool) {
	switch v := o[k].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

// Duration returns option k as a duration. Numbers are milliseconds;
// strings use time.ParseDuration syntax.
func (o Options) Duration(k string) (time.Duration, bool) {
	switch v := o[k].(type) {
	case time.Duration:
		return v, true
	case string:
		d, err := time.ParseDuration(v)
		return d, err == nil
	}
	if n, ok := o.Int(k); ok {
		return time.Duration(n) * time.Millisecond, true
	}
	return 0, false
}

// Map returns option k as a nested map.
func (o Options) Map(k string) map[string]any {
	switch v := o[k].(type) {
	case map[string]any:
		return v
	case Options:
		return v
	case AuthData:
		return v
	}
	return nil
}

// Clone returns a shallow copy of o.
func (o Options) Clone() Options {
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

func stringOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case fmt.Stringer:
		return t.String()
	}
	return ""
}

func stringsOf(v any) ([]string, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, false
		}
		return []string{t}, false
	case []string:
		return append([]string(nil), t...), true
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s := stringOf(x); s != "" {
				out = append(out, s)
			}
		}
		return out, true
	}
	return nil, false
}

// StringsOf normalizes a string-or-list value.
func StringsOf(v any) ([]string, bool) {
	return stringsOf(v)
}
