package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Response is a decoded JSON object returned by the controller.
type Response map[string]any

var errNotObject = errors.New("response body is not a JSON object")

func decodeResponse(body []byte) (Response, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errNotObject
	}
	return Response(obj), nil
}

// Has reports whether key is present.
func (r Response) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// Bool returns the value of key when it is a JSON boolean, else false.
func (r Response) Bool(key string) bool {
	b, ok := r[key].(bool)
	return ok && b
}

// Int returns the value of key when it is an integral JSON number.
func (r Response) Int(key string) (int, bool) {
	switch v := r[key].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil || f != float64(int64(f)) {
				return 0, false
			}
			n = int64(f)
		}
		return int(n), true
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		return int(v), true
	}
	return 0, false
}

// String returns the value of key when it is a JSON string.
func (r Response) String(key string) (string, bool) {
	s, ok := r[key].(string)
	return s, ok
}

// Array returns the value of key when it is a JSON array.
func (r Response) Array(key string) ([]any, bool) {
	a, ok := r[key].([]any)
	return a, ok
}
