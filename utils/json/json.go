// Package json encodes call arguments into stable text, used as memoization keys.
package json

import (
	"bytes"
	"encoding/json"
)

// Marshal encodes v without escaping &, < and >, so keys stay readable.
func Marshal(v interface{}) ([]byte, error) {
	return Marshal2(v, false)
}

// Marshal2 encodes v, escaping HTML characters only when escapeHTML is true.
// The trailing newline written by the encoder is dropped.
func Marshal2(v interface{}, escapeHTML bool) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(escapeHTML)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
