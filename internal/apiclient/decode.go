package apiclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// DecodeBody parses body as a single JSON value, keeping numbers as json.Number
// so integers beyond float64 precision round-trip exactly. If body is not
// exactly one JSON value the raw text is returned unchanged.
func DecodeBody(body []byte) any {
	v, err := decodeJSON(body)
	if err != nil {
		return string(body)
	}
	return v
}

func decodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	// Anything but trailing whitespace after the value makes the body non-JSON.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

// scanJSON decodes body into dst with the same number handling as DecodeBody.
func scanJSON(body []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(dst)
}
