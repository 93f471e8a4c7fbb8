package event

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// JSONEvent is the JSON-specialized projection of an Event whose
// Content-Type is text/event-json.
type JSONEvent struct {
	result gjson.Result
}

// Get performs a gjson path lookup into the body without a full
// unmarshal, matching how the teacher's storage.InmemoryStore reads its
// JSON-backed values with gjson.GetBytes.
func (j *JSONEvent) Get(path string) gjson.Result {
	return j.result.Get(path)
}

// Raw returns the parsed body as a gjson.Result rooted at the document.
func (j *JSONEvent) Raw() gjson.Result {
	return j.result
}

// Set returns the body with path rewritten to value, for callers that
// need to rewrite and re-emit a received JSON event (for example,
// tagging it before relaying it onward via a sendevent command).
func (j *JSONEvent) Set(path string, value interface{}) ([]byte, error) {
	out, err := sjson.SetBytes([]byte(j.result.Raw), path, value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return out, nil
}

// JSON parses the body as JSON. It fails with ErrMalformedBody if the
// body is not valid JSON, and with ErrUnsupportedFormat if JSONEnabled
// has been turned off.
func (p Projection) JSON() (*JSONEvent, error) {
	if !JSONEnabled {
		return nil, ErrUnsupportedFormat
	}

	data := p.e.Bytes()
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid json body", ErrMalformedBody)
	}

	return &JSONEvent{result: gjson.ParseBytes(data)}, nil
}
