package escodec

// Header is a single "Name: Value" pair as received on the wire. Names are
// case-sensitive and kept verbatim.
type Header struct {
	Name  string
	Value string
}

// RawEvent is an ordered collection of headers plus an optional opaque
// body. Order of first occurrence is preserved; duplicate header names are
// not merged or concatenated.
type RawEvent struct {
	Headers []Header
	Body    []byte
}

// Header returns the value of the first header matching name, and whether
// it was found.
func (r *RawEvent) Header(name string) (string, bool) {
	for _, h := range r.Headers {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}

// HeaderAll returns every value associated with name, in wire order.
func (r *RawEvent) HeaderAll(name string) []string {
	var values []string
	for _, h := range r.Headers {
		if h.Name == name {
			values = append(values, h.Value)
		}
	}
	return values
}

// ContentType is a convenience accessor for the Content-Type header.
func (r *RawEvent) ContentType() string {
	v, _ := r.Header("Content-Type")
	return v
}
