package escodec

import "io"

// Encode writes ev back onto w in wire format: each header as "Name:
// Value\n", a blank line, then the body verbatim with no trailing
// newline. It is the inverse of Decode, used to check the framing
// round-trip invariant and by tests that need to synthesize wire bytes.
func Encode(w io.Writer, ev *RawEvent) error {
	for _, h := range ev.Headers {
		if _, err := io.WriteString(w, h.Name+": "+h.Value+"\n"); err != nil {
			return err
		}
	}

	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}

	if len(ev.Body) > 0 {
		if _, err := w.Write(ev.Body); err != nil {
			return err
		}
	}

	return nil
}
