package listing

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultSeparator terminates every record the remote listing command emits.
const DefaultSeparator = "\r\n"

// ErrInvalidEncoding is returned by Feed when a chunk is not valid UTF-8.
// The chunk is dropped; the decoder stays usable.
var ErrInvalidEncoding = errors.New("listing: chunk is not valid UTF-8")

// Split appends chunk to the carried-over buffer and cuts the result into
// complete records. Whatever follows the last separator is returned as the
// new buffer verbatim; it is empty when the data ended exactly on a
// separator. Empty records are kept, callers decide what to do with them.
func Split(buffer, chunk, sep string) (records []string, rest string) {
	if sep == "" {
		sep = DefaultSeparator
	}
	data := buffer + chunk
	if data == "" {
		return nil, ""
	}
	parts := strings.Split(data, sep)
	if strings.HasSuffix(data, sep) {
		// The trailing part is the empty string after the final separator.
		return parts[:len(parts)-1], ""
	}
	return parts[:len(parts)-1], parts[len(parts)-1]
}

// Decoder turns an arbitrarily chunked byte stream into entries. It is not
// safe for concurrent use; one decoder belongs to one listing session.
type Decoder struct {
	sep       string
	buf       string
	pending   []byte
	malformed int
	dropped   int
}

// NewDecoder returns a decoder for records terminated by sep. An empty sep
// selects DefaultSeparator.
func NewDecoder(sep string) *Decoder {
	if sep == "" {
		sep = DefaultSeparator
	}
	return &Decoder{sep: sep}
}

// Feed consumes one chunk and returns the entries completed by it, in
// stream order.
func (d *Decoder) Feed(chunk []byte) ([]Entry, error) {
	data := chunk
	if len(d.pending) > 0 {
		data = append(d.pending, chunk...)
		d.pending = nil
	}

	// A multi-byte rune cut by the chunk boundary waits for the next chunk.
	cut := incompleteTail(data)
	text, tail := data[:cut], data[cut:]
	if !utf8.Valid(text) {
		d.dropped++
		return nil, fmt.Errorf("%w (%d bytes)", ErrInvalidEncoding, len(data))
	}
	if len(tail) > 0 {
		d.pending = append([]byte(nil), tail...)
	}

	records, rest := Split(d.buf, string(text), d.sep)
	d.buf = rest
	return d.decode(records), nil
}

// Flush decodes the buffered trailing record, if any, and resets the
// decoder. It is meant for streams known to have ended cleanly.
func (d *Decoder) Flush() []Entry {
	rest := d.buf
	d.buf = ""
	d.pending = nil
	if rest == "" {
		return nil
	}
	return d.decode([]string{rest})
}

// Buffered returns the undecoded partial record carried to the next Feed.
func (d *Decoder) Buffered() string {
	return d.buf
}

// Malformed returns how many records were skipped because they could not
// be decoded.
func (d *Decoder) Malformed() int {
	return d.malformed
}

// Dropped returns how many chunks were rejected as invalid UTF-8.
func (d *Decoder) Dropped() int {
	return d.dropped
}

func (d *Decoder) decode(records []string) []Entry {
	if len(records) == 0 {
		return nil
	}
	entries := make([]Entry, 0, len(records))
	for _, record := range records {
		if record == "" || isMarker(record) {
			continue
		}
		entry, ok := ParseRecord(record)
		if !ok {
			d.malformed++
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

func incompleteTail(data []byte) int {
	limit := max(len(data)-utf8.UTFMax, 0)
	for i := len(data) - 1; i >= limit; i-- {
		if !utf8.RuneStart(data[i]) {
			continue
		}
		if utf8.FullRune(data[i:]) {
			return len(data)
		}
		return i
	}
	return len(data)
}
