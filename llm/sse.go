package llm

import (
	"bufio"
	"io"
	"strings"
)

// Decoder reassembles newline-terminated SSE lines from arbitrarily-sized
// byte chunks and yields the payload of each "data:" line. A logical line may
// be split across chunks; the trailing partial line is buffered until more
// bytes arrive. Lines without the data prefix (comments, event fields,
// heartbeats) are skipped. Invalid UTF-8 is replaced with U+FFFD rather than
// failing the stream.
type Decoder struct {
	r    *bufio.Reader
	data string
	err  error
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next advances to the next data line. It returns false on EOF or error.
// After a successful Next, Data returns the line's payload.
func (d *Decoder) Next() bool {
	if d.err != nil {
		return false
	}
	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			// A final data line may arrive without a trailing newline.
			if err == io.EOF && line != "" {
				d.err = io.EOF
				if v, ok := dataPayload(line); ok {
					d.data = v
					return true
				}
				return false
			}
			d.err = err
			return false
		}
		if v, ok := dataPayload(line); ok {
			d.data = v
			return true
		}
	}
}

// Data returns the payload of the current data line.
func (d *Decoder) Data() string {
	return d.data
}

// Err returns the first non-EOF error encountered.
func (d *Decoder) Err() error {
	if d.err == io.EOF {
		return nil
	}
	return d.err
}

func dataPayload(line string) (string, bool) {
	line = strings.ToValidUTF8(line, "�")
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	v := strings.TrimPrefix(line, "data:")
	v = strings.TrimPrefix(v, " ")
	return v, true
}
