package llm

import (
	"io"
	"reflect"
	"strings"
	"testing"
)

// chunkReader yields the underlying data in fixed-size chunks so tests can
// slice a stream at arbitrary byte boundaries.
type chunkReader struct {
	data []byte
	size int
	pos  int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	end := r.pos + r.size
	if end > len(r.data) {
		end = len(r.data)
	}
	n := copy(p, r.data[r.pos:end])
	r.pos += n
	return n, nil
}

func collectData(t *testing.T, r io.Reader) []string {
	t.Helper()
	dec := NewDecoder(r)
	var got []string
	for dec.Next() {
		got = append(got, dec.Data())
	}
	if err := dec.Err(); err != nil {
		t.Fatalf("decoder error: %v", err)
	}
	return got
}

func TestDecoderBasic(t *testing.T) {
	stream := "data: hello\n\ndata: world\n\ndata: [DONE]\n\n"
	got := collectData(t, strings.NewReader(stream))
	want := []string{"hello", "world", "[DONE]"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDecoderChunkBoundaryInvariance(t *testing.T) {
	stream := "data: {\"text\":\"héllo\"}\n\nevent: ping\ndata: {\"a\":1}\r\n\ndata: tail"
	want := collectData(t, strings.NewReader(stream))

	for size := 1; size <= len(stream); size++ {
		got := collectData(t, &chunkReader{data: []byte(stream), size: size})
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("chunk size %d: got %v, want %v", size, got, want)
		}
	}
}

func TestDecoderSkipsNonDataLines(t *testing.T) {
	stream := ": comment\nevent: message_start\nretry: 100\n\ndata: payload\n"
	got := collectData(t, strings.NewReader(stream))
	want := []string{"payload"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDecoderFinalLineWithoutNewline(t *testing.T) {
	got := collectData(t, strings.NewReader("data: first\ndata: last"))
	want := []string{"first", "last"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDecoderCRLF(t *testing.T) {
	got := collectData(t, strings.NewReader("data: a\r\ndata: b\r\n"))
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDecoderInvalidUTF8(t *testing.T) {
	stream := "data: bad\xff\xfebytes\n"
	got := collectData(t, strings.NewReader(stream))
	if len(got) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(got))
	}
	if got[0] != "bad��bytes" {
		t.Errorf("got %q, want replacement characters", got[0])
	}
}

func TestDecoderNoSpaceAfterColon(t *testing.T) {
	got := collectData(t, strings.NewReader("data:compact\n"))
	want := []string{"compact"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDecoderPreservesInnerSpaces(t *testing.T) {
	// Only the single space after the colon is stripped.
	got := collectData(t, strings.NewReader("data:  two spaces\n"))
	want := []string{" two spaces"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
