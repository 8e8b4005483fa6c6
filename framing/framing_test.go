package framing

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// scanAll scans input with split using a scanner buffer of bsize bytes.
func scanAll(input []byte, split bufio.SplitFunc, bsize int) ([]string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(input))
	scanner.Buffer(make([]byte, bsize), 1<<16)
	scanner.Split(split)
	var got []string
	for scanner.Scan() {
		got = append(got, scanner.Text())
	}
	return got, scanner.Err()
}

func TestEscaped(t *testing.T) {
	for _, tc := range []struct {
		name  string
		input []string
	}{
		{name: "empty payload", input: []string{""}},
		{name: "plain", input: []string{"foo", "bar"}},
		{name: "markers", input: []string{"\xff", "\xfe", "a\xfe\xffb", "\xbf\xbe"}},
		{name: "long", input: []string{strings.Repeat("\xfe0123456789\xff", 40)}},
	} {
		for bsize := 4; bsize < 40; bsize += 5 {
			t.Run(fmt.Sprintf("%s/%d", tc.name, bsize), func(t *testing.T) {
				a := assert.New(t)
				var encoded []byte
				for _, s := range tc.input {
					encoded = AppendEscaped(encoded, []byte(s))
				}
				a.Equal(len(tc.input), bytes.Count(encoded, []byte{EndMarker}))
				got, err := scanAll(encoded, SplitEscaped, bsize)
				a.NoError(err)
				a.Equal(tc.input, got)
			})
		}
	}
}

func TestEscapedErrors(t *testing.T) {
	for _, tc := range []struct {
		name    string
		input   string
		wantErr string
		eof     bool
	}{
		{name: "truncated", input: "abc", eof: true},
		{name: "escape at end", input: "ab\xfe\xff", wantErr: "bad frame: escape before end marker at input offset 2"},
		{name: "invalid escape", input: "a\xfe\x41\xff", wantErr: "bad frame: invalid escape 0x41 at input offset 2"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)
			_, err := scanAll([]byte(tc.input), SplitEscaped, 16)
			if tc.eof {
				a.Equal(io.ErrUnexpectedEOF, err)
				return
			}
			a.EqualError(err, tc.wantErr)
		})
	}
}

func TestDelimited(t *testing.T) {
	for _, tc := range []struct {
		input   string
		want    []string
		wantErr error
	}{
		{input: "", want: nil},
		{input: "\r\n\r\n", want: []string{""}},
		{input: "foo\r\n\r\nbar\r\n\r\n", want: []string{"foo", "bar"}},
		{input: "foo\r\nbar\r\n\r\n\r\n\r\n", want: []string{"foo\r\nbar", ""}},
		{input: "foo\r\n\r\nbar", want: []string{"foo"}, wantErr: io.ErrUnexpectedEOF},
	} {
		for bsize := 4; bsize < 20; bsize++ {
			t.Run(fmt.Sprintf("%q/%d", tc.input, bsize), func(t *testing.T) {
				a := assert.New(t)
				got, err := scanAll([]byte(tc.input), SplitDelimited(Delimiter), bsize)
				a.Equal(tc.wantErr, err)
				a.Equal(tc.want, got)
			})
		}
	}
	assert.Equal(t, "x\r\n\r\n", string(AppendDelimited(nil, []byte("x"), Delimiter)))
}

func TestChunked(t *testing.T) {
	for _, tc := range []struct {
		input   string
		want    []string
		wantErr string
	}{
		{input: "\n#3\nfoo\n##\n", want: []string{"foo"}},
		{input: "\n#3\nfoo\n#3\nbar\n##\n\n#1\nx\n##\n", want: []string{"foobar", "x"}},
		{input: "\n#10\n0123456789\n##\n", want: []string{"0123456789"}},
		{input: "\n##\n", wantErr: "bad frame: end of chunks seen prior to chunk"},
		{input: "\n#0\n\n##\n", wantErr: "bad frame: invalid chunk size at input offset 2"},
		{input: "#3\nfoo\n##\n", wantErr: "bad frame: invalid chunk header"},
		{input: "\n#3\nfoo\n#x", wantErr: "bad frame: invalid chunk size at input offset 9"},
		{input: "\n#3\nfoo\n##x", wantErr: "bad frame: invalid chunk terminator at input offset 10"},
		{input: "\n#12345678901\n", wantErr: "bad frame: chunk size too long at input offset 2"},
		{input: "\n#4294967296\n", wantErr: "bad frame: invalid chunk size at input offset 2"},
		{input: "\n#3\nfo", wantErr: io.ErrUnexpectedEOF.Error()},
	} {
		for bsize := 4; bsize < 24; bsize += 3 {
			t.Run(fmt.Sprintf("%q/%d", tc.input, bsize), func(t *testing.T) {
				a := assert.New(t)
				got, err := scanAll([]byte(tc.input), SplitChunked, bsize)
				if tc.wantErr != "" {
					a.EqualError(err, tc.wantErr)
					return
				}
				a.NoError(err)
				a.Equal(tc.want, got)
			})
		}
	}
}

func TestAppendChunked(t *testing.T) {
	for _, tc := range []struct {
		payload  string
		maxChunk int
		want     string
	}{
		{payload: "foobar", maxChunk: 0, want: "\n#6\nfoobar\n##\n"},
		{payload: "foobar", maxChunk: 4, want: "\n#4\nfoob\n#2\nar\n##\n"},
		{payload: "foobar", maxChunk: 3, want: "\n#3\nfoo\n#3\nbar\n##\n"},
		{payload: "f", maxChunk: 1, want: "\n#1\nf\n##\n"},
	} {
		t.Run(fmt.Sprintf("%s/%d", tc.payload, tc.maxChunk), func(t *testing.T) {
			a := assert.New(t)
			got, err := AppendChunked(nil, []byte(tc.payload), tc.maxChunk)
			a.NoError(err)
			a.Equal(tc.want, string(got))
			back, err := scanAll(got, SplitChunked, 8)
			a.NoError(err)
			a.Equal([]string{tc.payload}, back)
		})
	}
	_, err := AppendChunked(nil, nil, 4)
	assert.Error(t, err)
}

// Each split function must report "need more" for every proper prefix
// of a frame and the full frame once it is complete.
func TestSplitResumable(t *testing.T) {
	chunked, _ := AppendChunked(nil, []byte("hello, world"), 5)
	for _, tc := range []struct {
		name  string
		split bufio.SplitFunc
		frame []byte
		want  string
	}{
		{name: "escaped", split: SplitEscaped, frame: AppendEscaped(nil, []byte("he\xffllo")), want: "he\xffllo"},
		{name: "delimited", split: SplitDelimited(Delimiter), frame: AppendDelimited(nil, []byte("hello"), Delimiter), want: "hello"},
		{name: "chunked", split: SplitChunked, frame: chunked, want: "hello, world"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)
			for i := 0; i < len(tc.frame); i++ {
				adv, tok, err := tc.split(tc.frame[:i], false)
				a.NoError(err, "prefix %d", i)
				a.Zero(adv, "prefix %d", i)
				a.Nil(tok, "prefix %d", i)
			}
			adv, tok, err := tc.split(tc.frame, false)
			a.NoError(err)
			a.Equal(len(tc.frame), adv)
			a.Equal(tc.want, string(tok))
		})
	}
}

func BenchmarkEscaped(b *testing.B) {
	frame := AppendEscaped(nil, bytes.Repeat([]byte("0123456789\xff"), 100))
	b.SetBytes(int64(len(frame)))
	for i := 0; i < b.N; i++ {
		if _, _, err := SplitEscaped(frame, false); err != nil {
			b.Fatal(err)
		}
	}
}
