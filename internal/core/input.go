package core

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ErrEmptyFile is returned for submissions without content.
var ErrEmptyFile = errors.New("empty file")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Checksum returns the lowercase hex SHA-256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ChecksumReader hashes r to EOF and reports how many bytes it read.
func ChecksumReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, fmt.Errorf("checksum: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// PrepareInput strips a leading UTF-8 BOM and replaces bytes that are not
// valid UTF-8 with U+FFFD, which validation then treats as any other
// non-ASCII character. The checksum is always taken before this step.
func PrepareInput(data []byte) ([]byte, error) {
	out, err := io.ReadAll(NewSanitizingReader(NewBOMReader(bytes.NewReader(data))))
	if err != nil {
		return nil, fmt.Errorf("prepare input: %w", err)
	}
	return out, nil
}

// BOMReader drops a UTF-8 byte order mark at the start of the stream.
type BOMReader struct {
	r       *bufio.Reader
	checked bool
}

func NewBOMReader(r io.Reader) *BOMReader {
	return &BOMReader{r: bufio.NewReader(r)}
}

func (b *BOMReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		head, err := b.r.Peek(len(utf8BOM))
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if bytes.Equal(head, utf8BOM) {
			b.r.Discard(len(utf8BOM))
		}
	}
	return b.r.Read(p)
}

// SanitizingReader replaces invalid UTF-8 bytes with U+FFFD while streaming.
// A multi-byte sequence split across reads is carried into the next read.
type SanitizingReader struct {
	r     io.Reader
	carry []byte
	buf   []byte
	out   []byte
	err   error
}

func NewSanitizingReader(r io.Reader) *SanitizingReader {
	return &SanitizingReader{r: r, buf: make([]byte, 32*1024)}
}

func (s *SanitizingReader) Read(p []byte) (int, error) {
	for len(s.out) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		s.fill()
	}
	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}

func (s *SanitizingReader) fill() {
	n, err := s.r.Read(s.buf)
	chunk := append(s.carry, s.buf[:n]...)
	s.carry = nil

	atEOF := err != nil
	if !atEOF {
		if k := partialRuneSuffix(chunk); k > 0 {
			s.carry = append([]byte(nil), chunk[len(chunk)-k:]...)
			chunk = chunk[:len(chunk)-k]
		}
	}

	s.out = sanitize(chunk)
	s.err = err
}

// sanitize returns chunk with each invalid byte replaced by U+FFFD.
func sanitize(chunk []byte) []byte {
	if utf8.Valid(chunk) {
		return chunk
	}
	out := make([]byte, 0, len(chunk)+8)
	for i := 0; i < len(chunk); {
		r, size := utf8.DecodeRune(chunk[i:])
		if r == utf8.RuneError && size == 1 {
			out = utf8.AppendRune(out, utf8.RuneError)
		} else {
			out = append(out, chunk[i:i+size]...)
		}
		i += size
	}
	return out
}

// partialRuneSuffix returns the length of an incomplete but so far valid
// multi-byte sequence at the end of b, or 0.
func partialRuneSuffix(b []byte) int {
	for k := 1; k < utf8.UTFMax && k <= len(b); k++ {
		c := b[len(b)-k]
		if c < utf8.RuneSelf {
			return 0
		}
		if utf8.RuneStart(c) {
			if utf8.FullRune(b[len(b)-k:]) {
				return 0
			}
			return k
		}
	}
	return 0
}
