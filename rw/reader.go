package rw

import (
	"bytes"
	"errors"
	"io"
)

// ErrLimitExceeded signals that the underlying reader has more
// available bytes than the expected limit
var ErrLimitExceeded = errors.New("read limit exceeded")

// ReadLimitProps sets up the behaviour of the limited reads
type ReadLimitProps struct {
	// FailOnExceed defines whether reading should fail if the
	// underlying reader has more bytes than the limit. Otherwise
	// the remaining bytes are silently left unread
	FailOnExceed bool

	// Limit is the maximum number of bytes that can be read from the
	// reader and copied to the provided writer
	Limit int64
}

// CopyWithLimit copies at most props.Limit bytes from an io.Reader to
// an io.Writer
func CopyWithLimit(w io.Writer, r io.Reader, props ReadLimitProps) (int64, error) {
	if r == nil {
		return 0, nil
	}

	if w == nil {
		return 0, errors.New("writer cannot be nil")
	}

	readerLimit := props.Limit
	if props.FailOnExceed {
		// read one more byte than required. This is the only way we
		// can verify whether the reader has more data than the limit
		readerLimit++
	}

	n, err := io.CopyN(w, r, readerLimit)
	if err != nil && err != io.EOF {
		return n, err
	}

	if props.FailOnExceed && n > props.Limit {
		return n, ErrLimitExceeded
	}

	return n, nil
}

// ReadAllWithLimit reads the contents of the reader until EOF as
// long as they fit within the limit
func ReadAllWithLimit(r io.Reader, props ReadLimitProps) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 512))
	if _, err := CopyWithLimit(buf, r, props); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
