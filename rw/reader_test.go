package rw

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestCopyWithLimitWithinLimit(t *testing.T) {
	w := bytes.NewBuffer(nil)

	n, err := CopyWithLimit(w, bytes.NewBufferString("some data"),
		ReadLimitProps{FailOnExceed: true, Limit: 16})

	assert.Nil(t, err)
	assert.Equal(t, int64(9), n)
	assert.Equal(t, "some data", w.String())
}

func TestCopyWithLimitExactLimit(t *testing.T) {
	w := bytes.NewBuffer(nil)

	n, err := CopyWithLimit(w, bytes.NewBufferString("some data"),
		ReadLimitProps{FailOnExceed: true, Limit: 9})

	assert.Nil(t, err)
	assert.Equal(t, int64(9), n)
}

func TestCopyWithLimitExceedFail(t *testing.T) {
	w := bytes.NewBuffer(nil)

	_, err := CopyWithLimit(w, bytes.NewBufferString("some data"),
		ReadLimitProps{FailOnExceed: true, Limit: 4})

	assert.Equal(t, ErrLimitExceeded, err)
}

func TestCopyWithLimitExceedTruncate(t *testing.T) {
	w := bytes.NewBuffer(nil)

	n, err := CopyWithLimit(w, bytes.NewBufferString("some data"),
		ReadLimitProps{FailOnExceed: false, Limit: 4})

	assert.Nil(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, "some", w.String())
}

func TestCopyWithLimitNilWriter(t *testing.T) {
	_, err := CopyWithLimit(nil, bytes.NewBufferString("some data"),
		ReadLimitProps{Limit: 4})

	assert.Error(t, err)
}

func TestCopyWithLimitReaderError(t *testing.T) {
	_, err := CopyWithLimit(bytes.NewBuffer(nil), failingReader{},
		ReadLimitProps{Limit: 4})

	assert.EqualError(t, err, "connection reset")
}

func TestReadAllWithLimit(t *testing.T) {
	p, err := ReadAllWithLimit(bytes.NewBufferString("{\"success\":true}"),
		ReadLimitProps{FailOnExceed: true, Limit: 1024})

	assert.Nil(t, err)
	assert.Equal(t, "{\"success\":true}", string(p))

	_, err = ReadAllWithLimit(bytes.NewBufferString("{\"success\":true}"),
		ReadLimitProps{FailOnExceed: true, Limit: 4})
	assert.Equal(t, ErrLimitExceeded, err)
}
