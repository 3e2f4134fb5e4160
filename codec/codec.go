// Package codec implements the two serialization formats spoken with
// the engine. The binary format is msgpack and the text format is JSON,
// both provided by the same codec library so that entities only need
// one set of struct tags.
package codec

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"reflect"
	"strings"

	"github.com/pkg/errors"
	"github.com/ugorji/go/codec"
)

// Format identifies a serialization format
type Format string

const (
	// FormatBinary serializes payloads with msgpack
	FormatBinary Format = "binary"

	// FormatText serializes payloads with JSON
	FormatText Format = "text"
)

const (
	ContentTypeMsgpack = "application/msgpack"
	ContentTypeJSON    = "application/json"
)

var (
	msgpackHandle = newMsgpackHandle()
	jsonHandle    = newJsonHandle()
)

func newMsgpackHandle() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	// use the bin and str8 types so that []byte and string values
	// can be told apart by the remote end
	h.WriteExt = true
	h.MapType = reflect.TypeOf(map[string]interface{}(nil))
	return h
}

func newJsonHandle() *codec.JsonHandle {
	h := &codec.JsonHandle{}
	h.MapType = reflect.TypeOf(map[string]interface{}(nil))
	return h
}

// ErrUnsupportedFormat is returned when a format is not one
// of the known formats
type ErrUnsupportedFormat struct {
	Format string
}

func (e ErrUnsupportedFormat) Error() string {
	return fmt.Sprintf("unsupported serialization format %q, "+
		"accepted values are %s, %s", e.Format, FormatBinary, FormatText)
}

// ErrUnsupportedContentType is returned when a content type does
// not map to any of the known formats
type ErrUnsupportedContentType struct {
	ContentType string
}

func (e ErrUnsupportedContentType) Error() string {
	return fmt.Sprintf("unsupported content type %q", e.ContentType)
}

// ParseFormat parses a format from its string representation. An
// empty string defaults to FormatBinary
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatBinary:
		return FormatBinary, nil
	case FormatText:
		return FormatText, nil
	default:
		return "", ErrUnsupportedFormat{Format: s}
	}
}

// FormatForContentType returns the format that decodes payloads
// of the provided content type. Media type parameters are ignored
func FormatForContentType(contentType string) (Format, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", ErrUnsupportedContentType{ContentType: contentType}
	}

	switch mediaType {
	case ContentTypeMsgpack, "application/x-msgpack", "application/vnd.msgpack":
		return FormatBinary, nil
	case ContentTypeJSON, "text/json":
		return FormatText, nil
	default:
		return "", ErrUnsupportedContentType{ContentType: contentType}
	}
}

// ContentType returns the content type used to advertise
// payloads serialized with the format
func (f Format) ContentType() string {
	if f == FormatText {
		return ContentTypeJSON
	}

	return ContentTypeMsgpack
}

func (f Format) String() string {
	return string(f)
}

func (f Format) handle() (codec.Handle, error) {
	switch f {
	case FormatBinary:
		return msgpackHandle, nil
	case FormatText:
		return jsonHandle, nil
	default:
		return nil, ErrUnsupportedFormat{Format: string(f)}
	}
}

// Serialize serializes v with the format into the writer
func Serialize(w io.Writer, f Format, v interface{}) error {
	h, err := f.handle()
	if err != nil {
		return err
	}

	if err := codec.NewEncoder(w, h).Encode(v); err != nil {
		return errors.Wrapf(err, "failed to encode %s payload", f)
	}

	return nil
}

// Deserialize deserializes the contents of the reader into v
func Deserialize(r io.Reader, f Format, v interface{}) error {
	h, err := f.handle()
	if err != nil {
		return err
	}

	if err := codec.NewDecoder(r, h).Decode(v); err != nil {
		return errors.Wrapf(err, "failed to decode %s payload", f)
	}

	return nil
}

// Marshal serializes v with the format
func Marshal(f Format, v interface{}) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 256))
	if err := Serialize(buf, f, v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Unmarshal deserializes p into v
func Unmarshal(f Format, p []byte, v interface{}) error {
	if len(p) == 0 {
		return errors.Errorf("failed to decode %s payload: empty payload", f)
	}

	return Deserialize(bytes.NewReader(p), f, v)
}
