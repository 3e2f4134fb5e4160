package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type payload struct {
	ID     string            `codec:"id"`
	Data   []byte            `codec:"data,omitempty"`
	Fee    *int64            `codec:"fee"`
	Params map[string]string `codec:"params,omitempty"`
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	assert.Nil(t, err)
	assert.Equal(t, FormatBinary, f)

	f, err = ParseFormat(" TEXT ")
	assert.Nil(t, err)
	assert.Equal(t, FormatText, f)

	_, err = ParseFormat("protobuf")
	assert.Equal(t, ErrUnsupportedFormat{Format: "protobuf"}, err)
}

func TestFormatContentType(t *testing.T) {
	assert.Equal(t, "application/msgpack", FormatBinary.ContentType())
	assert.Equal(t, "application/json", FormatText.ContentType())
}

func TestFormatForContentType(t *testing.T) {
	for contentType, expected := range map[string]Format{
		"application/json":                FormatText,
		"application/json; charset=utf-8": FormatText,
		"application/msgpack":             FormatBinary,
		"application/x-msgpack":           FormatBinary,
	} {
		f, err := FormatForContentType(contentType)
		assert.Nil(t, err, contentType)
		assert.Equal(t, expected, f, contentType)
	}

	_, err := FormatForContentType("text/html")
	assert.Equal(t, ErrUnsupportedContentType{ContentType: "text/html"}, err)

	_, err = FormatForContentType("")
	assert.Error(t, err)
}

func TestMarshalUnmarshalBinary(t *testing.T) {
	fee := int64(5000)
	in := payload{ID: "abc", Data: []byte{1, 2, 3}, Fee: &fee}

	p, err := Marshal(FormatBinary, &in)
	assert.Nil(t, err)

	var out payload
	assert.Nil(t, Unmarshal(FormatBinary, p, &out))
	assert.Equal(t, in, out)
}

func TestMarshalText(t *testing.T) {
	p, err := Marshal(FormatText, &payload{ID: "abc", Params: map[string]string{"a": "b"}})
	assert.Nil(t, err)
	assert.Equal(t, `{"id":"abc","fee":null,"params":{"a":"b"}}`, string(p))
}

func TestUnmarshalTextIntoMap(t *testing.T) {
	var out map[string]interface{}
	err := Unmarshal(FormatText, []byte(`{"success":true,"logs":["a"]}`), &out)

	assert.Nil(t, err)
	assert.Equal(t, true, out["success"])
}

func TestUnmarshalEmpty(t *testing.T) {
	var out payload
	assert.Error(t, Unmarshal(FormatBinary, nil, &out))
}

func TestUnmarshalMalformed(t *testing.T) {
	var out payload
	assert.Error(t, Unmarshal(FormatText, []byte("{not json"), &out))
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := Marshal(Format("xml"), &payload{})
	assert.Equal(t, ErrUnsupportedFormat{Format: "xml"}, err)
}
