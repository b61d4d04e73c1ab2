// Package codec provides the JSON codec used on the wire and in storage.
package codec

import (
	"bytes"
	"encoding/json"

	"github.com/go-kratos/kratos/v2/encoding"
)

const Name = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

// Marshal encodes v without HTML escaping, so processor names and other
// firmware strings are stored and served byte for byte.
func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return Name }

// Marshal encodes v with the registered JSON codec.
func Marshal(v interface{}) ([]byte, error) {
	return encoding.GetCodec(Name).Marshal(v)
}

// Unmarshal decodes data with the registered JSON codec.
func Unmarshal(data []byte, v interface{}) error {
	return encoding.GetCodec(Name).Unmarshal(data, v)
}
