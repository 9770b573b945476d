package engine

import (
	"encoding/json"

	"github.com/bufbuild/connect-go"
)

// jsonCodec lets Connect carry plain Go structs without generated protobuf types.
type jsonCodec struct{}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

var _ connect.Codec = jsonCodec{}
