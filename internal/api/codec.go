// Package api defines the SortWatch gRPC contract: wire types, the service
// descriptor, a typed client and the JSON codec they travel with.
package api

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// CodecName is the gRPC content-subtype used by SortWatch calls.
const CodecName = "json"

// Codec marshals plain Go structs with encoding/json and protobuf messages
// with protojson, so health and reflection keep working over the same subtype.
type Codec struct{}

func init() { encoding.RegisterCodec(Codec{}) }

// Marshal encodes v.
func (Codec) Marshal(v any) ([]byte, error) {
	if m, ok := v.(proto.Message); ok {
		return protojson.Marshal(m)
	}
	return json.Marshal(v)
}

// Unmarshal decodes data into v.
func (Codec) Unmarshal(data []byte, v any) error {
	if m, ok := v.(proto.Message); ok {
		return protojson.Unmarshal(data, m)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// Name returns CodecName.
func (Codec) Name() string { return CodecName }
