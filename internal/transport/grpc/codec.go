package grpcx

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName: content-subtype: application/grpc+json.
const CodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec: сообщения ChatService передаются JSON-ом, теми же типами, что и в REST.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }
