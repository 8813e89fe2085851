package syncapi

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype used by SyncService. Messages are
// protobuf encoded, wire compatible with api/proto/sync.proto.
const CodecName = "protowire"

type wireCodec struct{}

func (wireCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("marshal %T: not a SyncService message", v)
	}
	return m.marshalWire(nil)
}

func (wireCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("unmarshal %T: not a SyncService message", v)
	}
	if err := m.unmarshalWire(data); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

func (wireCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(wireCodec{})
}
