package rpc

import (
	"fmt"

	"github.com/ugorji/go/codec"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype used for peer messages.
const CodecName = "msgpack"

// msgpackCodec encodes peer messages with msgpack rather than protobuf.
type msgpackCodec struct {
}

func (c msgpackCodec) Marshal(v any) ([]byte, error) {
	var handle codec.MsgpackHandle
	var b []byte
	if err := codec.NewEncoderBytes(&b, &handle).Encode(v); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return b, nil
}

func (c msgpackCodec) Unmarshal(b []byte, v any) error {
	var handle codec.MsgpackHandle
	if err := codec.NewDecoderBytes(b, &handle).Decode(v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func (c msgpackCodec) Name() string {
	return CodecName
}

var _ encoding.Codec = msgpackCodec{}

func init() {
	encoding.RegisterCodec(msgpackCodec{})
}
