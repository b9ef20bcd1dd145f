// Package codec provides ready-made decoders for the common payload
// encodings. A decoder pairs a type tag with a function that turns an
// envelope payload into a typed domain message.
package codec

import (
	"fmt"
	"reflect"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/drblury/pullflow/internal/runtime/jsoncodec"
)

// Decoder maps a type tag onto a payload decoding function.
type Decoder struct {
	tag    string
	decode func(payload []byte) (any, error)
}

// TypeTag returns the tag this decoder claims.
func (d Decoder) TypeTag() string { return d.tag }

// Decode turns a raw payload into a typed message.
func (d Decoder) Decode(payload []byte) (any, error) {
	return d.decode(payload)
}

// New builds a decoder from a tag and a decode function.
func New(tag string, decode func(payload []byte) (any, error)) Decoder {
	return Decoder{tag: tag, decode: decode}
}

// JSON builds a decoder that unmarshals JSON payloads into values of type T.
// Decoded messages are emitted as *T.
func JSON[T any](tag string) Decoder {
	return Decoder{
		tag: tag,
		decode: func(payload []byte) (any, error) {
			out := new(T)
			if err := jsoncodec.Unmarshal(payload, out); err != nil {
				return nil, fmt.Errorf("unmarshal %q payload: %w", tag, err)
			}
			return out, nil
		},
	}
}

// Proto builds a decoder that unmarshals protojson payloads into messages of
// type T. T must be a pointer to a generated protobuf struct.
func Proto[T proto.Message](tag string) Decoder {
	return Decoder{
		tag: tag,
		decode: func(payload []byte) (any, error) {
			msg, err := newProtoMessage[T]()
			if err != nil {
				return nil, err
			}
			if err := protojson.Unmarshal(payload, msg); err != nil {
				return nil, fmt.Errorf("unmarshal %q payload: %w", tag, err)
			}
			return msg, nil
		},
	}
}

// ProtoBinary builds a decoder for protobuf wire-format payloads.
func ProtoBinary[T proto.Message](tag string) Decoder {
	return Decoder{
		tag: tag,
		decode: func(payload []byte) (any, error) {
			msg, err := newProtoMessage[T]()
			if err != nil {
				return nil, err
			}
			if err := proto.Unmarshal(payload, msg); err != nil {
				return nil, fmt.Errorf("unmarshal %q payload: %w", tag, err)
			}
			return msg, nil
		},
	}
}

// Raw builds a decoder that passes the payload through untouched. The
// emitted message is a copied []byte.
func Raw(tag string) Decoder {
	return Decoder{
		tag: tag,
		decode: func(payload []byte) (any, error) {
			out := make([]byte, len(payload))
			copy(out, payload)
			return out, nil
		},
	}
}

// newProtoMessage instantiates a zero-value protobuf message for T via
// reflection, since the zero value of a pointer type is nil.
func newProtoMessage[T proto.Message]() (T, error) {
	var zero T
	typ := reflect.TypeOf(zero)
	if typ == nil {
		return zero, fmt.Errorf("proto decoder needs a concrete message type")
	}
	if typ.Kind() != reflect.Ptr {
		return zero, fmt.Errorf("proto message type %s must be a pointer", typ)
	}

	inst := reflect.New(typ.Elem()).Interface()
	typed, ok := inst.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected prototype type %s", typ)
	}
	return typed, nil
}
