package runtime

import (
	"fmt"

	errspkg "github.com/drblury/pullflow/internal/runtime/errors"
)

// decoderRegistry maps type tags to decoders. Built once at construction and
// immutable for the lifetime of a Source.
type decoderRegistry struct {
	byTag  map[string]Decoder
	single Decoder // set iff exactly one decoder is registered
}

func newDecoderRegistry(decoders []Decoder) (*decoderRegistry, error) {
	if len(decoders) == 0 {
		return nil, errspkg.ErrDecodersRequired
	}

	byTag := make(map[string]Decoder, len(decoders))
	for _, dec := range decoders {
		if dec == nil {
			return nil, fmt.Errorf("pullflow: decoder collection contains a nil decoder")
		}
		tag := dec.TypeTag()
		if tag == "" {
			return nil, fmt.Errorf("pullflow: decoder %T declares an empty type tag", dec)
		}
		if _, exists := byTag[tag]; exists {
			return nil, fmt.Errorf("%w: %q", errspkg.ErrDuplicateTypeTag, tag)
		}
		byTag[tag] = dec
	}

	reg := &decoderRegistry{byTag: byTag}
	if len(decoders) == 1 {
		reg.single = decoders[0]
	}
	return reg, nil
}

// resolve picks the decoder for an envelope. A nil, nil return means no
// registered decoder matches and the envelope is not interesting; the two
// untagged-envelope fatals keep distinct sentinels so callers can tell an
// empty registry from an ambiguous one.
func (r *decoderRegistry) resolve(env Envelope, tagKey string) (Decoder, error) {
	if tag, ok := typeTagOf(env, tagKey); ok {
		return r.byTag[tag], nil
	}

	switch len(r.byTag) {
	case 1:
		// No tag but a single registered type: treat it as implicit.
		return r.single, nil
	case 0:
		// Only reachable for a hand-built registry; newDecoderRegistry
		// rejects an empty decoder set.
		return nil, errspkg.ErrNoDecoders
	default:
		return nil, errspkg.ErrAmbiguousTypeTag
	}
}

func (r *decoderRegistry) tags() []string {
	tags := make([]string, 0, len(r.byTag))
	for tag := range r.byTag {
		tags = append(tags, tag)
	}
	return tags
}
