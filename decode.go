package xtele

import "context"

// DecodeCodec unmarshals an envelope payload into a typed value using the
// provided codec.
func DecodeCodec[T any](c Codec, env *Envelope) (T, error) {
	var v T
	if err := c.Unmarshal(env.Payload, &v); err != nil {
		return v, err
	}
	return v, nil
}

// Decode unmarshals env.Payload into T using a Codec found in ctx.
// Falls back to the default JSON codec if none was injected.
func Decode[T any](ctx context.Context, env *Envelope) (T, error) {
	c, ok := CodecFromContext(ctx)
	if !ok || c == nil {
		c = JSONCodec{}
	}
	return DecodeCodec[T](c, env)
}
