package api

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"google.golang.org/protobuf/types/known/structpb"
)

// decodeRequest copies a request struct's fields into out by their
// mapstructure tags. JSON numbers arrive as float64 and are narrowed.
func decodeRequest(in *structpb.Struct, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      false,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in.AsMap()); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

// encode turns any JSON-marshalable value into a Struct. v must marshal
// to a JSON object.
func encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return structpb.NewStruct(m)
}

// decode is encode's inverse, used on the client side.
func decode(s *structpb.Struct, out any) error {
	return convert(s.AsMap(), out)
}

func convert(in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
