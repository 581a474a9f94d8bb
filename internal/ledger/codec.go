package ledger

import (
	"encoding/json"
	"fmt"
)

// ArgsCodec turns run arguments into the opaque string stored with a run
// and back.
type ArgsCodec interface {
	Encode(args []any) (string, error)
	Decode(encoded string) ([]any, error)
}

// JSONCodec stores arguments as a JSON array. No arguments encode as "[]".
type JSONCodec struct{}

func (JSONCodec) Encode(args []any) (string, error) {
	if args == nil {
		args = []any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encode args: %w", err)
	}
	return string(data), nil
}

func (JSONCodec) Decode(encoded string) ([]any, error) {
	if encoded == "" {
		return nil, nil
	}
	var args []any
	if err := json.Unmarshal([]byte(encoded), &args); err != nil {
		return nil, fmt.Errorf("decode args: %w", err)
	}
	return args, nil
}
