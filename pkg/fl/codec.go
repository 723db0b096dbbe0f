package fl

import (
	"encoding/base64"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// MarshalParameters encodes a ParameterSet as CBOR.
func MarshalParameters(ps ParameterSet) ([]byte, error) {
	data, err := cbor.Marshal(ps)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parameters: %w", err)
	}

	return data, nil
}

func UnmarshalParameters(data []byte) (ParameterSet, error) {
	var ps ParameterSet
	if err := cbor.Unmarshal(data, &ps); err != nil {
		return nil, fmt.Errorf("failed to decode parameters: %w", err)
	}
	if err := ps.Validate(); err != nil {
		return nil, err
	}

	return ps, nil
}

// EncodeParameters returns the base64 CBOR form used inside JSON messages.
func EncodeParameters(ps ParameterSet) (string, error) {
	data, err := MarshalParameters(ps)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(data), nil
}

func DecodeParameters(s string) (ParameterSet, error) {
	if s == "" {
		return nil, ErrEmptyParameters
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 parameters: %w", err)
	}

	return UnmarshalParameters(data)
}
