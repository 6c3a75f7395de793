package face

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Decode errors.
var (
	ErrEmptyPayload   = errors.New("face: empty image payload")
	ErrInvalidDataURL = errors.New("face: invalid data URL")
)

// DecodePayload turns the wire image string into raw encoded bytes
// (JPEG/PNG). It accepts bare base64 or a data URL such as
// "data:image/jpeg;base64,<data>".
func DecodePayload(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, ErrEmptyPayload
	}

	if strings.Contains(payload, ",") {
		parts := strings.Split(payload, ",")
		if len(parts) != 2 {
			return nil, ErrInvalidDataURL
		}
		payload = parts[1]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some browsers strip the padding.
		if data, err2 := base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "=")); err2 == nil {
			return data, nil
		}
		return nil, fmt.Errorf("face: base64 decode: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	return data, nil
}
