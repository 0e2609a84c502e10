package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Payload limits applied when PayloadLimits fields are unset. Inbound
// batches carry the whole conversation, screenshots included, so the size
// default is generous.
const (
	DefaultMaxPayloadBytes = 16 << 20
	DefaultMaxJSONDepth    = 64
)

// Validation errors.
var (
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")
	ErrJSONTooDeep     = errors.New("JSON nesting exceeds maximum depth")
	ErrInvalidJSON     = errors.New("invalid JSON")
)

// PayloadLimits bound an untrusted JSON document.
type PayloadLimits struct {
	MaxBytes int
	MaxDepth int
}

func (l PayloadLimits) withDefaults() PayloadLimits {
	if l.MaxBytes <= 0 {
		l.MaxBytes = DefaultMaxPayloadBytes
	}
	if l.MaxDepth <= 0 {
		l.MaxDepth = DefaultMaxJSONDepth
	}
	return l
}

// ValidatePayload checks the size of data, then walks its tokens once to
// reject syntax errors and nesting deeper than the limit before any
// allocation-heavy decoding happens. Trailing data after the first value
// is rejected.
func ValidatePayload(data []byte, limits PayloadLimits) error {
	limits = limits.withDefaults()
	if len(data) > limits.MaxBytes {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(data), limits.MaxBytes)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	depth, values := 0, 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			if values == 0 {
				return fmt.Errorf("%w: empty document", ErrInvalidJSON)
			}
			if depth != 0 {
				return fmt.Errorf("%w: unexpected end of input", ErrInvalidJSON)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}
		if depth == 0 {
			values++
			if values > 1 {
				return fmt.Errorf("%w: unexpected data after top-level value", ErrInvalidJSON)
			}
		}

		switch tok {
		case json.Delim('{'), json.Delim('['):
			depth++
			if depth > limits.MaxDepth {
				return fmt.Errorf("%w: depth %d (max %d)", ErrJSONTooDeep, depth, limits.MaxDepth)
			}
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
}
