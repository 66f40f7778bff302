package serializer

import (
	"encoding/json"

	apperrors "github.com/arielkovacs/msgbus/internal/errors"
)

// JSON is the baseline Serializer implementation.
type JSON struct{}

// NewJSON constructs the baseline JSON serializer.
func NewJSON() *JSON {
	return &JSON{}
}

func (j *JSON) Name() string {
	return "json"
}

func (j *JSON) Encode(env *Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeEncode, "failed to encode envelope", err)
	}
	return data, nil
}

func (j *JSON) Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, apperrors.New(apperrors.CodeDecode, "failed to decode envelope", err)
	}
	return &env, nil
}
