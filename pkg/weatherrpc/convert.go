package weatherrpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// PayloadToStruct converts a JSON weather document into a Struct.
func PayloadToStruct(payload []byte) (*structpb.Struct, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("failed to convert payload: %w", err)
	}
	return s, nil
}

// StructToPayload converts a Struct back into a JSON weather document.
// Numbers come back as JSON numbers without exponent for values below 1e21.
func StructToPayload(s *structpb.Struct) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("struct cannot be nil")
	}
	return json.Marshal(s.AsMap())
}
