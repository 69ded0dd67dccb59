package api

import "encoding/json"

// JSONCodec encodes API messages as JSON. The API structs are plain Go types
// rather than generated protobufs, so both ends must force this codec on
// their gRPC options.
type JSONCodec struct{}

func (JSONCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (JSONCodec) Name() string { return "json" }
