package api

import "encoding/json"

// jsonCodec carries admin RPC messages as JSON. Both ends force it, so the
// plain Go request and reply structs below travel without generated stubs.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }
