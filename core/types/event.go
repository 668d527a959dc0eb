package types

// Event is a typed audit record emitted by the gateway core. Attributes hold
// flat string key/value pairs so downstream indexers stay schema-free.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
