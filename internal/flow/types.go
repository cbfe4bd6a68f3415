// Package flow implements the encrypted WhatsApp Flow exchange: envelope
// detection, the screen-routing state machine, and response encoding.
//
// The platform client is the state holder — every request reports the
// screen it was submitted from — so routing is a flat, stateless dispatch
// over (flow_id, action, screen).
package flow

// Envelope is the inbound wire record of an encrypted Flow request. All
// three fields are base64; their presence together distinguishes a Flow
// payload from a regular message webhook.
type Envelope struct {
	EncryptedFlowData string `json:"encrypted_flow_data"`
	EncryptedAESKey   string `json:"encrypted_aes_key"`
	InitialVector     string `json:"initial_vector"`
}

// IsComplete reports whether all three encrypted fields are present.
func (e Envelope) IsComplete() bool {
	return e.EncryptedFlowData != "" && e.EncryptedAESKey != "" && e.InitialVector != ""
}

// Request is the decrypted Flow action envelope submitted by the client.
// Data is free-form: each route branch validates only the fields it reads.
type Request struct {
	Version   string         `json:"version,omitempty"`
	Action    string         `json:"action"`
	Screen    string         `json:"screen,omitempty"`
	FlowID    string         `json:"flow_id,omitempty"`
	FlowToken string         `json:"flow_token,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Response is the next screen the client should render. Data values are
// display-ready; the client renders the strings as-is.
type Response struct {
	Screen string         `json:"screen"`
	Data   map[string]any `json:"data"`
}

// Actions with fixed meaning across all flows. Flow-specific terminal
// actions (Definition.SuccessAction) come on top of these.
const (
	ActionPing         = "ping"
	ActionInit         = "INIT"
	ActionDataExchange = "data_exchange"
)

// ScreenUnknown is reported by clients that do not know their screen.
const ScreenUnknown = "UNKNOWN"

// deepCopyMap clones a string-keyed map including nested maps and slices,
// so per-request template mutation never writes through to the shared
// registry.
func deepCopyMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = deepCopyValue(v)
	}
	return dst
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
