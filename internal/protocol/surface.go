package protocol

// MessageKind is the envelope type of a surface wire message. The surface
// helper protocol is NDJSON over the helper's stdin/stdout.
type MessageKind string

const (
	// MessageKindPrompt is sent to the helper once, right after it starts.
	MessageKindPrompt MessageKind = "prompt"
	// MessageKindAnswer is sent by the helper when the operator decides.
	MessageKindAnswer MessageKind = "answer"
	// MessageKindClose tells the helper to tear its surface down.
	MessageKindClose MessageKind = "close"
)

// Prompt carries a DecisionRequest to a helper process.
type Prompt struct {
	Kind       MessageKind `json:"kind"`
	RequestID  string      `json:"request_id"`
	DeviceName string      `json:"device_name"`
	Passkey    string      `json:"passkey"`
}

// Answer is the operator's decision as reported by a helper process.
type Answer struct {
	Kind      MessageKind `json:"kind"`
	RequestID string      `json:"request_id"`
	Accept    bool        `json:"accept"`
}

// Close asks a helper process to exit.
type Close struct {
	Kind      MessageKind `json:"kind"`
	RequestID string      `json:"request_id"`
}

// NewPrompt builds the wire form of req.
func NewPrompt(req DecisionRequest) *Prompt {
	return &Prompt{
		Kind:       MessageKindPrompt,
		RequestID:  req.RequestID,
		DeviceName: req.DeviceName,
		Passkey:    req.Passkey,
	}
}

// DecisionRequest converts a prompt back to the operator-facing form.
func (p *Prompt) DecisionRequest() DecisionRequest {
	return DecisionRequest{
		RequestID:  p.RequestID,
		DeviceName: p.DeviceName,
		Passkey:    p.Passkey,
	}
}
