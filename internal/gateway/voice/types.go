package voice

import "encoding/json"

// Function names the closed set of scheduling tools the phone assistant may
// invoke. Anything else is rejected rather than guessed at.
type Function string

const (
	FunctionGetAvailableTimes Function = "get_available_times"
	FunctionBookAppointment   Function = "book_appointment"
	FunctionCancelAppointment Function = "cancel_appointment"
)

// Known reports whether the function is one the gateway implements.
func (f Function) Known() bool {
	switch f {
	case FunctionGetAvailableTimes, FunctionBookAppointment, FunctionCancelAppointment:
		return true
	}
	return false
}

// Event is the webhook payload the voice platform sends when its assistant
// invokes one of our tools during a call.
type Event struct {
	// ConversationID groups turns within a single call.
	ConversationID string `json:"conversation_id,omitempty"`
	// From is the caller's phone number (E.164).
	From string `json:"from,omitempty"`
	// To is the practice number that received the call (E.164).
	To string `json:"to,omitempty"`
	// Payload holds the tool invocation details.
	Payload Payload `json:"payload,omitempty"`
}

// Payload carries the tool invocation details.
type Payload struct {
	ToolName Function `json:"tool_name,omitempty"`
	// ToolCallID must be echoed back so the platform can correlate the
	// result.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// Arguments is a map of named arguments supplied by the assistant's
	// LLM.
	Arguments map[string]string `json:"arguments,omitempty"`
}

// Response is the JSON body returned to the voice platform. Response is
// spoken to the caller by TTS; Data carries structured results the
// assistant may reference in later turns.
type Response struct {
	ToolCallID string          `json:"tool_call_id"`
	Response   string          `json:"response"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// ErrorResponse is returned when the event itself cannot be processed.
// Details carries structured hints such as candidate times for an
// ambiguous booking request.
type ErrorResponse struct {
	ToolCallID string `json:"tool_call_id,omitempty"`
	Code       string `json:"code,omitempty"`
	Error      string `json:"error"`
	Details    any    `json:"details,omitempty"`
}
