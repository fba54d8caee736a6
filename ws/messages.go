package ws

// Message type discriminators. Every frame on either socket is a JSON object
// with a "type" field selecting one of these; unknown values are ignored.
const (
	// Presence socket, server → client
	TypePresence   = "presence"    // initial snapshot of online user IDs
	TypeUserStatus = "user_status" // a single user's online/offline transition

	// Call socket, client → server
	TypeCallInitiate = "call_initiate"
	TypeCallAccept   = "call_accept"
	TypeCallReject   = "call_reject"
	TypeCallEnd      = "call_end"
	TypeCallBusy     = "call_busy"

	// Call socket, server → client
	TypeIncomingCall = "incoming_call"
	TypeCallAccepted = "call_accepted"
	TypeCallRejected = "call_rejected"
	TypeCallBusyOut  = "call_busy"
	TypeCallEnded    = "call_ended"
	TypeUserOffline  = "user_offline"
)

// Call kinds
const (
	CallTypeVoice = "voice"
	CallTypeVideo = "video"
)

// Presence status values carried by user_status frames.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// PresenceSnapshot is sent once to every freshly-accepted presence
// connection so the client can render initial presence without waiting for
// individual status events.
type PresenceSnapshot struct {
	Type   string   `json:"type"`
	Online []string `json:"online"`
}

// UserStatus announces one user's presence transition to all clients.
type UserStatus struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	Status   string `json:"status"`
	LastSeen int64  `json:"last_seen,omitempty"` // Unix seconds, set on offline
}

// CallRequest is the inbound envelope on the call socket. The sender's
// identity is never read from here; it comes from the authenticated
// connection.
type CallRequest struct {
	Type        string `json:"type"`
	CallID      string `json:"call_id"`
	CallType    string `json:"call_type,omitempty"` // voice | video
	TargetID    string `json:"target_id,omitempty"`
	CallerName  string `json:"caller_name,omitempty"`
	CallerPhoto string `json:"caller_photo,omitempty"`
}

// CallEvent is the outbound envelope on the call socket.
type CallEvent struct {
	Type        string `json:"type"`
	CallID      string `json:"call_id"`
	CallType    string `json:"call_type,omitempty"`
	CallerID    string `json:"caller_id,omitempty"`
	CallerName  string `json:"caller_name,omitempty"`
	CallerPhoto string `json:"caller_photo,omitempty"`
}
