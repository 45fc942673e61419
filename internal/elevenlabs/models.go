package elevenlabs

// Conversation is a single call record as returned by the provider.
type Conversation struct {
	ConversationID    string `json:"conversation_id"`
	AgentID           string `json:"agent_id"`
	AgentName         string `json:"agent_name"`
	StartTimeUnixSecs int64  `json:"start_time_unix_secs"`
	CallStartTimeUnix int64  `json:"call_start_time_unix"`
	CallDurationSecs  int    `json:"call_duration_secs"`
	MessageCount      int    `json:"message_count"`
	// CallSuccessful is "success", "failure" or absent; anything else is
	// treated as pending by callers.
	CallSuccessful string `json:"call_successful"`
}

// StartUnix returns the call start time, supporting both field names the
// provider has used.
func (c Conversation) StartUnix() int64 {
	if c.CallStartTimeUnix != 0 {
		return c.CallStartTimeUnix
	}
	return c.StartTimeUnixSecs
}

// ConversationsPage is one page of the conversations listing.
type ConversationsPage struct {
	Conversations []Conversation `json:"conversations"`
	NextCursor    string         `json:"next_cursor"`
	HasMore       bool           `json:"has_more"`
}

// ConversationDetail is the full record for a single conversation.
type ConversationDetail struct {
	Summary    string                   `json:"summary"`
	Transcript []map[string]interface{} `json:"transcript"`
	Metadata   map[string]interface{}   `json:"metadata"`
}

// Audio is the recorded call audio.
type Audio struct {
	ContentType string
	Data        []byte
}
