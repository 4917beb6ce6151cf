// SPDX-License-Identifier: Apache-2.0

package extraction

import (
	"strings"
	"time"
)

// Tokens streamed inline with assistant replies. These are a fixed contract
// with the producer.
const (
	DataMarker           = "---DATA---"
	StreamCompleteMarker = "__STREAM_COMPLETE__"
	StreamEndMarker      = "[STREAM_END]"
	PhaseCompleteMarker  = "[PHASE:COMPLETE]"
)

// Phases are the values of the inline [PHASE:<name>] markers.
var Phases = []string{"INITIAL", "SEARCHING", "PROCESSING", "FINALIZING", "STRUCTURING", "COMPLETE"}

// terminalMarkers end a stream regardless of what the data section looks like.
var terminalMarkers = []string{StreamCompleteMarker, PhaseCompleteMarker, StreamEndMarker}

var controlTokens = func() []string {
	tokens := []string{StreamCompleteMarker, StreamEndMarker}
	for _, p := range Phases {
		tokens = append(tokens, PhaseMarker(p))
	}
	return tokens
}()

// PhaseMarker renders the inline marker for phase.
func PhaseMarker(phase string) string {
	return "[PHASE:" + phase + "]"
}

// StripControlTokens removes every completion and phase marker from s.
func StripControlTokens(s string) string {
	for _, tok := range controlTokens {
		s = strings.ReplaceAll(s, tok, "")
	}
	return s
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// RawMessage is a chat message as received. While streaming, Content only
// ever grows by appending.
type RawMessage struct {
	ID             string    `json:"id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	ConversationID string    `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
}
