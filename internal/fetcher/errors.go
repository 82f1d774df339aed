package fetcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrBlocked marks the relay's rate-limit response.
var ErrBlocked = errors.New("relay reported upstream block")

// UpstreamError is a non-success response from a feed host or the relay.
type UpstreamError struct {
	Mode      Mode
	Status    int
	Message   string
	Retryable bool
	blocked   bool
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s fetch: upstream status %d", e.Mode, e.Status)
	}
	return fmt.Sprintf("%s fetch: upstream status %d: %s", e.Mode, e.Status, e.Message)
}

// Is lets errors.Is(err, ErrBlocked) match relay block responses.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrBlocked && e.blocked
}

type relayErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// parseRelayError extracts the structured error the relay returns. Unknown
// bodies are kept as a short text message.
func parseRelayError(status int, body []byte) (int, string) {
	var parsed relayErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		msg := parsed.Error
		if msg == "" {
			msg = parsed.Message
		}
		upstream := status
		if parsed.Status > 0 {
			upstream = parsed.Status
		}
		return upstream, msg
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return status, text
}
