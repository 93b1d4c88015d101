// Package watch processes Gmail push notifications: it decodes the Pub/Sub
// envelope, pages through mailbox history since the last seen point, and runs
// each newly added message through a four-way triage decision.
package watch

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Notification is the decoded Gmail push payload.
type Notification struct {
	EmailAddress string
	HistoryID    uint64
	// Expiration is carried through to mailbox state when present; Gmail
	// itself does not include it in push payloads.
	Expiration int64
}

type pubsubEnvelope struct {
	Message struct {
		Data string `json:"data"`
	} `json:"message"`
}

// historyId arrives as a JSON number from Gmail but as a string from some
// relay setups, so both fields decode through RawMessage.
type notificationPayload struct {
	EmailAddress string          `json:"emailAddress"`
	HistoryID    json.RawMessage `json:"historyId"`
	Expiration   json.RawMessage `json:"expiration"`
}

// ParseEnvelope decodes a Pub/Sub push envelope. Returns (nil, nil) when the
// envelope carries no Gmail data.
func ParseEnvelope(raw []byte) (*Notification, error) {
	var env pubsubEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode pubsub envelope: %w", err)
	}
	if env.Message.Data == "" {
		return nil, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(env.Message.Data)
	if err != nil {
		return nil, fmt.Errorf("decode notification data: %w", err)
	}
	var payload notificationPayload
	if err := json.Unmarshal(decoded, &payload); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	if payload.EmailAddress == "" || len(payload.HistoryID) == 0 {
		return nil, fmt.Errorf("notification missing emailAddress or historyId")
	}
	historyID, err := strconv.ParseUint(unquote(payload.HistoryID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse historyId %s: %w", payload.HistoryID, err)
	}
	n := &Notification{EmailAddress: payload.EmailAddress, HistoryID: historyID}
	if len(payload.Expiration) != 0 {
		if exp, err := strconv.ParseInt(unquote(payload.Expiration), 10, 64); err == nil {
			n.Expiration = exp
		}
	}
	return n, nil
}

func unquote(raw json.RawMessage) string {
	return strings.Trim(strings.TrimSpace(string(raw)), `"`)
}
