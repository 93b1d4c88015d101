package gmail

import "strings"

type MessageID string
type LabelID string

// LabelInbox gates inbox visibility; removing it archives a message.
const LabelInbox LabelID = "INBOX"

// Label describes a mailbox label. Type is "user" or "system".
type Label struct {
	ID   LabelID
	Name string
	Type string
}

// MessageMeta is the header-level view of a message used for classification.
// Header keys are lower-cased (from, to, subject, date, message-id).
type MessageMeta struct {
	ID       MessageID
	Snippet  string
	Headers  map[string]string
	LabelIDs []LabelID
}

// Header returns the named header (case-insensitive), or "".
func (m MessageMeta) Header(name string) string {
	return m.Headers[strings.ToLower(name)]
}

// ListPage is one page of inbox message ids.
type ListPage struct {
	IDs                []MessageID
	NextPageToken      string
	ResultSizeEstimate int64
}

// HistoryPage is one page of mailbox history since a known history id.
type HistoryPage struct {
	Added         []MessageID
	HistoryID     uint64
	NextPageToken string
}

// WatchInfo is the provider's response to a watch registration.
type WatchInfo struct {
	HistoryID  uint64
	Expiration int64 // unix millis
}
