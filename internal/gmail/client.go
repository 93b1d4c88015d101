package gmail

import "context"

// Client is the narrow Gmail surface required by inboxvalet. A Client is
// scoped to a single mailbox; the runtime package adapts *gmail.Service.
type Client interface {
	// ListInbox returns one page of INBOX message ids starting at pageToken.
	ListInbox(ctx context.Context, pageToken string, pageSize int64) (ListPage, error)
	// GetMessage fetches message headers and snippet. When full is false only
	// a metadata-format read is issued.
	GetMessage(ctx context.Context, id MessageID, full bool) (MessageMeta, error)
	// DeleteMessage permanently deletes a message (not trash).
	DeleteMessage(ctx context.Context, id MessageID) error
	// ModifyLabels adds and removes labels on a single message.
	ModifyLabels(ctx context.Context, id MessageID, add, remove []LabelID) error
	ListLabels(ctx context.Context) ([]Label, error)
	CreateLabel(ctx context.Context, name string) (Label, error)
	// ListHistory returns mailbox changes since startHistoryID.
	ListHistory(ctx context.Context, startHistoryID uint64, pageToken string) (HistoryPage, error)
	// Watch registers push notifications to the given Pub/Sub topic.
	Watch(ctx context.Context, topic string) (WatchInfo, error)
	StopWatch(ctx context.Context) error
}

// Factory builds mailbox-scoped clients. Reauthorize forces a fresh
// credential exchange and returns a replacement client; the cleanup loop
// calls it at most once per run when the provider reports a scope problem.
type Factory interface {
	Connect(ctx context.Context) (Client, error)
	Reauthorize(ctx context.Context) (Client, error)
}
