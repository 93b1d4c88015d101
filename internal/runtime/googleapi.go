// Package runtime adapts the real Google API surface (and credentials) to the
// narrow interfaces the rest of inboxvalet consumes.
package runtime

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/gmail/v1"

	gc "github.com/inboxvalet/inboxvalet/internal/gmail"
)

// metadataHeaders is the header set requested on metadata-format reads.
var metadataHeaders = []string{"From", "To", "Subject", "Date", "Message-ID"}

type googleClient struct {
	svc    *gmail.Service
	userID string
}

// NewGoogleAPIClient wraps *gmail.Service for a single mailbox. userID is the
// mailbox address, or "me" for the authenticated user.
func NewGoogleAPIClient(svc *gmail.Service, userID string) gc.Client {
	if userID == "" {
		userID = "me"
	}
	return &googleClient{svc: svc, userID: userID}
}

func (g *googleClient) ListInbox(ctx context.Context, pageToken string, pageSize int64) (gc.ListPage, error) {
	call := g.svc.Users.Messages.List(g.userID).
		LabelIds("INBOX").
		MaxResults(pageSize)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	res, err := call.Context(ctx).Do()
	if err != nil {
		return gc.ListPage{}, err
	}
	page := gc.ListPage{
		NextPageToken:      res.NextPageToken,
		ResultSizeEstimate: res.ResultSizeEstimate,
	}
	for _, m := range res.Messages {
		page.IDs = append(page.IDs, gc.MessageID(m.Id))
	}
	return page, nil
}

func (g *googleClient) GetMessage(ctx context.Context, id gc.MessageID, full bool) (gc.MessageMeta, error) {
	call := g.svc.Users.Messages.Get(g.userID, string(id))
	if full {
		call = call.Format("full")
	} else {
		call = call.Format("metadata").MetadataHeaders(metadataHeaders...)
	}
	msg, err := call.Context(ctx).Do()
	if err != nil {
		return gc.MessageMeta{}, err
	}
	meta := gc.MessageMeta{
		ID:      id,
		Snippet: msg.Snippet,
		Headers: map[string]string{},
	}
	for _, l := range msg.LabelIds {
		meta.LabelIDs = append(meta.LabelIDs, gc.LabelID(l))
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			if h.Name != "" && h.Value != "" {
				meta.Headers[strings.ToLower(h.Name)] = h.Value
			}
		}
	}
	return meta, nil
}

func (g *googleClient) DeleteMessage(ctx context.Context, id gc.MessageID) error {
	return g.svc.Users.Messages.Delete(g.userID, string(id)).Context(ctx).Do()
}

func (g *googleClient) ModifyLabels(ctx context.Context, id gc.MessageID, add, remove []gc.LabelID) error {
	req := &gmail.ModifyMessageRequest{
		AddLabelIds:    toStrings(add),
		RemoveLabelIds: toStrings(remove),
	}
	if len(req.AddLabelIds) == 0 && len(req.RemoveLabelIds) == 0 {
		return nil
	}
	_, err := g.svc.Users.Messages.Modify(g.userID, string(id), req).Context(ctx).Do()
	return err
}

func (g *googleClient) ListLabels(ctx context.Context) ([]gc.Label, error) {
	res, err := g.svc.Users.Labels.List(g.userID).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	labels := make([]gc.Label, 0, len(res.Labels))
	for _, l := range res.Labels {
		labels = append(labels, gc.Label{ID: gc.LabelID(l.Id), Name: l.Name, Type: l.Type})
	}
	return labels, nil
}

func (g *googleClient) CreateLabel(ctx context.Context, name string) (gc.Label, error) {
	created, err := g.svc.Users.Labels.Create(g.userID, &gmail.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return gc.Label{}, fmt.Errorf("create label %q: %w", name, err)
	}
	return gc.Label{ID: gc.LabelID(created.Id), Name: created.Name, Type: created.Type}, nil
}

func (g *googleClient) ListHistory(ctx context.Context, startHistoryID uint64, pageToken string) (gc.HistoryPage, error) {
	call := g.svc.Users.History.List(g.userID).
		StartHistoryId(startHistoryID).
		HistoryTypes("messageAdded")
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	res, err := call.Context(ctx).Do()
	if err != nil {
		return gc.HistoryPage{}, err
	}
	page := gc.HistoryPage{
		HistoryID:     res.HistoryId,
		NextPageToken: res.NextPageToken,
	}
	for _, rec := range res.History {
		for _, added := range rec.MessagesAdded {
			if added.Message != nil {
				page.Added = append(page.Added, gc.MessageID(added.Message.Id))
			}
		}
	}
	return page, nil
}

func (g *googleClient) Watch(ctx context.Context, topic string) (gc.WatchInfo, error) {
	res, err := g.svc.Users.Watch(g.userID, &gmail.WatchRequest{
		TopicName:         topic,
		LabelIds:          []string{"INBOX"},
		LabelFilterAction: "include",
	}).Context(ctx).Do()
	if err != nil {
		return gc.WatchInfo{}, err
	}
	return gc.WatchInfo{HistoryID: res.HistoryId, Expiration: res.Expiration}, nil
}

func (g *googleClient) StopWatch(ctx context.Context) error {
	return g.svc.Users.Stop(g.userID).Context(ctx).Do()
}

func toStrings(ids []gc.LabelID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, string(id))
		}
	}
	return out
}
