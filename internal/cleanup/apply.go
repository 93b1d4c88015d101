package cleanup

import (
	"context"
	"fmt"

	"github.com/inboxvalet/inboxvalet/internal/gmail"
)

// ActionRecord describes the Gmail mutation performed for a decision; it is
// persisted in the audit log.
type ActionRecord struct {
	Action string `json:"action"` // delete | archive | label
	Label  string `json:"label,omitempty"`
}

// applyDecision maps a decision to exactly one Gmail mutation. Labels are
// resolved with create=true so the action is self-healing the first time a
// category is seen in a mailbox.
func applyDecision(ctx context.Context, client gmail.Client, id gmail.MessageID, dec Decision, labels *LabelCache) (ActionRecord, error) {
	switch dec.Category {
	case CategorySpam:
		if err := client.DeleteMessage(ctx, id); err != nil {
			return ActionRecord{}, fmt.Errorf("delete message: %w", err)
		}
		return ActionRecord{Action: "delete"}, nil

	case CategoryReceipt:
		return archiveWithLabel(ctx, client, id, labels, ReceiptLabel)

	case CategoryUsefulArchive:
		name := dec.Label
		if name == "" {
			name = ArchiveFallbackLabel
		}
		return archiveWithLabel(ctx, client, id, labels, name)

	case CategoryRequiresResponse:
		return labelInPlace(ctx, client, id, labels, RequiresResponseLabel)

	case CategoryShouldRead:
		return labelInPlace(ctx, client, id, labels, ShouldReadLabel)
	}
	return ActionRecord{}, fmt.Errorf("%w: %q", ErrUnsupportedCategory, dec.Category)
}

func archiveWithLabel(ctx context.Context, client gmail.Client, id gmail.MessageID, labels *LabelCache, name string) (ActionRecord, error) {
	labelID, err := labels.Ensure(ctx, name, true)
	if err != nil {
		return ActionRecord{}, err
	}
	if err := client.ModifyLabels(ctx, id, []gmail.LabelID{labelID}, []gmail.LabelID{gmail.LabelInbox}); err != nil {
		return ActionRecord{}, fmt.Errorf("archive message: %w", err)
	}
	return ActionRecord{Action: "archive", Label: name}, nil
}

func labelInPlace(ctx context.Context, client gmail.Client, id gmail.MessageID, labels *LabelCache, name string) (ActionRecord, error) {
	labelID, err := labels.Ensure(ctx, name, true)
	if err != nil {
		return ActionRecord{}, err
	}
	if err := client.ModifyLabels(ctx, id, []gmail.LabelID{labelID}, nil); err != nil {
		return ActionRecord{}, fmt.Errorf("label message: %w", err)
	}
	return ActionRecord{Action: "label", Label: name}, nil
}
