// Package cleanup implements the batched inbox cleanup loop: paginate the
// INBOX, classify each message, apply the resulting Gmail action, and report
// each batch to the operator with an optional continue/stop checkpoint.
package cleanup

import "errors"

// Category is the five-way classification outcome driving the action taken on
// a message.
type Category string

const (
	CategorySpam             Category = "spam"
	CategoryReceipt          Category = "receipt"
	CategoryUsefulArchive    Category = "useful_archive"
	CategoryRequiresResponse Category = "requires_response"
	CategoryShouldRead       Category = "should_read"
)

// Categories lists all categories in canonical reporting order.
var Categories = []Category{
	CategorySpam,
	CategoryReceipt,
	CategoryUsefulArchive,
	CategoryRequiresResponse,
	CategoryShouldRead,
}

// categoryDisplay maps categories to the operator-facing summary line labels.
var categoryDisplay = map[Category]string{
	CategorySpam:             "Deleted as spam",
	CategoryReceipt:          "Receipts archived",
	CategoryUsefulArchive:    "Archived with labels",
	CategoryRequiresResponse: "Requires response (left in inbox)",
	CategoryShouldRead:       "Should read (left in inbox)",
}

// Fixed label names used by the decision applier.
const (
	ReceiptLabel          = "Receipts"
	RequiresResponseLabel = "Requiring Response"
	ShouldReadLabel       = "User Should Read"
	ArchiveFallbackLabel  = "Filed"
)

// Valid reports whether c is one of the enumerated categories.
func (c Category) Valid() bool {
	_, ok := categoryDisplay[c]
	return ok
}

// Display returns the operator-facing name for the category.
func (c Category) Display() string {
	return categoryDisplay[c]
}

// Decision is the parsed classification for one message. Label is only
// meaningful for useful_archive; the other archiving categories use fixed
// label names.
type Decision struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Reason     string   `json:"reason"`
	Summary    string   `json:"summary"`
	Label      string   `json:"label,omitempty"`
}

// MessageRecord is the operator-visible record kept for requires_response and
// should_read messages.
type MessageRecord struct {
	GmailID string `json:"gmail_id"`
	Subject string `json:"subject"`
	From    string `json:"from"`
	Summary string `json:"summary"`
	Reason  string `json:"reason"`
}

// MessageError records a per-message failure that the run absorbed.
type MessageError struct {
	GmailID string `json:"gmail_id"`
	Error   string `json:"error"`
}

var (
	// ErrInvalidArgument marks caller errors rejected before any side effect.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidResponse marks malformed classification output; fatal for the
	// message, never for the batch.
	ErrInvalidResponse = errors.New("invalid classification response")
	// ErrLabelNotFound is returned by LabelCache.Ensure when the label does
	// not exist and creation was not requested.
	ErrLabelNotFound = errors.New("label not found")
	// ErrUnsupportedCategory guards the applier against categories that
	// escaped parse validation.
	ErrUnsupportedCategory = errors.New("unsupported cleanup category")
)
