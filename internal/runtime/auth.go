package runtime

import (
	"context"
	"log/slog"
	"os"

	"github.com/mbrt/gmailctl/cmd/gmailctl/localcred"

	gc "github.com/inboxvalet/inboxvalet/internal/gmail"
)

// CredentialFactory builds Gmail clients for one mailbox from a gmailctl-style
// credential directory. Reauthorize runs the credential exchange again, which
// re-prompts for consent when the cached token lacks the required scopes.
type CredentialFactory struct {
	ConfigDir string
	Mailbox   string
}

func (f CredentialFactory) Connect(ctx context.Context) (gc.Client, error) {
	return f.connect(ctx)
}

func (f CredentialFactory) Reauthorize(ctx context.Context) (gc.Client, error) {
	// localcred re-runs the OAuth flow when the cached token is rejected, so a
	// reconnect is a forced reauthorization from the caller's point of view.
	return f.connect(ctx)
}

func (f CredentialFactory) connect(ctx context.Context) (gc.Client, error) {
	svc, err := (localcred.Provider{}).Service(ctx, f.ConfigDir)
	if err != nil {
		return nil, err
	}
	return NewGoogleAPIClient(svc, f.Mailbox), nil
}

var _ gc.Factory = CredentialFactory{}

func DefaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
