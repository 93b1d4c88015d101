package gmail

import (
	"errors"
	"strings"

	"google.golang.org/api/googleapi"
)

// IsPermissionDenied reports whether err is an authorization or scope failure
// from the Gmail API. Gmail surfaces these as HTTP 401/403 or with the
// ACCESS_TOKEN_SCOPE_INSUFFICIENT reason; older responses only carry
// "insufficient"/"permission" in the message body.
func IsPermissionDenied(err error) bool {
	if err == nil {
		return false
	}
	var ge *googleapi.Error
	if errors.As(err, &ge) && (ge.Code == 401 || ge.Code == 403) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "access_token_scope_insufficient") ||
		strings.Contains(s, "insufficient") ||
		strings.Contains(s, "permission")
}
