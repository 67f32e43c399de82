package gateway

import (
	"strings"
	"time"
)

// bearerToken extracts the token from an "Authorization: Bearer <t>"
// header value, returning "" if the header is absent or malformed.
func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

func deadlineNow() time.Time {
	return time.Now().Add(wsWriteWait)
}
