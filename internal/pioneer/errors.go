package pioneer

import (
	"errors"
	"fmt"
)

// ErrUnreachable marks connection-level failures: the service could not be
// reached at all, as opposed to reaching it and being rejected.
var ErrUnreachable = errors.New("personalization service unreachable")

// UpstreamError is a non-2xx response from the personalization service,
// carrying the HTTP status and whatever detail the service provided.
type UpstreamError struct {
	Op     string
	Status int
	Detail string
}

func (e *UpstreamError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("pioneer %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("pioneer %s: status %d: %s", e.Op, e.Status, e.Detail)
}
