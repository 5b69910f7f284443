package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// newModelID returns a unique model handle. The millisecond timestamp keeps
// ids sortable by load time; the uuid fragment keeps concurrent loads within
// one millisecond distinct.
func newModelID() string {
	return fmt.Sprintf("model_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}
