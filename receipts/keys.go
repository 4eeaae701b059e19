package receipts

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
)

func uuidFromPendingKey(key []byte) (id uuid.UUID, err error) {
	raw, found := bytes.CutPrefix(key, pendingPrefix)
	if !found {
		return id, fmt.Errorf("missing prefix %s", pendingPrefix)
	}
	return uuid.ParseBytes(raw)
}
