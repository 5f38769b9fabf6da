// Package identity derives the deterministic record identity shared by a
// defect and its repair record.
package identity

import (
	"fmt"

	"github.com/google/uuid"
)

// Key returns the logical key hashed into an identity.
func Key(lot string, board, defect int) string {
	return fmt.Sprintf("%s_%d_%d", lot, board, defect)
}

// Generate returns the UUIDv5 (DNS namespace) of Key(lot, board, defect).
// Identities produced here match rows written by earlier tooling, so the
// namespace and key format must not change.
func Generate(lot string, board, defect int) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(Key(lot, board, defect))).String()
}
