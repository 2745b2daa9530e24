package scene

import (
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// IDGenerator produces node identities.
type IDGenerator interface {
	Generate() string
}

// UUIDGenerator generates time-sortable UUIDv7 node ids.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDGenerator struct{}

// Generate returns a hyphenated UUIDv7.
func (UUIDGenerator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// DefaultIDs is used by NewNode.
var DefaultIDs IDGenerator = UUIDGenerator{}

// NormalizeName returns the NFC form of a node name so that names loaded
// from files and names typed by callers compare equal.
func NormalizeName(s string) string {
	return norm.NFC.String(s)
}
