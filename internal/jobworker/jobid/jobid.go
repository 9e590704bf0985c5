// Package jobid provides the JobId type: the server-minted identifier
// every jobworker operation addresses a job by.
package jobid

import (
	"fmt"

	"github.com/google/uuid"
)

// ErrInvalidBytes indicates a binary job id was not exactly 16 bytes long.
// The UUID version bits are not checked.
var ErrInvalidBytes = fmt.Errorf("invalid job id: expected 16 raw UUID bytes")

// ErrInvalidText indicates a textual job id did not parse as a UUID.
var ErrInvalidText = fmt.Errorf("invalid job id: expected hyphenated hex UUID")

// New mints a fresh, random JobId.
func New() ID {
	return ID(uuid.New())
}

// FromBytes decodes the canonical 16-byte RFC-4122 binary form, as received
// on the wire in a TargetJobId.jobid field.
func FromBytes(b []byte) (ID, error) {
	id, err := uuid.FromBytes(b)
	if err != nil {
		return ID{}, ErrInvalidBytes
	}
	return ID(id), nil
}

// Parse decodes the lowercase, hyphenated hexadecimal text form used by the
// CLI.
func Parse(s string) (ID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ID{}, ErrInvalidText
	}
	return ID(id), nil
}

// ID is a 128-bit version-4 UUID identifying one Job. The zero value is
// never minted by New and is only used as a placeholder on error paths.
type ID uuid.UUID

// Bytes returns the canonical 16-byte RFC-4122 binary encoding.
func (id ID) Bytes() []byte {
	b := uuid.UUID(id)
	out := make([]byte, len(b))
	copy(out, b[:])
	return out
}

// String returns the lowercase, hyphenated hexadecimal text form.
func (id ID) String() string {
	return uuid.UUID(id).String()
}
