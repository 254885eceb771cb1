// Package ids generates and validates the 24-character hex document ids
// used for every persisted record.
package ids

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"time"
)

// New returns a new 24-character lowercase hex id. The first four bytes
// encode the creation time in seconds, so ids sort roughly by age.
func New() string {
	var b [12]byte
	binary.BigEndian.PutUint32(b[:4], uint32(time.Now().Unix()))
	if _, err := rand.Read(b[4:]); err != nil {
		// crypto/rand never fails on supported platforms
		panic("ids: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}

// Valid reports whether id is a well-formed 24-character hex id.
// Uppercase hex is accepted, matching the wire pattern ^[0-9a-fA-F]{24}$.
func Valid(id string) bool {
	if len(id) != 24 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
