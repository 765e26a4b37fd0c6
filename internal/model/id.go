package model

import (
	"encoding/base32"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const idSuffixLen = 8

var idEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID generates a link id: the creation time in base36 milliseconds,
// a dash, and a random suffix taken from a v4 UUID.
func NewID(now time.Time) string {
	id := uuid.New()
	suffix := strings.ToLower(idEncoding.EncodeToString(id[:]))[:idSuffixLen]
	return strconv.FormatInt(now.UnixMilli(), 36) + "-" + suffix
}

// ValidateID reports whether id looks like something a store could have issued.
// Imported ids from other installs are accepted as long as they are short and URL-safe.
func ValidateID(id string) bool {
	if len(id) < 4 || len(id) > 64 {
		return false
	}
	for _, c := range id {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_') {
			return false
		}
	}
	return true
}
