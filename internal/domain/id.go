package domain

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns an opaque short id. Ids are assigned once at entity
// construction and never recomputed or reused.
func NewID() string {
	s := uuid.New().String()
	return s[:strings.Index(s, "-")]
}
