package middleware

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// ValidateQueryContent validates an incoming chat query.
func ValidateQueryContent(content string) error {
	if len(content) == 0 {
		return errors.New("query cannot be empty")
	}
	if len(content) > 100000 { // ~100KB limit
		return errors.New("query exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("query must be valid UTF-8")
	}
	return nil
}

// ValidateWorkspaceID validates a workspace ID.
func ValidateWorkspaceID(id string) error {
	if len(id) == 0 {
		return errors.New("workspace ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("workspace ID exceeds maximum length")
	}
	return nil
}

// ValidateBlockID validates a conversation block ID. Colons are reserved as
// the turn-key separator.
func ValidateBlockID(id string) error {
	if len(id) == 0 {
		return errors.New("block ID cannot be empty")
	}
	if len(id) > 128 {
		return errors.New("block ID exceeds maximum length")
	}
	if strings.Contains(id, ":") {
		return errors.New("block ID must not contain ':'")
	}
	return nil
}

// ValidateDocID validates a document ID.
func ValidateDocID(id string) error {
	if len(id) == 0 {
		return errors.New("document ID cannot be empty")
	}
	if len(id) > 128 {
		return errors.New("document ID exceeds maximum length")
	}
	return nil
}
