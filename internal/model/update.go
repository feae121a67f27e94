package model

import (
	"fmt"
	"strings"
)

// Update sets a single field, addressed by a dotted path. A path with one
// segment replaces a top-level field; "field.key" replaces one key inside a
// per-user map without touching the rest of it.
type Update struct {
	Path  string
	Value any
}

func (u Update) String() string {
	return fmt.Sprintf("%s=%v", u.Path, u.Value)
}

// Set replaces a top-level field.
func Set(path string, v any) Update {
	return Update{Path: path, Value: v}
}

// SetKey replaces one key of a map field.
func SetKey(field, key string, v any) Update {
	return Update{Path: field + "." + key, Value: v}
}

// SplitPath splits a dotted path into its field and optional map key.
func SplitPath(path string) (field, key string) {
	field, key, _ = strings.Cut(path, ".")
	return field, key
}

type serverTimestamp struct{}

func (serverTimestamp) String() string { return "ServerTimestamp" }

// ServerTimestamp asks the store to write its own clock into the field.
var ServerTimestamp any = serverTimestamp{}

// IsServerTimestamp reports whether v is the ServerTimestamp sentinel.
func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// Incr adds Delta to a numeric field. A missing value counts as zero.
type Incr struct {
	Delta int
}

func (i Incr) String() string { return fmt.Sprintf("Increment(%d)", i.Delta) }

// Increment returns an Incr sentinel.
func Increment(n int) Incr {
	return Incr{Delta: n}
}

// Conversation fields addressable by Update paths.
const (
	FieldParticipantDetails = "participantDetails"
	FieldLastMessage        = "lastMessage"
	FieldLastMessageTime    = "lastMessageTime"
	FieldLastMessageSender  = "lastMessageSender"
	FieldArchivedBy         = "archivedBy"
	FieldMutedBy            = "mutedBy"
	FieldReadBy             = "readBy"
	FieldUnreadCount        = "unreadCount"
)

// Message fields addressable by Update paths.
const (
	FieldText         = "text"
	FieldStatus       = "status"
	FieldIsDeleted    = "isDeleted"
	FieldDeletedAt    = "deletedAt"
	FieldDeletedBy    = "deletedBy"
	FieldOriginalText = "originalText"
	FieldRead         = "read"
)

// Directory fields addressable by Update paths.
const (
	FieldDisplayName = "displayName"
	FieldPhotoURL    = "photoURL"
	FieldEmail       = "email"
	FieldIsOnline    = "isOnline"
	FieldLastSeen    = "lastSeen"
)
