package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnknownField is returned for an update path that names no field.
	ErrUnknownField = errors.New("unknown field")
	// ErrInvalidValue is returned when an update value has the wrong type.
	ErrInvalidValue = errors.New("invalid field value")
)

func unknownField(path string) error {
	return fmt.Errorf("%w: %s", ErrUnknownField, path)
}

func invalidValue(path string, v any) error {
	return fmt.Errorf("%w: %s=%v (%T)", ErrInvalidValue, path, v, v)
}

func asString(path string, v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case nil:
		return "", nil
	}
	return "", invalidValue(path, v)
}

func asBool(path string, v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case nil:
		return false, nil
	}
	return false, invalidValue(path, v)
}

func asTime(path string, v any, now time.Time) (time.Time, error) {
	if IsServerTimestamp(v) {
		return now, nil
	}
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case nil:
		return time.Time{}, nil
	}
	return time.Time{}, invalidValue(path, v)
}

func asInt(path string, cur int, v any) (int, error) {
	switch x := v.(type) {
	case Incr:
		return cur + x.Delta, nil
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case nil:
		return 0, nil
	}
	return 0, invalidValue(path, v)
}

// setKey applies v to m[key]. A nil v removes the key.
func setKey[V any](m map[string]V, key string, v any, conv func(any) (V, error)) (map[string]V, error) {
	if v == nil {
		delete(m, key)
		return m, nil
	}
	val, err := conv(v)
	if err != nil {
		return m, err
	}
	if m == nil {
		m = make(map[string]V)
	}
	m[key] = val
	return m, nil
}

// ApplyConversation applies u to c. ServerTimestamp resolves to now.
func ApplyConversation(c *Conversation, u Update, now time.Time) error {
	field, key := SplitPath(u.Path)
	var err error
	switch field {
	case FieldLastMessage:
		c.LastMessage, err = asString(u.Path, u.Value)
	case FieldLastMessageSender:
		c.LastMessageSender, err = asString(u.Path, u.Value)
	case FieldLastMessageTime:
		c.LastMessageTime, err = asTime(u.Path, u.Value, now)
	case FieldArchivedBy:
		c.ArchivedBy, err = applyBoolMap(c.ArchivedBy, key, u)
	case FieldMutedBy:
		c.MutedBy, err = applyBoolMap(c.MutedBy, key, u)
	case FieldReadBy:
		if key == "" {
			return unknownField(u.Path)
		}
		c.ReadBy, err = setKey(c.ReadBy, key, u.Value, func(v any) (time.Time, error) {
			return asTime(u.Path, v, now)
		})
	case FieldUnreadCount:
		if key == "" {
			return unknownField(u.Path)
		}
		cur := c.UnreadCount[key]
		c.UnreadCount, err = setKey(c.UnreadCount, key, u.Value, func(v any) (int, error) {
			n, err := asInt(u.Path, cur, v)
			if n < 0 {
				n = 0
			}
			return n, err
		})
	case FieldParticipantDetails:
		if key == "" {
			return unknownField(u.Path)
		}
		c.ParticipantDetails, err = setKey(c.ParticipantDetails, key, u.Value, func(v any) (ParticipantDetail, error) {
			d, ok := v.(ParticipantDetail)
			if !ok {
				return d, invalidValue(u.Path, v)
			}
			return d, nil
		})
	default:
		return unknownField(u.Path)
	}
	return err
}

func applyBoolMap(m map[string]bool, key string, u Update) (map[string]bool, error) {
	if key == "" {
		if u.Value == nil {
			return map[string]bool{}, nil
		}
		whole, ok := u.Value.(map[string]bool)
		if !ok {
			return m, invalidValue(u.Path, u.Value)
		}
		out := make(map[string]bool, len(whole))
		for k, v := range whole {
			out[k] = v
		}
		return out, nil
	}
	return setKey(m, key, u.Value, func(v any) (bool, error) {
		return asBool(u.Path, v)
	})
}

// ApplyMessage applies u to m. ServerTimestamp resolves to now.
func ApplyMessage(m *Message, u Update, now time.Time) error {
	var err error
	switch u.Path {
	case FieldText:
		m.Text, err = asString(u.Path, u.Value)
	case FieldStatus:
		m.Status, err = asString(u.Path, u.Value)
		if err == nil && m.Status != StatusSent && m.Status != StatusDelivered && m.Status != StatusRead {
			err = invalidValue(u.Path, u.Value)
		}
	case FieldIsDeleted:
		m.IsDeleted, err = asBool(u.Path, u.Value)
	case FieldDeletedAt:
		m.DeletedAt, err = asTime(u.Path, u.Value, now)
	case FieldDeletedBy:
		m.DeletedBy, err = asString(u.Path, u.Value)
	case FieldOriginalText:
		m.OriginalText, err = asString(u.Path, u.Value)
	case FieldRead:
		m.Read, err = asBool(u.Path, u.Value)
	default:
		return unknownField(u.Path)
	}
	return err
}

// ApplyDirectory applies u to d. ServerTimestamp resolves to now.
func ApplyDirectory(d *DirectoryEntry, u Update, now time.Time) error {
	var err error
	switch u.Path {
	case FieldDisplayName:
		d.DisplayName, err = asString(u.Path, u.Value)
	case FieldPhotoURL:
		d.PhotoURL, err = asString(u.Path, u.Value)
	case FieldEmail:
		d.Email, err = asString(u.Path, u.Value)
	case FieldIsOnline:
		d.IsOnline, err = asBool(u.Path, u.Value)
	case FieldLastSeen:
		d.LastSeen, err = asTime(u.Path, u.Value, now)
	default:
		return unknownField(u.Path)
	}
	return err
}
