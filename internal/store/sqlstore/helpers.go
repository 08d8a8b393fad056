package sqlstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// jsonStr marshals v for a TEXT/JSONB column. nil maps and slices become
// their empty JSON form so NOT NULL defaults hold.
func jsonStr(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal json column: %w", err)
	}
	return string(data), nil
}

// fromJSON unmarshals a scanned column into dst. Empty values are left as
// the zero value.
func fromJSON(raw string, dst any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

// timeLayouts covers both backends: Postgres returns time.Time directly;
// SQLite stores formatted strings.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

// asTime coerces a scanned timestamp column.
func asTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t, nil
	case string:
		return parseTime(t)
	case []byte:
		return parseTime(string(t))
	default:
		return time.Time{}, fmt.Errorf("cannot coerce %T to time", v)
	}
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// asTimePtr is asTime for nullable columns.
func asTimePtr(v any) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}
	t, err := asTime(v)
	if err != nil {
		return nil, err
	}
	if t.IsZero() {
		return nil, nil
	}
	return &t, nil
}

// fmtTime renders a timestamp for storage.
func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// fmtTimePtr renders a nullable timestamp; nil stays NULL.
func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

// uuidStrPtr renders a nullable UUID column.
func uuidStrPtr(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

// parseUUIDPtr parses a nullable scanned UUID column.
func parseUUIDPtr(s *string) (*uuid.UUID, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
