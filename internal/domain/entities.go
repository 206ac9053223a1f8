package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Credential store keys
const (
	KeyAuthToken = "auth_token"
	KeyUsername  = "username"
)

// Session is the authenticated identity of the active user.
type Session struct {
	Username string
	Token    string
}

// Active reports whether both halves of the session are present.
func (s Session) Active() bool {
	return s.Username != "" && s.Token != ""
}

// LogoutStatus is the benign result of a logout call
type LogoutStatus int

const (
	LoggedOut LogoutStatus = iota
	AlreadyLoggedOut
)

func (s LogoutStatus) String() string {
	if s == AlreadyLoggedOut {
		return "not logged in"
	}
	return "success"
}

// MediaRecord is one catalog entry owned by a user.
// Identity is by ID; Fields carries descriptive attributes the client does not interpret.
type MediaRecord struct {
	ID     string
	Name   string
	Fields map[string]any
}

// MarshalJSON flattens Fields next to id and name.
func (r MediaRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		out[k] = v
	}
	if r.ID != "" {
		out["id"] = r.ID
	}
	out["name"] = r.Name
	return json.Marshal(out)
}

// UnmarshalJSON accepts string or numeric ids.
func (r *MediaRecord) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	rec := MediaRecord{}
	if id, ok := raw["id"]; ok && id != nil {
		switch v := id.(type) {
		case string:
			rec.ID = v
		case json.Number:
			rec.ID = v.String()
		default:
			return fmt.Errorf("unsupported id type %T", id)
		}
	}
	if name, ok := raw["name"].(string); ok {
		rec.Name = name
	}

	delete(raw, "id")
	delete(raw, "name")
	if len(raw) > 0 {
		rec.Fields = raw
	}

	*r = rec
	return nil
}

// Clone returns a copy that shares no maps with r.
func (r MediaRecord) Clone() MediaRecord {
	c := r
	if r.Fields != nil {
		c.Fields = make(map[string]any, len(r.Fields))
		for k, v := range r.Fields {
			c.Fields[k] = v
		}
	}
	return c
}

// Description returns a short one-line summary of the descriptive fields.
func (r MediaRecord) Description() string {
	if len(r.Fields) == 0 {
		return ""
	}
	parts := make([]string, 0, 2)
	for _, key := range []string{"artist", "album", "year", "type"} {
		if v, ok := r.Fields[key]; ok && v != nil {
			parts = append(parts, fmt.Sprint(v))
		}
	}
	return strings.Join(parts, " · ")
}

// MediaCollection is the client's ordered copy of a user's records, unique by ID.
type MediaCollection []MediaRecord

// IndexOf returns the position of id, or -1.
func (c MediaCollection) IndexOf(id string) int {
	for i := range c {
		if c[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy. A nil collection stays nil.
func (c MediaCollection) Clone() MediaCollection {
	if c == nil {
		return nil
	}
	out := make(MediaCollection, len(c))
	for i, r := range c {
		out[i] = r.Clone()
	}
	return out
}

// RecordPayload is the tagged response of a record mutation: either a single
// record or a list of them.
type RecordPayload struct {
	single *MediaRecord
	many   []MediaRecord
}

// Single wraps one record.
func Single(r MediaRecord) RecordPayload {
	return RecordPayload{single: &r}
}

// Many wraps a list of records.
func Many(rs []MediaRecord) RecordPayload {
	if rs == nil {
		rs = []MediaRecord{}
	}
	return RecordPayload{many: rs}
}

// IsSingle reports whether the payload carried exactly one bare record.
func (p RecordPayload) IsSingle() bool { return p.single != nil }

// Record returns the single record, if that is what the payload holds.
func (p RecordPayload) Record() (MediaRecord, bool) {
	if p.single == nil {
		return MediaRecord{}, false
	}
	return *p.single, true
}

// Records normalizes the payload to a slice.
func (p RecordPayload) Records() []MediaRecord {
	if p.single != nil {
		return []MediaRecord{*p.single}
	}
	return p.many
}
