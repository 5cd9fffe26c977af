// Package profile holds the user profile data model, its mapping to and from
// the tagged value model, and the default derivation rules used when no
// backing record exists.
package profile

import (
	"math"
	"time"

	"github.com/roach88/profilesync/internal/value"
)

// Snapshot and remote record field names.
const (
	FieldID                 = "id"
	FieldDisplayName        = "displayName"
	FieldEmail              = "email"
	FieldPhotoURL           = "photoURL"
	FieldCreatedAt          = "createdAt"
	FieldStartDate          = "startDate"
	FieldIsAdmin            = "isAdmin"
	FieldIsMuted            = "isMuted"
	FieldRole               = "role"
	FieldCommitmentDocument = "commitmentDocument"
	FieldBlockedUsers       = "blockedUsers"
	FieldEmergencyIndex     = "emergencyIndex"
	FieldUrgeIndex          = "urgeIndex"
	FieldStoryIndex         = "storyIndex"

	FieldJournalEntries             = "journalEntries"
	FieldHabits                     = "habits"
	FieldFollowUpLogs               = "followUpLogs"
	FieldCommunityPostFireReactions = "communityPostFireReactions"
)

var knownFields = map[string]bool{
	FieldID: true, FieldDisplayName: true, FieldEmail: true, FieldPhotoURL: true,
	FieldCreatedAt: true, FieldStartDate: true, FieldIsAdmin: true, FieldIsMuted: true,
	FieldRole: true, FieldCommitmentDocument: true, FieldBlockedUsers: true,
	FieldEmergencyIndex: true, FieldUrgeIndex: true, FieldStoryIndex: true,
	FieldJournalEntries: true, FieldHabits: true, FieldFollowUpLogs: true,
	FieldCommunityPostFireReactions: true,
}

// GuestData is the local-only extension carried by guest profiles.
type GuestData struct {
	JournalEntries             value.Array
	Habits                     value.Array
	FollowUpLogs               value.Array
	CommunityPostFireReactions value.StringSet
}

// Profile is the user-facing profile.
//
// Empty strings mean absent for Email, PhotoURL and Role. Guest is nil for
// authenticated profiles. Extra carries fields this package does not model;
// they survive a FromObject/ToObject round trip untouched.
type Profile struct {
	ID                 string
	DisplayName        string
	Email              string
	PhotoURL           string
	CreatedAt          time.Time
	StartDate          *time.Time
	IsAdmin            bool
	IsMuted            bool
	Role               string
	CommitmentDocument string
	BlockedUsers       []string
	EmergencyIndex     int
	UrgeIndex          int
	StoryIndex         int

	Guest *GuestData
	Extra value.Object
}

// ToObject maps the profile into the value model for encoding.
func (p Profile) ToObject() value.Object {
	obj := make(value.Object, len(p.Extra)+len(knownFields))
	for k, v := range p.Extra {
		if !knownFields[k] {
			obj[k] = v
		}
	}

	obj[FieldID] = value.String(p.ID)
	obj[FieldDisplayName] = value.String(p.DisplayName)
	putString(obj, FieldEmail, p.Email)
	putString(obj, FieldPhotoURL, p.PhotoURL)
	putString(obj, FieldRole, p.Role)
	if !p.CreatedAt.IsZero() {
		obj[FieldCreatedAt] = value.NewTemporal(p.CreatedAt)
	}
	if p.StartDate != nil {
		obj[FieldStartDate] = value.NewTemporal(*p.StartDate)
	}
	obj[FieldIsAdmin] = value.Bool(p.IsAdmin)
	obj[FieldIsMuted] = value.Bool(p.IsMuted)
	obj[FieldCommitmentDocument] = value.String(p.CommitmentDocument)

	blocked := make(value.Array, len(p.BlockedUsers))
	for i, u := range p.BlockedUsers {
		blocked[i] = value.String(u)
	}
	obj[FieldBlockedUsers] = blocked

	obj[FieldEmergencyIndex] = value.Int(p.EmergencyIndex)
	obj[FieldUrgeIndex] = value.Int(p.UrgeIndex)
	obj[FieldStoryIndex] = value.Int(p.StoryIndex)

	if g := p.Guest; g != nil {
		obj[FieldJournalEntries] = orEmpty(g.JournalEntries)
		obj[FieldHabits] = orEmpty(g.Habits)
		obj[FieldFollowUpLogs] = orEmpty(g.FollowUpLogs)
		set := g.CommunityPostFireReactions
		if set == nil {
			set = value.NewStringSet()
		}
		obj[FieldCommunityPostFireReactions] = set
	}
	return obj
}

// FromObject maps a decoded snapshot or remote record into a Profile.
//
// Absent fields take their zero value; no defaults are applied. A known field
// holding the wrong kind is ignored. Guest is non-nil when any guest-only
// field is present.
func FromObject(obj value.Object) Profile {
	var p Profile

	p.ID = stringField(obj, FieldID)
	p.DisplayName = stringField(obj, FieldDisplayName)
	p.Email = stringField(obj, FieldEmail)
	p.PhotoURL = stringField(obj, FieldPhotoURL)
	p.Role = stringField(obj, FieldRole)
	p.CommitmentDocument = stringField(obj, FieldCommitmentDocument)
	if t, ok := timeField(obj, FieldCreatedAt); ok {
		p.CreatedAt = t
	}
	if t, ok := timeField(obj, FieldStartDate); ok {
		p.StartDate = &t
	}
	p.IsAdmin = boolField(obj, FieldIsAdmin)
	p.IsMuted = boolField(obj, FieldIsMuted)
	p.EmergencyIndex = indexField(obj, FieldEmergencyIndex)
	p.UrgeIndex = indexField(obj, FieldUrgeIndex)
	p.StoryIndex = indexField(obj, FieldStoryIndex)

	p.BlockedUsers = []string{}
	if arr, ok := obj[FieldBlockedUsers].(value.Array); ok {
		for _, el := range arr {
			if s, ok := el.(value.String); ok {
				p.BlockedUsers = append(p.BlockedUsers, string(s))
			}
		}
	}

	if hasGuestFields(obj) {
		g := &GuestData{
			JournalEntries:             arrayField(obj, FieldJournalEntries),
			Habits:                     arrayField(obj, FieldHabits),
			FollowUpLogs:               arrayField(obj, FieldFollowUpLogs),
			CommunityPostFireReactions: value.NewStringSet(),
		}
		if set, ok := obj[FieldCommunityPostFireReactions].(value.StringSet); ok {
			g.CommunityPostFireReactions = set
		}
		p.Guest = g
	}

	for k, v := range obj {
		if knownFields[k] {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(value.Object)
		}
		p.Extra[k] = v
	}
	return p
}

// Clone returns a copy of p that shares no top-level slices or maps with it.
// Nested composite values in Guest and Extra are shared.
func (p Profile) Clone() Profile {
	cp := p
	if p.StartDate != nil {
		t := *p.StartDate
		cp.StartDate = &t
	}
	if p.BlockedUsers != nil {
		cp.BlockedUsers = append([]string{}, p.BlockedUsers...)
	}
	if p.Guest != nil {
		g := *p.Guest
		g.JournalEntries = append(value.Array{}, p.Guest.JournalEntries...)
		g.Habits = append(value.Array{}, p.Guest.Habits...)
		g.FollowUpLogs = append(value.Array{}, p.Guest.FollowUpLogs...)
		g.CommunityPostFireReactions = value.NewStringSet(p.Guest.CommunityPostFireReactions.Members()...)
		cp.Guest = &g
	}
	if p.Extra != nil {
		cp.Extra = make(value.Object, len(p.Extra))
		for k, v := range p.Extra {
			cp.Extra[k] = v
		}
	}
	return cp
}

// Equal reports whether two profiles carry the same data.
func Equal(a, b Profile) bool {
	return value.Equal(a.ToObject(), b.ToObject())
}

func putString(obj value.Object, key, s string) {
	if s != "" {
		obj[key] = value.String(s)
	}
}

func orEmpty(a value.Array) value.Array {
	if a == nil {
		return value.Array{}
	}
	return a
}

func hasGuestFields(obj value.Object) bool {
	for _, k := range []string{FieldJournalEntries, FieldHabits, FieldFollowUpLogs, FieldCommunityPostFireReactions} {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}

func stringField(obj value.Object, key string) string {
	s, _ := obj[key].(value.String)
	return string(s)
}

func boolField(obj value.Object, key string) bool {
	b, _ := obj[key].(value.Bool)
	return bool(b)
}

func arrayField(obj value.Object, key string) value.Array {
	if a, ok := obj[key].(value.Array); ok {
		return a
	}
	return value.Array{}
}

// timeField accepts a revived Temporal or a time string. Remote records arrive
// as plain JSON, so their timestamps are still strings here.
func timeField(obj value.Object, key string) (time.Time, bool) {
	switch v := obj[key].(type) {
	case value.Temporal:
		return v.Time(), true
	case value.String:
		return value.ParseTime(string(v))
	}
	return time.Time{}, false
}

// indexField accepts Int, or an integral Float as produced by JSON decoders
// that do not distinguish the two. Negative counters are clamped to zero.
func indexField(obj value.Object, key string) int {
	var n int64
	switch v := obj[key].(type) {
	case value.Int:
		n = int64(v)
	case value.Float:
		f := float64(v)
		if f != math.Trunc(f) || math.IsInf(f, 0) || f > math.MaxInt32 || f < math.MinInt32 {
			return 0
		}
		n = int64(f)
	default:
		return 0
	}
	if n < 0 {
		return 0
	}
	return int(n)
}
