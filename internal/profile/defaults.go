package profile

import (
	"github.com/roach88/profilesync/internal/identity"
	"github.com/roach88/profilesync/internal/value"
)

const (
	guestPrefix   = "Guest "
	guestLabelLen = 5

	// DefaultDisplayName is used for authenticated identities with no name.
	DefaultDisplayName = "User"
)

// GuestLabel is the display name derived for a guest id: "Guest " followed
// by the first five characters of the id.
func GuestLabel(id string) string {
	r := []rune(id)
	if len(r) > guestLabelLen {
		r = r[:guestLabelLen]
	}
	return guestPrefix + string(r)
}

// NewGuest derives the default profile for a guest with no snapshot.
func NewGuest(id string, clock Clock) Profile {
	return Profile{
		ID:           id,
		DisplayName:  GuestLabel(id),
		CreatedAt:    clock.Now(),
		BlockedUsers: []string{},
		Guest: &GuestData{
			JournalEntries:             value.Array{},
			Habits:                     value.Array{},
			FollowUpLogs:               value.Array{},
			CommunityPostFireReactions: value.NewStringSet(),
		},
	}
}

// NewAuthenticatedFields builds the field map for lazily creating a missing
// remote record. createdAt is the server timestamp sentinel.
func NewAuthenticatedFields(ident identity.Identity) map[string]any {
	fields := map[string]any{
		FieldID:                 ident.ID,
		FieldDisplayName:        displayNameFor(ident),
		FieldCreatedAt:          value.ServerNow(),
		FieldIsAdmin:            false,
		FieldIsMuted:            false,
		FieldCommitmentDocument: "",
		FieldBlockedUsers:       []string{},
		FieldEmergencyIndex:     0,
		FieldUrgeIndex:          0,
		FieldStoryIndex:         0,
	}
	if ident.Email != "" {
		fields[FieldEmail] = ident.Email
	}
	if ident.PhotoURL != "" {
		fields[FieldPhotoURL] = ident.PhotoURL
	}
	return fields
}

// Project builds the in-memory view of a remote record: every field present in
// the record is taken verbatim, every absent field gets its default. The id
// always comes from the identity. PhotoURL stays empty when the record has
// none; callers pick and backfill an avatar.
func Project(ident identity.Identity, fields map[string]any) Profile {
	obj, _ := value.Classify(fields).(value.Object)
	p := FromObject(obj)
	p.ID = ident.ID
	p.Guest = nil

	if _, ok := obj[FieldDisplayName].(value.String); !ok {
		p.DisplayName = displayNameFor(ident)
	}
	if _, ok := obj[FieldEmail].(value.String); !ok {
		p.Email = ident.Email
	}
	return p
}

func displayNameFor(ident identity.Identity) string {
	switch {
	case ident.DisplayName != "":
		return ident.DisplayName
	case ident.IsAnonymous:
		return GuestLabel(ident.ID)
	default:
		return DefaultDisplayName
	}
}
