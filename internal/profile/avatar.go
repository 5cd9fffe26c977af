package profile

import (
	"unicode/utf16"
	"unicode/utf8"
)

// DefaultAvatars is the built-in ordered candidate list for fallback avatars.
// Reordering it changes which avatar existing ids are assigned.
var DefaultAvatars = []string{
	"https://cdn.profilesync.app/avatars/default-01.png",
	"https://cdn.profilesync.app/avatars/default-02.png",
	"https://cdn.profilesync.app/avatars/default-03.png",
	"https://cdn.profilesync.app/avatars/default-04.png",
	"https://cdn.profilesync.app/avatars/default-05.png",
	"https://cdn.profilesync.app/avatars/default-06.png",
	"https://cdn.profilesync.app/avatars/default-07.png",
	"https://cdn.profilesync.app/avatars/default-08.png",
}

// AvatarIndex returns the candidate index for id among n candidates: the first
// UTF-16 code unit of id modulo n. An empty id uses code 0. Returns -1 when
// n is not positive.
func AvatarIndex(id string, n int) int {
	if n <= 0 {
		return -1
	}
	return int(firstCodeUnit(id)) % n
}

// PickAvatar deterministically selects a fallback avatar for id.
// Returns "" when there are no candidates.
func PickAvatar(id string, candidates []string) string {
	i := AvatarIndex(id, len(candidates))
	if i < 0 {
		return ""
	}
	return candidates[i]
}

func firstCodeUnit(id string) uint16 {
	if id == "" {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(id)
	if r >= 0x10000 {
		hi, _ := utf16.EncodeRune(r)
		return uint16(hi)
	}
	return uint16(r)
}
