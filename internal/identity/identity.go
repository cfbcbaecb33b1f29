package identity

import "strings"

const roomPrefix = "pwa"

// Identity is the normalized (email, seller slug) pair that names one
// end-user conversation. Always construct it through Normalize: equality
// and store lookups are defined on the normalized form only.
type Identity struct {
	Email      string
	SellerSlug string
}

// Normalize trims and lower-cases both fields. Normalizing twice yields the
// same value as once.
func Normalize(rawEmail, rawSlug string) Identity {
	return Identity{
		Email:      strings.ToLower(strings.TrimSpace(rawEmail)),
		SellerSlug: strings.ToLower(strings.TrimSpace(rawSlug)),
	}
}

// Valid reports whether the identity can be routed. Empty fields mean the
// caller never announced itself; a slug containing the room-key delimiter
// would break the RoomKey encoding and is refused outright.
func (id Identity) Valid() bool {
	if id.Email == "" || id.SellerSlug == "" {
		return false
	}
	return !strings.Contains(id.SellerSlug, ":")
}

// RoomKey derives the live-connection room name. The encoding is injective
// for valid identities: the slug carries no ":" and the email occupies the
// unbounded tail position.
func (id Identity) RoomKey() string {
	return roomPrefix + ":" + id.SellerSlug + ":" + id.Email
}

// ParseRoomKey inverts RoomKey. Splits on the first two delimiters only, so
// emails containing ":" round-trip.
func ParseRoomKey(key string) (Identity, bool) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 || parts[0] != roomPrefix {
		return Identity{}, false
	}
	id := Identity{Email: parts[2], SellerSlug: parts[1]}
	if !id.Valid() {
		return Identity{}, false
	}
	return id, true
}
