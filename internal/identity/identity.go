// Package identity extracts sender identities from raw From headers and
// derives the canonical aggregation key.
package identity

import (
	"net/mail"
	"strings"

	"mailcensus/internal/model"
)

// UnknownKey is the sentinel aggregation key for senders with neither a
// parseable email nor a display name.
const UnknownKey = "Unknown"

// Extract parses a free-form From header into a SenderIdentity. It never
// fails: a malformed header degrades to a name-only (or empty) identity with
// an empty email. Emails are lowercased; a syntactically invalid address is
// dropped rather than guessed at.
func Extract(rawFrom string) model.SenderIdentity {
	raw := strings.TrimSpace(rawFrom)
	if raw == "" {
		return model.SenderIdentity{}
	}

	if addr, err := mail.ParseAddress(raw); err == nil && addr != nil {
		return identityFromAddress(addr)
	}

	// Some headers carry a list; take the first parseable entry.
	for _, p := range strings.Split(raw, ",") {
		if addr, err := mail.ParseAddress(strings.TrimSpace(p)); err == nil && addr != nil {
			return identityFromAddress(addr)
		}
	}

	// Malformed header: recover the display text before any angle bracket,
	// strip quote residue, and leave the email empty.
	name := raw
	if i := strings.IndexByte(name, '<'); i >= 0 {
		name = name[:i]
	}
	name = strings.Trim(strings.TrimSpace(name), `"'`)
	return model.SenderIdentity{Name: strings.TrimSpace(name)}
}

func identityFromAddress(addr *mail.Address) model.SenderIdentity {
	return model.SenderIdentity{
		Name:  strings.TrimSpace(addr.Name),
		Email: strings.ToLower(strings.TrimSpace(addr.Address)),
	}
}

// Key returns the canonical aggregation key for an identity: the normalized
// email with any +alias stripped from the local part, falling back to the
// trimmed display name, then to UnknownKey. Load and upsert paths must both
// go through this function so re-runs against a saved file never fork keys.
func Key(id model.SenderIdentity) string {
	if email := strings.ToLower(strings.TrimSpace(id.Email)); email != "" {
		return stripAlias(email)
	}
	if name := strings.TrimSpace(id.Name); name != "" {
		return name
	}
	return UnknownKey
}

// stripAlias removes a +alias suffix from the local part, so
// user+news@example.com and user@example.com fold into one sender.
// Dots are kept as-is to avoid over-grouping across providers.
func stripAlias(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return email
	}
	local, domain := email[:at], email[at+1:]
	if plus := strings.IndexByte(local, '+'); plus > -1 {
		local = local[:plus]
	}
	return local + "@" + domain
}
