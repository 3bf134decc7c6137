package identity

import (
	"testing"

	"mailcensus/internal/model"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		in    string
		name  string
		email string
	}{
		{`"Acme Corp" <billing@acme.com>`, "Acme Corp", "billing@acme.com"},
		{`no-reply@newsletter.example`, "", "no-reply@newsletter.example"},
		{`Name <User@Example.COM>`, "Name", "user@example.com"},
		{`Alice <user+ads@Example.com>`, "Alice", "user+ads@example.com"},
		{`bad address`, "bad address", ""},
		{``, "", ""},
		{`   `, "", ""},
		{`<not-an-email>`, "", ""},
		{`"Quoted Name" <broken`, "Quoted Name", ""},
		{`"A" <not-an-email> , "B" <c@D.com>`, "B", "c@d.com"},
	}
	for _, tc := range tests {
		got := Extract(tc.in)
		if got.Name != tc.name || got.Email != tc.email {
			t.Errorf("Extract(%q) = {%q, %q}; want {%q, %q}",
				tc.in, got.Name, got.Email, tc.name, tc.email)
		}
	}
}

// Extract must stay total: arbitrary garbage degrades to a well-formed
// identity, never a panic or a fabricated email.
func TestExtract_NeverFabricates(t *testing.T) {
	inputs := []string{
		"@", "<<<>>>", "a@", "@b", "<>", "\x00\x01", "«weird» <also@weird",
		"no angle brackets no at sign",
	}
	for _, in := range inputs {
		got := Extract(in)
		if got.Email != "" && !validish(got.Email) {
			t.Errorf("Extract(%q) produced suspicious email %q", in, got.Email)
		}
	}
}

func validish(email string) bool {
	at := -1
	for i, r := range email {
		if r == '@' {
			at = i
		}
	}
	return at > 0 && at < len(email)-1
}

func TestKey(t *testing.T) {
	tests := []struct {
		id   model.SenderIdentity
		want string
	}{
		{model.SenderIdentity{Name: "Acme Corp", Email: "billing@acme.com"}, "billing@acme.com"},
		{model.SenderIdentity{Email: "User@Example.COM "}, "user@example.com"},
		{model.SenderIdentity{Email: "user+news@example.com"}, "user@example.com"},
		{model.SenderIdentity{Name: "Acme Corp"}, "Acme Corp"},
		{model.SenderIdentity{Name: "  padded  "}, "padded"},
		{model.SenderIdentity{}, UnknownKey},
	}
	for _, tc := range tests {
		if got := Key(tc.id); got != tc.want {
			t.Errorf("Key(%+v) = %q; want %q", tc.id, got, tc.want)
		}
	}
}

// The key function is shared between load and upsert; aliased and cased
// variants of one address must always map to the same key.
func TestKey_FoldsAliases(t *testing.T) {
	variants := []model.SenderIdentity{
		{Email: "user@example.com"},
		{Email: "User@EXAMPLE.com"},
		{Email: "user+ads@example.com"},
		{Name: "Someone", Email: "user+news@Example.com"},
	}
	want := Key(variants[0])
	for _, v := range variants {
		if got := Key(v); got != want {
			t.Errorf("Key(%+v) = %q; want %q", v, got, want)
		}
	}
}
