package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/artisan-platform/live-session/internal/errs"
)

func signedToken(t *testing.T) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exhibition_id": "ex1",
		"exp":           time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestParseCredential(t *testing.T) {
	tok := signedToken(t)

	cases := []struct {
		name string
		raw  string
	}{
		{"bare string", tok},
		{"quoted json string", fmt.Sprintf("%q", tok)},
		{"token field", fmt.Sprintf(`{"token":%q}`, tok)},
		{"access_token field", fmt.Sprintf(`{"access_token":%q}`, tok)},
		{"surrounding whitespace", "  " + tok + "\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cred, err := ParseCredential([]byte(tc.raw), "ex1", RoleViewer)
			if err != nil {
				t.Fatalf("ParseCredential() = %v", err)
			}
			if cred.Token != tok {
				t.Errorf("token = %q, want the bare JWT", cred.Token)
			}
			if cred.ExhibitionID != "ex1" || cred.Role != RoleViewer {
				t.Errorf("binding = %+v", cred)
			}
		})
	}
}

func TestParseCredential_Invalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"empty object", `{}`},
		{"not a jwt", "definitely-not-a-jwt"},
		{"bad segments", "aaa.bbb.ccc"},
		{"malformed json object", `{"token":`},
		{"whitespace only", "   "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseCredential([]byte(tc.raw), "ex1", RoleViewer)
			if !errors.Is(err, errs.ErrInvalidToken) {
				t.Errorf("ParseCredential(%q) = %v, want ErrInvalidToken", tc.raw, err)
			}
		})
	}
}
