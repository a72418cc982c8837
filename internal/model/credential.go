package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/artisan-platform/live-session/internal/errs"
)

// Credential is the normalized media-transport authorization artifact.
// Short-lived, bound to one (exhibition, role) join attempt; never cached
// across reconnects.
type Credential struct {
	Token        string
	ExhibitionID string
	Role         Role
}

// ParseCredential normalizes a token response from the platform API.
// The endpoint historically returned either a bare string or {"token": "..."},
// so both shapes are accepted. The token itself must be a syntactically
// well-formed bearer JWT before we attempt to use it against the media server.
func ParseCredential(raw []byte, exhibitionID string, role Role) (Credential, error) {
	tok := strings.TrimSpace(string(raw))

	if strings.HasPrefix(tok, "{") {
		var body struct {
			Token       string `json:"token"`
			AccessToken string `json:"access_token"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return Credential{}, fmt.Errorf("%w: %v", errs.ErrInvalidToken, err)
		}
		tok = body.Token
		if tok == "" {
			tok = body.AccessToken
		}
	} else if strings.HasPrefix(tok, `"`) {
		if err := json.Unmarshal(raw, &tok); err != nil {
			return Credential{}, fmt.Errorf("%w: %v", errs.ErrInvalidToken, err)
		}
	}

	if tok == "" {
		return Credential{}, fmt.Errorf("%w: empty token", errs.ErrInvalidToken)
	}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, jwt.MapClaims{}); err != nil {
		return Credential{}, fmt.Errorf("%w: %v", errs.ErrInvalidToken, err)
	}
	return Credential{Token: tok, ExhibitionID: exhibitionID, Role: role}, nil
}
