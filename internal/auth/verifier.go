// Package auth verifies bearer tokens on planning API calls.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	ModeOff  = "off"
	ModeDev  = "dev"
	ModeHMAC = "hmac"
)

const (
	RoleAdmin      = "admin"
	RoleDispatcher = "dispatcher"
	RoleViewer     = "viewer"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpired      = errors.New("token expired")
	ErrForbidden    = errors.New("forbidden")
)

type Principal struct {
	Subject string
	Role    string
}

// Can reports whether p holds one of roles. Admin can do everything.
func (p Principal) Can(roles ...string) bool {
	return p.Role == RoleAdmin || slices.Contains(roles, p.Role)
}

// Verifier validates bearer tokens. Modes:
//
//	off   no verification; every caller is admin
//	dev   the token is the role name itself
//	hmac  HS256 JWT carrying the role in RoleClaim
type Verifier struct {
	Mode      string
	Secret    []byte
	RoleClaim string
	now       func() time.Time
}

func NewVerifier(mode, secret, roleClaim string) (*Verifier, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = ModeOff
	}
	switch mode {
	case ModeOff, ModeDev:
	case ModeHMAC:
		if secret == "" {
			return nil, errors.New("hmac auth mode needs a secret")
		}
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", mode)
	}
	if roleClaim == "" {
		roleClaim = "role"
	}
	return &Verifier{Mode: mode, Secret: []byte(secret), RoleClaim: roleClaim, now: time.Now}, nil
}

func (v *Verifier) Enabled() bool { return v != nil && v.Mode != ModeOff }

func (v *Verifier) Verify(token string) (Principal, error) {
	switch v.Mode {
	case ModeOff:
		return Principal{Subject: "anonymous", Role: RoleAdmin}, nil
	case ModeDev:
		role := strings.ToLower(strings.TrimSpace(token))
		if role == "" {
			return Principal{}, fmt.Errorf("%w: empty dev token", ErrInvalidToken)
		}
		return Principal{Subject: "dev", Role: role}, nil
	}

	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return Principal{}, fmt.Errorf("%w: want 3 segments", ErrInvalidToken)
	}
	var hdr struct {
		Alg string `json:"alg"`
	}
	if err := decodeSegment(segs[0], &hdr); err != nil {
		return Principal{}, err
	}
	if hdr.Alg != "HS256" {
		return Principal{}, fmt.Errorf("%w: unsupported alg %q", ErrInvalidToken, hdr.Alg)
	}
	sig, err := base64.RawURLEncoding.DecodeString(segs[2])
	if err != nil {
		return Principal{}, fmt.Errorf("%w: signature encoding", ErrInvalidToken)
	}
	if !hmac.Equal(v.sign(segs[0]+"."+segs[1]), sig) {
		return Principal{}, fmt.Errorf("%w: bad signature", ErrInvalidToken)
	}

	var claims map[string]any
	if err := decodeSegment(segs[1], &claims); err != nil {
		return Principal{}, err
	}
	if exp, ok := claims["exp"].(float64); ok && v.now().After(time.Unix(int64(exp), 0)) {
		return Principal{}, ErrExpired
	}
	role, _ := claims[v.RoleClaim].(string)
	sub, _ := claims["sub"].(string)
	if role == "" {
		role = RoleViewer
	}
	return Principal{Subject: sub, Role: strings.ToLower(role)}, nil
}

// Sign issues an HS256 token for claims. Used by tooling and tests.
func (v *Verifier) Sign(claims map[string]any) (string, error) {
	hdr, _ := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	body, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	input := base64.RawURLEncoding.EncodeToString(hdr) + "." + base64.RawURLEncoding.EncodeToString(body)
	return input + "." + base64.RawURLEncoding.EncodeToString(v.sign(input)), nil
}

func (v *Verifier) sign(input string) []byte {
	mac := hmac.New(sha256.New, v.Secret)
	mac.Write([]byte(input))
	return mac.Sum(nil)
}

func decodeSegment(seg string, dst any) error {
	b, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return fmt.Errorf("%w: segment encoding", ErrInvalidToken)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}
