/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenCookiePrefix = "dragonseeker_token_"
	tokenIssuerName   = "dragonseeker"
)

// playerClaims binds a token to one player in one game.
type playerClaims struct {
	SessionID string `json:"session_id"`
	PlayerID  string `json:"player_id"`
	jwt.RegisteredClaims
}

type tokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// newTokenIssuer signs with secret, or with a random key when secret is
// empty. Random keys do not survive a restart.
func newTokenIssuer(secret string, ttl time.Duration) (*tokenIssuer, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating token key: %w", err)
		}
	}

	return &tokenIssuer{
		secret: key,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

func (ti *tokenIssuer) issue(sessionID, playerID string) (string, time.Time, error) {
	now := ti.now()
	expires := now.Add(ti.ttl)

	claims := playerClaims{
		SessionID: sessionID,
		PlayerID:  playerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuerName,
			Subject:   playerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expires, nil
}

// verify checks the signature and expiry of raw, then that it names
// playerID in sessionID.
func (ti *tokenIssuer) verify(raw, sessionID, playerID string) error {
	if raw == "" {
		return errUnauthorized
	}

	var claims playerClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return ti.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuerName),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", errUnauthorized, err)
	}

	if claims.SessionID != sessionID || claims.PlayerID != playerID {
		return errTokenMismatch
	}

	return nil
}

func tokenCookieName(playerID string) string {
	return tokenCookiePrefix + playerID
}

func setTokenCookie(cfg *Config, w http.ResponseWriter, playerID, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName(playerID),
		Value:    token,
		Path:     cfg.prefix + "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   cfg.scheme() == "https",
		SameSite: http.SameSiteStrictMode,
	})
}

// tokenFromRequest prefers a bearer token and falls back to the player's
// cookie.
func tokenFromRequest(r *http.Request, playerID string) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}

	if c, err := r.Cookie(tokenCookieName(playerID)); err == nil {
		return c.Value
	}

	return ""
}
