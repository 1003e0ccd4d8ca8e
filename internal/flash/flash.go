// Package flash carries one-shot notices across a redirect in a short-lived signed
// cookie. The cookie is cleared by the first request that reads it.
package flash

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	cookieName = "flash"
	DefaultTTL = time.Minute
)

var ErrEmptySecret = errors.New("flash secret must not be empty")

type claims struct {
	Msg string `json:"msg"`
	jwt.RegisteredClaims
}

type Notices struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func New(secret []byte, ttl time.Duration, secure bool) (*Notices, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Notices{secret: secret, ttl: ttl, secure: secure, now: time.Now}, nil
}

// Set attaches msg to the response; it must be called before headers are written.
func (n *Notices) Set(w http.ResponseWriter, msg string) error {
	now := n.now()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Msg: msg,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(n.ttl)),
		},
	}).SignedString(n.secret)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(n.ttl.Seconds()),
		HttpOnly: true,
		Secure:   n.secure,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}

// Take returns the pending notice and clears it. Tampered and expired notices read as empty.
func (n *Notices) Take(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return ""
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   n.secure,
		SameSite: http.SameSiteLaxMode,
	})

	var cl claims
	_, err = jwt.ParseWithClaims(c.Value, &cl, func(*jwt.Token) (any, error) {
		return n.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(n.now))
	if err != nil {
		return ""
	}

	return cl.Msg
}
