package hmacauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"intentledger/internal/identity"
)

const (
	HeaderCaller    = "X-Caller-Id"
	HeaderSignature = "X-Request-Signature"
	HeaderTimestamp = "X-Request-Timestamp"
)

var (
	ErrMissingSignature = errors.New("missing request signature")
	ErrMissingTimestamp = errors.New("missing request timestamp")
	ErrStaleTimestamp   = errors.New("stale request timestamp")
	ErrInvalidSignature = errors.New("invalid request signature")
	ErrUnknownCaller    = errors.New("unknown caller")
)

// Keyring maps a caller identity to its shared HMAC secret.
type Keyring map[identity.Identity]string

// Verifier authenticates callers by HMAC signature. Requests without an
// X-Caller-Id header continue as the anonymous caller; requests that name a
// caller must carry a fresh, valid signature for that caller's secret.
type Verifier struct {
	Keys    Keyring
	MaxSkew time.Duration
	Now     func() time.Time
}

func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := v.verify(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(identity.WithCaller(r.Context(), caller)))
	})
}

func (v *Verifier) verify(r *http.Request) (identity.Identity, error) {
	caller := identity.Identity(strings.TrimSpace(r.Header.Get(HeaderCaller)))
	if caller == identity.Anonymous {
		return identity.Anonymous, nil
	}
	secret, ok := v.Keys[caller]
	if !ok || secret == "" {
		return identity.Anonymous, ErrUnknownCaller
	}

	sig := r.Header.Get(HeaderSignature)
	if sig == "" {
		return identity.Anonymous, ErrMissingSignature
	}
	tsHeader := r.Header.Get(HeaderTimestamp)
	if tsHeader == "" {
		return identity.Anonymous, ErrMissingTimestamp
	}
	ts, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return identity.Anonymous, ErrMissingTimestamp
	}

	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}

	reqTime := time.Unix(ts, 0)
	if now.Sub(reqTime) > v.MaxSkew || reqTime.Sub(now) > v.MaxSkew {
		return identity.Anonymous, ErrStaleTimestamp
	}

	bodyBytes, err := readBody(r)
	if err != nil {
		return identity.Anonymous, err
	}

	expected := Sign(secret, caller, tsHeader, bodyBytes)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(sig))) {
		return identity.Anonymous, ErrInvalidSignature
	}
	return caller, nil
}

// Sign returns the hex HMAC-SHA256 of caller, timestamp and body concatenated.
func Sign(secret string, caller identity.Identity, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(caller))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return strings.ToLower(hex.EncodeToString(mac.Sum(nil)))
}

// SignRequest sets the caller, timestamp and signature headers on req. body
// must be the exact bytes sent as the request body.
func SignRequest(req *http.Request, caller identity.Identity, secret string, body []byte, now time.Time) {
	ts := strconv.FormatInt(now.Unix(), 10)
	req.Header.Set(HeaderCaller, string(caller))
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, Sign(secret, caller, ts, body))
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return []byte{}, nil
	}
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(strings.NewReader(string(body)))
	return body, nil
}
