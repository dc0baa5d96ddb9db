package store

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"log"
	"time"
)

const downloadKeyPrefix = "download:"

// TokenBinding ties a download token to the order/product it was issued
// for. Tokens gate time, not download count: redemption within the TTL
// window is repeatable.
type TokenBinding struct {
	OrderID    string    `json:"order_id"`
	ProductRef int       `json:"product_ref"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	MultiUse   bool      `json:"multi_use"`
}

// TokenIssuer mints and validates the short-lived download credentials.
// Token strings are 256 bits of crypto/rand output, so they cannot be
// enumerated or derived from an order id.
type TokenIssuer struct {
	db  Backends
	now func() time.Time
}

func NewTokenIssuer(db Backends) *TokenIssuer {
	return &TokenIssuer{db: db, now: time.Now}
}

// Issue mints a token bound to the order/product pair, expiring ttlMinutes
// from now. The durable backend also gets a key-level TTL so stale bindings
// evict themselves; the binding's own expiry stamp is what Redeem enforces.
func (t *TokenIssuer) Issue(ctx context.Context, orderID string, productRef int, ttlMinutes int) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	issued := t.now()
	binding := TokenBinding{
		OrderID:    orderID,
		ProductRef: productRef,
		IssuedAt:   issued,
		ExpiresAt:  issued.Add(time.Duration(ttlMinutes) * time.Minute),
		MultiUse:   true,
	}
	raw, err := json.Marshal(binding)
	if err != nil {
		return "", err
	}

	ttl := time.Duration(ttlMinutes) * time.Minute
	if s := t.db.Durable; s != nil {
		err := storeToken(ctx, s, token, string(raw), ttl)
		if err == nil {
			return token, nil
		}
		log.Printf("⚠️ durable backend error on token issue, falling back to memory: %v", err)
	}
	if err := storeToken(ctx, t.db.Fallback, token, string(raw), 0); err != nil {
		return "", err
	}
	return token, nil
}

func storeToken(ctx context.Context, st Store, token, raw string, ttl time.Duration) error {
	key := downloadKeyPrefix + token
	if err := st.Set(ctx, key, raw); err != nil {
		return err
	}
	if ttl > 0 {
		return st.Expire(ctx, key, ttl)
	}
	return nil
}

// Redeem resolves the binding. ErrNotFound for an unknown token, ErrExpired
// past the TTL; on success callers stream or redirect to the bound file.
func (t *TokenIssuer) Redeem(ctx context.Context, token string) (*TokenBinding, error) {
	raw, err := t.fetch(ctx, downloadKeyPrefix+token)
	if err != nil {
		return nil, err
	}

	var binding TokenBinding
	if err := json.Unmarshal([]byte(raw), &binding); err != nil {
		return nil, err
	}
	if t.now().After(binding.ExpiresAt) {
		return nil, ErrExpired
	}
	return &binding, nil
}

func (t *TokenIssuer) fetch(ctx context.Context, key string) (string, error) {
	if s := t.db.Durable; s != nil {
		raw, err := s.Get(ctx, key)
		if err == nil || err == ErrNotFound {
			return raw, err
		}
		log.Printf("⚠️ durable backend error on token lookup, falling back to memory: %v", err)
	}
	return t.db.Fallback.Get(ctx, key)
}
