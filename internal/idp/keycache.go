// Package idp verifies identity-provider assertions used by claim and admin operations.
package idp

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"
)

// KeySource resolves a signing key by key ID.
type KeySource interface {
	Key(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// KeyCache holds the provider's JWKS for at most ttl after the last refresh.
// Concurrent refreshes may race; each stores a complete key set, so the last writer wins harmlessly.
type KeyCache struct {
	url    string
	client *http.Client
	ttl    time.Duration
	now    func() time.Time

	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	lastRefresh time.Time
}

// NewKeyCache constructs a cache over the JWKS document at url. ttl <= 0 defaults to one hour.
func NewKeyCache(url string, client *http.Client, ttl time.Duration) *KeyCache {
	if client == nil {
		client = &http.Client{Timeout: 8 * time.Second}
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &KeyCache{url: url, client: client, ttl: ttl, now: time.Now}
}

// LastRefresh reports when the key set was last fetched; zero if never.
func (c *KeyCache) LastRefresh() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRefresh
}

// Key returns the key with kid. An empty kid selects the only key of a single-key set.
// A stale cache is refreshed first; an unknown kid forces at most one refresh.
func (c *KeyCache) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	keys, fresh := c.snapshot()
	if !fresh {
		var err error
		if keys, err = c.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	if k, ok := pick(keys, kid); ok {
		return k, nil
	}
	if c.refreshedWithin(time.Minute) {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
	keys, err := c.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	if k, ok := pick(keys, kid); ok {
		return k, nil
	}
	return nil, fmt.Errorf("unknown key id %q", kid)
}

func pick(keys map[string]*rsa.PublicKey, kid string) (*rsa.PublicKey, bool) {
	if kid == "" {
		if len(keys) == 1 {
			for _, k := range keys {
				return k, true
			}
		}
		return nil, false
	}
	k, ok := keys[kid]
	return k, ok
}

func (c *KeyCache) snapshot() (map[string]*rsa.PublicKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.keys, c.keys != nil && c.now().Sub(c.lastRefresh) < c.ttl
}

func (c *KeyCache) refreshedWithin(d time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now().Sub(c.lastRefresh) < d
}

// Refresh fetches the key set and replaces the cached one.
func (c *KeyCache) Refresh(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	keys, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.keys = keys
	c.lastRefresh = c.now()
	c.mu.Unlock()
	return keys, nil
}

type jwksDocument struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (c *KeyCache) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jwks fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("jwks fetch failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}
	return parseKeys(doc)
}

func parseKeys(doc jwksDocument) (map[string]*rsa.PublicKey, error) {
	keys := make(map[string]*rsa.PublicKey)
	for i, key := range doc.Keys {
		if !strings.EqualFold(strings.TrimSpace(key.Kty), "RSA") {
			continue
		}
		n, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(key.N))
		if err != nil {
			return nil, fmt.Errorf("decode jwks n: %w", err)
		}
		e, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(key.E))
		if err != nil {
			return nil, fmt.Errorf("decode jwks e: %w", err)
		}
		eBig := new(big.Int).SetBytes(e)
		if !eBig.IsInt64() || eBig.Int64() <= 1 {
			return nil, fmt.Errorf("invalid jwks exponent for key %s", key.Kid)
		}
		kid := strings.TrimSpace(key.Kid)
		if kid == "" {
			kid = fmt.Sprintf("key-%d", i)
		}
		keys[kid] = &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(eBig.Int64())}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no RSA keys found in jwks")
	}
	return keys, nil
}
