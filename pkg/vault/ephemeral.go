package vault

import (
	"sync"

	"github.com/veridia-ai/veridia-core/pkg/models"
)

// EphemeralCredential holds a decrypted API key for the duration of a single
// request. The key lives in a byte slice so Wipe can zero it; callers must
// defer Wipe as soon as they resolve a credential.
type EphemeralCredential struct {
	mu       sync.Mutex
	provider models.ModelProvider
	key      []byte
	model    string
	endpoint string
	wiped    bool
}

func newEphemeralCredential(provider models.ModelProvider, apiKey, model, endpoint string) *EphemeralCredential {
	return &EphemeralCredential{
		provider: provider,
		key:      []byte(apiKey),
		model:    model,
		endpoint: endpoint,
	}
}

// Provider returns the model provider this credential belongs to.
func (c *EphemeralCredential) Provider() models.ModelProvider { return c.provider }

// Model returns the configured model identifier.
func (c *EphemeralCredential) Model() string { return c.model }

// Endpoint returns the provider endpoint, set only for Azure.
func (c *EphemeralCredential) Endpoint() string { return c.endpoint }

// APIKey returns the plaintext key, or "" after Wipe.
func (c *EphemeralCredential) APIKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wiped {
		return ""
	}
	return string(c.key)
}

// Wipe zeroes the key material. Safe to call more than once.
func (c *EphemeralCredential) Wipe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.key {
		c.key[i] = 0
	}
	c.key = nil
	c.wiped = true
}

// Wiped reports whether the credential has been wiped.
func (c *EphemeralCredential) Wiped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wiped
}
