package secrets

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// LocalProvider resolves references that are themselves sealed blobs:
// XChaCha20-Poly1305 ciphertext of the credential JSON, base64url
// encoded with the nonce prepended. Sealing happens at registration
// time through Seal, so the store only ever sees ciphertext.
type LocalProvider struct {
	aead cipher.AEAD
}

// NewLocalProvider creates a provider sealing with the given 32-byte
// key.
func NewLocalProvider(key []byte) (*LocalProvider, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("local provider key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &LocalProvider{aead: aead}, nil
}

// Type identifies the provider.
func (p *LocalProvider) Type() string {
	return "local"
}

// Seal encrypts a credential into a reference blob.
func (p *LocalProvider) Seal(cred *Credential) (string, error) {
	plaintext, err := json.Marshal(cred)
	if err != nil {
		return "", fmt.Errorf("marshal credential: %w", err)
	}

	nonce := make([]byte, p.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := p.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Resolve decrypts a reference blob back into the credential.
func (p *LocalProvider) Resolve(_ context.Context, ref string) (*Credential, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed reference", ErrNotFound)
	}
	if len(sealed) < p.aead.NonceSize() {
		return nil, fmt.Errorf("%w: reference too short", ErrNotFound)
	}

	nonce, ciphertext := sealed[:p.aead.NonceSize()], sealed[p.aead.NonceSize():]
	plaintext, err := p.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: reference does not unseal", ErrNotFound)
	}

	var cred Credential
	if err := json.Unmarshal(plaintext, &cred); err != nil {
		return nil, fmt.Errorf("unmarshal credential: %w", err)
	}
	return &cred, nil
}

// Close releases resources.
func (p *LocalProvider) Close() error {
	return nil
}

// Ensure LocalProvider implements Provider.
var _ Provider = (*LocalProvider)(nil)
