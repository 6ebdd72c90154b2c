package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

const alnum = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateEntityID generates a public entity identifier with the given prefix.
// Format: prefix_16alnum
// Example: pay_Hk3dT9qLmZx2Wv8a
func GenerateEntityID(prefix string) (string, error) {
	b := make([]byte, 16)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alnum))))
		if err != nil {
			return "", err
		}
		b[i] = alnum[n.Int64()]
	}
	return fmt.Sprintf("%s_%s", prefix, string(b)), nil
}

// GenerateAPIKey generates a random API key with the given prefix.
// Format: prefix_randomhex
func GenerateAPIKey(prefix string) (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(b)), nil
}

// GenerateLiveKey generates a live API key: key_live_xxx
func GenerateLiveKey() (string, error) {
	return GenerateAPIKey("key_live")
}

// GenerateWebhookSecret generates a webhook signing secret: whsec_xxx
func GenerateWebhookSecret() (string, error) {
	return GenerateAPIKey("whsec")
}
