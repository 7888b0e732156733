package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/aidarkhanov/nanoid/v2"
)

const docIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// NewDocID returns a 20 character alphanumeric id in the same shape as the
// auto ids of hosted document stores.
func NewDocID() string {
	id, err := nanoid.GenerateString(docIDAlphabet, 20)
	if err != nil {
		return NewID("")
	}
	return id
}

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
