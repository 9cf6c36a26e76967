// Package passwordhash derives and verifies Argon2id password hashes using
// the fixed parameters the spec mandates: t=3, m=65536 KiB, p=1, a 16-byte
// random salt, and a 32-byte tag. Parameters are not configurable — adding
// configuration for them is out of scope until .env grows a key for it.
package passwordhash

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	timeCost    = 3
	memoryCost  = 64 * 1024 // KiB
	parallelism = 1
	saltLen     = 16
	tagLen      = 32
)

// Hash derives an encoded Argon2id hash of password, in the standard
// "$argon2id$v=19$m=...,t=...,p=...$salt$tag" form.
func Hash(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("passwordhash: generate salt: %w", err)
	}
	tag := argon2.IDKey([]byte(password), salt, timeCost, memoryCost, parallelism, tagLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, memoryCost, timeCost, parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(tag),
	), nil
}

// Verify reports whether password matches encoded, using a constant-time
// comparison of the derived tag.
func Verify(encoded, password string) bool {
	var version, m, t, p int
	var b64Salt, b64Tag string
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return false
	}
	b64Salt = parts[4]
	b64Tag = parts[5]

	salt, err := base64.RawStdEncoding.DecodeString(b64Salt)
	if err != nil {
		return false
	}
	wantTag, err := base64.RawStdEncoding.DecodeString(b64Tag)
	if err != nil {
		return false
	}

	gotTag := argon2.IDKey([]byte(password), salt, uint32(t), uint32(m), uint8(p), uint32(len(wantTag)))
	return subtle.ConstantTimeCompare(gotTag, wantTag) == 1
}
