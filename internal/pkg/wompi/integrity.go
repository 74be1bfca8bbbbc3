package wompi

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// IntegritySignature binds checkout parameters cryptographically before the
// widget is rendered, so a client cannot alter amount or reference:
// SHA256(reference || amountInCents || currency || secret), hex-encoded.
func IntegritySignature(reference string, amountInCents int64, currency, secret string) string {
	sum := sha256.Sum256([]byte(reference + strconv.FormatInt(amountInCents, 10) + currency + secret))
	return hex.EncodeToString(sum[:])
}

// IntegritySignatureWithExpiration is the variant for widgets that carry an
// expiration time; the expiration participates in the hash.
func IntegritySignatureWithExpiration(reference string, amountInCents int64, currency, expirationTime, secret string) string {
	sum := sha256.Sum256([]byte(reference + strconv.FormatInt(amountInCents, 10) + currency + expirationTime + secret))
	return hex.EncodeToString(sum[:])
}
