package tuya

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signMethod = "HMAC-SHA256"

// emptyBodyHash is the hex SHA-256 of an empty request body.
var emptyBodyHash = func() string {
	sum := sha256.Sum256(nil)
	return hex.EncodeToString(sum[:])
}()

// SignRequest returns the uppercase hex HMAC-SHA256 signature for a bodiless
// request. token is empty when acquiring a token.
func SignRequest(accessID, accessSecret, method, path, token, timestamp string) string {
	str := accessID + token + timestamp + stringToSign(method, path)
	h := hmac.New(sha256.New, []byte(accessSecret))
	h.Write([]byte(str))
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil)))
}

// stringToSign builds method, body hash, canonical headers (always empty)
// and path joined by newlines.
func stringToSign(method, path string) string {
	return method + "\n" + emptyBodyHash + "\n\n" + path
}
