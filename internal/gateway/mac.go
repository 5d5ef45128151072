// Package gateway adapts orders to the external payment and logistics
// providers: outbound request builders and inbound callback mappers. The
// adapters hold credentials but no state; every inbound callback is
// verified against its CheckMacValue before any field is trusted.
package gateway

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strings"
)

// ErrInvalidSignature marks a callback whose CheckMacValue does not match.
// Such callbacks must be dropped without mutating any order.
var ErrInvalidSignature = errors.New("callback signature verification failed")

type macAlgo int

const (
	macSHA256 macAlgo = iota // payment provider
	macMD5                   // logistics provider
)

// checkMacValue implements the provider's signature scheme: parameters
// sorted by name, wrapped in HashKey/HashIV, URL-encoded, lower-cased,
// hashed, upper-cased hex.
func checkMacValue(params map[string]string, hashKey, hashIV string, algo macAlgo) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "CheckMacValue" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return strings.ToLower(keys[i]) < strings.ToLower(keys[j])
	})

	var b strings.Builder
	b.WriteString("HashKey=")
	b.WriteString(hashKey)
	for _, k := range keys {
		b.WriteString("&")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(params[k])
	}
	b.WriteString("&HashIV=")
	b.WriteString(hashIV)

	encoded := providerEncode(b.String())

	var sum []byte
	switch algo {
	case macMD5:
		digest := md5.Sum([]byte(encoded))
		sum = digest[:]
	default:
		digest := sha256.Sum256([]byte(encoded))
		sum = digest[:]
	}

	return strings.ToUpper(hex.EncodeToString(sum))
}

// providerEncode applies the provider's .NET-flavored URL encoding: query
// escaping, lower-cased percent sequences, with a handful of characters
// left literal.
func providerEncode(s string) string {
	encoded := strings.ToLower(url.QueryEscape(s))
	return strings.NewReplacer(
		"%21", "!",
		"%28", "(",
		"%29", ")",
		"%2a", "*",
	).Replace(encoded)
}

// verifyMac recomputes the signature over the callback form and compares it
// to the transmitted CheckMacValue.
func verifyMac(form url.Values, hashKey, hashIV string, algo macAlgo) error {
	received := form.Get("CheckMacValue")
	if received == "" {
		return ErrInvalidSignature
	}

	params := make(map[string]string, len(form))
	for k := range form {
		params[k] = form.Get(k)
	}

	expected := checkMacValue(params, hashKey, hashIV, algo)
	if !strings.EqualFold(received, expected) {
		return ErrInvalidSignature
	}
	return nil
}
