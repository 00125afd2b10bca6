// Credential strategy resolution.
//
// DESIGN: the upstream's accepted header scheme differs between deployments
// and is not reliably knowable ahead of time. We derive an ordered list of
// every supported encoding once from static configuration; the client walks
// it on authorization failures only.
package provider

import (
	"net/http"
	"strings"
)

// Encoding names one way of placing the shared secret into request headers.
type Encoding string

const (
	// EncodingBearer sends "Authorization: Bearer <secret>".
	EncodingBearer Encoding = "bearer"
	// EncodingAccessToken sends the vendor's "X-Access-Token" header.
	EncodingAccessToken Encoding = "access_token"
	// EncodingAPIKey sends a raw "X-API-Key" header.
	EncodingAPIKey Encoding = "api_key"
)

// CredentialVariant is one (encoding, header shape) pair tried on a call.
type CredentialVariant struct {
	Encoding Encoding
}

// Apply sets the variant's headers on req.
func (v CredentialVariant) Apply(req *http.Request, secret string) {
	switch v.Encoding {
	case EncodingBearer:
		req.Header.Set("Authorization", "Bearer "+secret)
	case EncodingAccessToken:
		req.Header.Set("X-Access-Token", secret)
	case EncodingAPIKey:
		req.Header.Set("X-API-Key", secret)
	}
}

// allEncodings is the fixed, supported set.
var allEncodings = []Encoding{EncodingBearer, EncodingAccessToken, EncodingAPIKey}

// Variants returns the ordered, de-duplicated list of credential variants,
// primary first. styleOverride wins when set; otherwise the primary is
// inferred from the shape of the secret (JWT-looking secrets are sent as
// bearer tokens, everything else as an API key). The result is never empty.
func Variants(styleOverride, secret string) []CredentialVariant {
	primary := inferPrimary(styleOverride, secret)

	variants := make([]CredentialVariant, 0, len(allEncodings))
	seen := make(map[Encoding]bool, len(allEncodings))

	add := func(e Encoding) {
		if !seen[e] {
			seen[e] = true
			variants = append(variants, CredentialVariant{Encoding: e})
		}
	}

	add(primary)
	for _, e := range allEncodings {
		add(e)
	}
	return variants
}

func inferPrimary(styleOverride, secret string) Encoding {
	switch Encoding(strings.ToLower(strings.TrimSpace(styleOverride))) {
	case EncodingBearer:
		return EncodingBearer
	case EncodingAccessToken:
		return EncodingAccessToken
	case EncodingAPIKey:
		return EncodingAPIKey
	}
	// Two dots is the JWT shape the provider issues for bearer auth.
	if strings.Count(secret, ".") == 2 {
		return EncodingBearer
	}
	return EncodingAPIKey
}
