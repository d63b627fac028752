package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"time"
)

// Signer computes an asymmetric signature over a signing input. The JWT
// assembly below is pure and does not touch key material; only the Signer
// holds the key.
type Signer interface {
	Sign(data []byte) ([]byte, error)
}

// rsaSigner signs with RSASSA-PKCS1-v1_5 over SHA-256, the algorithm Google
// requires for RS256 service-account assertions.
type rsaSigner struct {
	key *rsa.PrivateKey
}

// NewRSASigner parses a PEM-encoded PKCS#8 private key into a Signer.
func NewRSASigner(pemKey string) (Signer, error) {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block from private key")
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PKCS#8 private key: %w", err)
	}

	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, expected RSA", parsed)
	}

	return &rsaSigner{key: rsaKey}, nil
}

func (s *rsaSigner) Sign(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	signature, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return signature, nil
}

type jwtHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

type jwtClaims struct {
	Iss   string `json:"iss"`
	Scope string `json:"scope"`
	Aud   string `json:"aud"`
	Iat   int64  `json:"iat"`
	Exp   int64  `json:"exp"`
}

// assertionLifetime is the window Google grants for a service-account
// assertion and the access token minted from it.
const assertionLifetime = time.Hour

// BuildAssertion assembles the signed RS256 JWT used as the OAuth2
// jwt-bearer grant: base64url(header).base64url(claims).base64url(signature),
// all segments unpadded.
func BuildAssertion(clientEmail, scope, audience string, now time.Time, signer Signer) (string, error) {
	header, err := json.Marshal(jwtHeader{Alg: "RS256", Typ: "JWT"})
	if err != nil {
		return "", fmt.Errorf("failed to marshal JWT header: %w", err)
	}

	iat := now.Unix()
	claims, err := json.Marshal(jwtClaims{
		Iss:   clientEmail,
		Scope: scope,
		Aud:   audience,
		Iat:   iat,
		Exp:   iat + int64(assertionLifetime.Seconds()),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal JWT claims: %w", err)
	}

	signingInput := base64.RawURLEncoding.EncodeToString(header) + "." + base64.RawURLEncoding.EncodeToString(claims)

	signature, err := signer.Sign([]byte(signingInput))
	if err != nil {
		return "", err
	}

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(signature), nil
}
