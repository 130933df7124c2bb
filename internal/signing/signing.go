// Package signing signs and verifies analysis reports with Ed25519.
//
// An Envelope carries the report bytes (base64 in JSON), their blake3 digest
// and a hex encoded signature over the digest. Keys and signatures are hex: the
// public key and the private key seed are 32 bytes, the signature 64.
package signing

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/ssh"

	"github.com/felixgeelhaar/pipescope/internal/errors"
	"github.com/felixgeelhaar/pipescope/internal/report"
)

// Algorithm is the only supported signature scheme
const Algorithm = "ed25519"

// messagePrefix separates report signatures from any other use of the key
const messagePrefix = "pipescope-report-v1\n"

// Envelope is a signed report payload
type Envelope struct {
	Algorithm string `json:"algorithm"`
	Payload   []byte `json:"payload"`
	Digest    string `json:"digest"`
	PublicKey string `json:"public_key"`
	KeyID     string `json:"key_id,omitempty"`
	Signature string `json:"signature"`
}

// Digest returns the hex blake3-256 digest of payload
func Digest(payload []byte) string {
	sum := blake3.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func message(digest string) []byte {
	return []byte(messagePrefix + digest)
}

// SignReport signs payload with the hex encoded 32-byte private key seed
func SignReport(payload []byte, privHex string) (*Envelope, error) {
	priv, err := decodePrivateKey(privHex)
	if err != nil {
		return nil, err
	}
	pub := priv.Public().(ed25519.PublicKey)

	digest := Digest(payload)
	sig := ed25519.Sign(priv, message(digest))

	env := &Envelope{
		Algorithm: Algorithm,
		Payload:   append([]byte(nil), payload...),
		Digest:    digest,
		PublicKey: hex.EncodeToString(pub),
		Signature: hex.EncodeToString(sig),
	}
	if sshPub, err := ssh.NewPublicKey(pub); err == nil {
		env.KeyID = ssh.FingerprintSHA256(sshPub)
	}
	return env, nil
}

// SignAnalysisReport signs the canonical form of r
func SignAnalysisReport(r *report.AnalysisReport, privHex string) (*Envelope, error) {
	payload, err := report.CanonicalJSON(r)
	if err != nil {
		return nil, fmt.Errorf("canonicalize report: %w", err)
	}
	return SignReport(payload, privHex)
}

// VerifyReport checks env against the hex encoded public key. A signature
// that does not match is reported as false with a nil error; only malformed
// key or signature material is an error.
func VerifyReport(env *Envelope, pubHex string) (bool, error) {
	if env == nil {
		return false, errors.NewMalformedSignatureError("no envelope")
	}
	if env.Algorithm != "" && !strings.EqualFold(env.Algorithm, Algorithm) {
		return false, errors.New(errors.ErrCodeSignUnsupportedKey, fmt.Sprintf("unsupported signature algorithm %q", env.Algorithm)).
			WithSuggestion("Only ed25519 envelopes are supported")
	}
	pub, err := decodePublicKey(pubHex)
	if err != nil {
		return false, err
	}
	sig, err := decodeSignature(env.Signature)
	if err != nil {
		return false, err
	}

	digest := Digest(env.Payload)
	if env.Digest != "" && !strings.EqualFold(env.Digest, digest) {
		return false, nil
	}
	return ed25519.Verify(pub, message(digest), sig), nil
}

// Open decodes the report carried by env. It does not verify the signature.
func Open(env *Envelope) (*report.AnalysisReport, error) {
	return report.Decode(env.Payload, "envelope payload")
}

func decodeHex(kind, value string, size int) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	if len(raw) != size {
		return nil, fmt.Errorf("%s: expected %d bytes, got %d", kind, size, len(raw))
	}
	return raw, nil
}

func decodePrivateKey(privHex string) (ed25519.PrivateKey, error) {
	seed, err := decodeHex("private key", privHex, ed25519.SeedSize)
	if err != nil {
		return nil, errors.NewMalformedKeyError("private", err.Error())
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

func decodePublicKey(pubHex string) (ed25519.PublicKey, error) {
	raw, err := decodeHex("public key", pubHex, ed25519.PublicKeySize)
	if err != nil {
		return nil, errors.NewMalformedKeyError("public", err.Error())
	}
	return ed25519.PublicKey(raw), nil
}

func decodeSignature(sigHex string) ([]byte, error) {
	raw, err := decodeHex("signature", sigHex, ed25519.SignatureSize)
	if err != nil {
		return nil, errors.NewMalformedSignatureError(err.Error())
	}
	return raw, nil
}
