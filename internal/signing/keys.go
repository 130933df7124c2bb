package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/felixgeelhaar/pipescope/internal/errors"
)

// Default key file names written by SaveKeyPair
const (
	PublicKeyFile  = "pipescope.pub"
	PrivateKeyFile = "pipescope.key"
)

// GenerateKeyPair returns a fresh hex encoded public key and private key seed
func GenerateKeyPair() (pubHex, privHex string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(pub), hex.EncodeToString(priv.Seed()), nil
}

// SaveKeyPair writes both keys into dir and returns their paths. The private
// key file is readable by the owner only.
func SaveKeyPair(dir, pubHex, privHex string) (pubPath, privPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", errors.Wrap(errors.ErrCodeFileWriteFailed, fmt.Sprintf("failed to create %s", dir), err)
	}
	pubPath = filepath.Join(dir, PublicKeyFile)
	privPath = filepath.Join(dir, PrivateKeyFile)
	if err := os.WriteFile(pubPath, []byte(pubHex+"\n"), 0o644); err != nil {
		return "", "", errors.Wrap(errors.ErrCodeFileWriteFailed, fmt.Sprintf("failed to write %s", pubPath), err)
	}
	if err := os.WriteFile(privPath, []byte(privHex+"\n"), 0o600); err != nil {
		return "", "", errors.Wrap(errors.ErrCodeFileWriteFailed, fmt.Sprintf("failed to write %s", privPath), err)
	}
	return pubPath, privPath, nil
}

// LoadKey reads a hex key file written by SaveKeyPair
func LoadKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewFileNotFoundError(path)
		}
		return "", errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read key %s", path), err)
	}
	return strings.TrimSpace(string(data)), nil
}

// LoadSSHKey reads an unencrypted OpenSSH ed25519 private key and returns its
// seed as hex, ready for SignReport.
func LoadSSHKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewFileNotFoundError(path)
		}
		return "", errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read key %s", path), err)
	}
	return ParseSSHKey(data)
}

// ParseSSHKey extracts the ed25519 seed from PEM encoded key material
func ParseSSHKey(data []byte) (string, error) {
	key, err := ssh.ParseRawPrivateKey(data)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if stderrors.As(err, &missing) {
			return "", errors.NewMalformedKeyError("ssh", "passphrase protected keys are not supported").
				WithSuggestion("Export an unencrypted copy with 'ssh-keygen -p -N \"\" -f <copy>'")
		}
		return "", errors.NewMalformedKeyError("ssh", err.Error())
	}
	switch k := key.(type) {
	case *ed25519.PrivateKey:
		return hex.EncodeToString(k.Seed()), nil
	case ed25519.PrivateKey:
		return hex.EncodeToString(k.Seed()), nil
	default:
		return "", errors.New(errors.ErrCodeSignUnsupportedKey, fmt.Sprintf("unsupported ssh key type %T", key)).
			WithSuggestion("Generate an ed25519 key with 'ssh-keygen -t ed25519'")
	}
}

// LoadEnvelope reads an envelope written by SaveEnvelope
func LoadEnvelope(path string) (*Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFoundError(path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read envelope %s", path), err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.NewFileUnmarshalError(path, "JSON", err)
	}
	return &env, nil
}

// SaveEnvelope writes env as indented JSON
func SaveEnvelope(env *Envelope, path string) error {
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, fmt.Sprintf("failed to write envelope %s", path), err)
	}
	return nil
}
