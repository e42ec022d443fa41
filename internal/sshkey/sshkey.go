// Package sshkey manages the ed25519 management key pair the client side
// uses to reach engine instances. The public half is injected into the
// instance's metadata at creation time.
package sshkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

const (
	privateKeyFile = "engine_key"
	publicKeyFile  = "engine_key.pub"
	keyComment     = "enginevm-management"
)

// Pair holds the paths of a management key pair.
type Pair struct {
	PrivateKeyPath string
	PublicKeyPath  string
}

// Ensure returns the key pair under dir, generating one on first use.
// Existing keys are validated rather than silently replaced.
func Ensure(dir string) (*Pair, error) {
	pair := &Pair{
		PrivateKeyPath: filepath.Join(dir, privateKeyFile),
		PublicKeyPath:  filepath.Join(dir, publicKeyFile),
	}

	if fileExists(pair.PrivateKeyPath) && fileExists(pair.PublicKeyPath) {
		if err := pair.validate(); err != nil {
			return nil, fmt.Errorf("existing keys are invalid: %w (remove them to regenerate)", err)
		}
		return pair, nil
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}
	if err := pair.generate(); err != nil {
		return nil, fmt.Errorf("generate key pair: %w", err)
	}
	return pair, nil
}

// AuthorizedKey returns the public key as a single authorized_keys line,
// without a trailing newline.
func (p *Pair) AuthorizedKey() (string, error) {
	data, err := os.ReadFile(p.PublicKeyPath)
	if err != nil {
		return "", fmt.Errorf("read public key: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (p *Pair) generate() error {
	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate ed25519 key: %w", err)
	}

	sshPubKey, err := ssh.NewPublicKey(pubKey)
	if err != nil {
		return fmt.Errorf("convert public key to ssh format: %w", err)
	}
	pubLine := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPubKey))) + " " + keyComment + "\n"

	privPEM, err := ssh.MarshalPrivateKey(privKey, keyComment)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}

	if err := os.WriteFile(p.PrivateKeyPath, pem.EncodeToMemory(privPEM), 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(p.PublicKeyPath, []byte(pubLine), 0o644); err != nil {
		_ = os.Remove(p.PrivateKeyPath)
		return fmt.Errorf("write public key: %w", err)
	}
	return nil
}

func (p *Pair) validate() error {
	privData, err := os.ReadFile(p.PrivateKeyPath)
	if err != nil {
		return fmt.Errorf("read private key: %w", err)
	}
	if _, err := ssh.ParsePrivateKey(privData); err != nil {
		return fmt.Errorf("parse private key: %w", err)
	}

	pubData, err := os.ReadFile(p.PublicKeyPath)
	if err != nil {
		return fmt.Errorf("read public key: %w", err)
	}
	if _, _, _, _, err := ssh.ParseAuthorizedKey(pubData); err != nil {
		return fmt.Errorf("parse public key: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
