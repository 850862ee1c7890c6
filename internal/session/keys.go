package session

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
)

// KeyManager provisions the host key pair used to reach guests over SSH.
// Keys live in {dataDir}/keys/.
type KeyManager struct {
	dataDir string
}

// NewKeyManager creates a key manager.
func NewKeyManager(dataDir string) *KeyManager {
	return &KeyManager{dataDir: dataDir}
}

func (m *KeyManager) keysDir() string {
	return filepath.Join(m.dataDir, "keys")
}

func (m *KeyManager) privateKeyPath() string {
	return filepath.Join(m.keysDir(), "vmstudio")
}

func (m *KeyManager) publicKeyPath() string {
	return filepath.Join(m.keysDir(), "vmstudio.pub")
}

// EnsureKeyPair generates an ed25519 key pair if it doesn't exist.
// Returns paths to the private and public key files.
func (m *KeyManager) EnsureKeyPair() (privateKeyPath, publicKeyPath string, err error) {
	privPath := m.privateKeyPath()
	pubPath := m.publicKeyPath()

	if m.KeyPairExists() {
		return privPath, pubPath, nil
	}

	if err := os.MkdirAll(m.keysDir(), 0700); err != nil {
		return "", "", fmt.Errorf("create keys directory: %w", err)
	}

	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ed25519 key: %w", err)
	}

	if err := writePrivateKey(privPath, privKey); err != nil {
		return "", "", fmt.Errorf("write private key: %w", err)
	}

	if err := writePublicKey(pubPath, pubKey); err != nil {
		// Don't leave a half-provisioned pair behind.
		os.Remove(privPath)
		return "", "", fmt.Errorf("write public key: %w", err)
	}

	return privPath, pubPath, nil
}

// KeyPairExists returns true if both private and public keys exist.
func (m *KeyManager) KeyPairExists() bool {
	_, privErr := os.Stat(m.privateKeyPath())
	_, pubErr := os.Stat(m.publicKeyPath())
	return privErr == nil && pubErr == nil
}

// PublicKey returns the public key content suitable for authorized_keys.
func (m *KeyManager) PublicKey() (string, error) {
	content, err := os.ReadFile(m.publicKeyPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("guest access key not provisioned yet")
		}
		return "", err
	}
	return string(content), nil
}

// writePrivateKey writes an ed25519 private key in OpenSSH format.
func writePrivateKey(path string, privKey ed25519.PrivateKey) error {
	pemBlock, err := ssh.MarshalPrivateKey(privKey, "vmstudio guest access")
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}
	return os.WriteFile(path, pem.EncodeToMemory(pemBlock), 0600)
}

// writePublicKey writes an ed25519 public key in authorized_keys format.
func writePublicKey(path string, pubKey ed25519.PublicKey) error {
	sshPubKey, err := ssh.NewPublicKey(pubKey)
	if err != nil {
		return fmt.Errorf("convert public key: %w", err)
	}

	authorizedKey := ssh.MarshalAuthorizedKey(sshPubKey)
	keyLine := fmt.Sprintf("%s vmstudio\n", string(authorizedKey[:len(authorizedKey)-1]))

	return os.WriteFile(path, []byte(keyLine), 0644)
}
