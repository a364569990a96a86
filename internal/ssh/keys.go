package ssh

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/yoanbernabeu/pilauncher/internal/config"
)

// SSHKeyInfo contains information about an SSH key
type SSHKeyInfo struct {
	Path        string // Full path to the key file
	Name        string // Key filename (e.g., "id_ed25519")
	Type        string // Key type (e.g., "ed25519", "rsa", "ecdsa")
	IsEncrypted bool   // True if key is passphrase-protected
}

// DiscoverSSHKeys scans ~/.ssh/ for private keys
// Returns keys sorted by preference: ed25519 first, then rsa, then others
func DiscoverSSHKeys() ([]SSHKeyInfo, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}
	return discoverSSHKeysIn(filepath.Join(homeDir, ".ssh"))
}

func discoverSSHKeysIn(sshDir string) ([]SSHKeyInfo, error) {
	entries, err := os.ReadDir(sshDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read .ssh directory: %w", err)
	}

	var keys []SSHKeyInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if strings.HasSuffix(name, ".pub") {
			continue
		}
		if !strings.HasPrefix(name, "id_") && !strings.HasSuffix(name, ".pem") {
			continue
		}

		keyInfo, err := ValidateSSHKey(filepath.Join(sshDir, name))
		if err != nil {
			continue
		}
		keys = append(keys, *keyInfo)
	}

	// Sort by preference: ed25519 > rsa > ecdsa > others
	sort.SliceStable(keys, func(i, j int) bool {
		return keyTypePriority(keys[i].Type) < keyTypePriority(keys[j].Type)
	})

	return keys, nil
}

// keyTypePriority returns sort priority for key types (lower is better)
func keyTypePriority(keyType string) int {
	switch keyType {
	case "ed25519":
		return 1
	case "rsa":
		return 2
	case "ecdsa":
		return 3
	default:
		return 4
	}
}

// ValidateSSHKey validates a key file and returns its info
func ValidateSSHKey(path string) (*SSHKeyInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	keyInfo := &SSHKeyInfo{
		Path: path,
		Name: filepath.Base(path),
	}

	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		if isPassphraseError(err) {
			keyInfo.IsEncrypted = true
			keyInfo.Type = detectKeyType(data)
			return keyInfo, nil
		}
		return nil, fmt.Errorf("invalid SSH key: %w", err)
	}

	keyInfo.Type = publicKeyType(signer.PublicKey().Type())
	return keyInfo, nil
}

// isPassphraseError checks if the error indicates a passphrase-protected key
func isPassphraseError(err error) bool {
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "passphrase") ||
		strings.Contains(errStr, "encrypted") ||
		strings.Contains(errStr, "ENCRYPTED")
}

// publicKeyType maps an SSH wire key type to the short name used for sorting
func publicKeyType(wire string) string {
	switch {
	case wire == ssh.KeyAlgoED25519:
		return "ed25519"
	case wire == ssh.KeyAlgoRSA:
		return "rsa"
	case strings.HasPrefix(wire, "ecdsa-"):
		return "ecdsa"
	default:
		return "unknown"
	}
}

// detectKeyType guesses the key type from PEM headers when the key cannot be
// parsed without a passphrase
func detectKeyType(data []byte) string {
	content := string(data)

	switch {
	case strings.Contains(content, "OPENSSH PRIVATE KEY"):
		// The OpenSSH container hides the algorithm behind the passphrase;
		// ed25519 is the ssh-keygen default
		return "ed25519"
	case strings.Contains(content, "RSA PRIVATE KEY"):
		return "rsa"
	case strings.Contains(content, "EC PRIVATE KEY"):
		return "ecdsa"
	case strings.Contains(content, "DSA PRIVATE KEY"):
		return "dsa"
	}

	return "unknown"
}

// TryConnect attempts a single connection to a device with a specific key.
// Returns nil on success.
func TryConnect(ctx context.Context, host, user string, port int, keyPath string, env *config.Env) error {
	client := NewClient(host, user, port, keyPath,
		WithTimeout(10*time.Second),
		WithRetries(0),
		WithEnv(env),
	)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	return client.Close()
}
