package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/yoanbernabeu/pilauncher/internal/config"
	"github.com/yoanbernabeu/pilauncher/internal/logging"
	"github.com/yoanbernabeu/pilauncher/internal/retry"
)

// Connection defaults
const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxRetries   = 3
	DefaultInitialDelay = 1 * time.Second
	DefaultMaxDelay     = 10 * time.Second
)

type clientOptions struct {
	timeout      time.Duration
	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration
	password     string
	env          *config.Env
	sleep        func(time.Duration)
}

// Option configures a Client
type Option func(*clientOptions)

// WithTimeout sets the dial timeout
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

// WithRetries sets how many times a failed dial is retried
func WithRetries(n int) Option {
	return func(o *clientOptions) { o.maxRetries = n }
}

// WithInitialDelay sets the delay before the first retry
func WithInitialDelay(d time.Duration) Option {
	return func(o *clientOptions) { o.initialDelay = d }
}

// WithMaxDelay caps the exponential retry delay
func WithMaxDelay(d time.Duration) Option {
	return func(o *clientOptions) { o.maxDelay = d }
}

// WithPassword enables password authentication alongside keys
func WithPassword(password string) Option {
	return func(o *clientOptions) { o.password = password }
}

// WithEnv supplies CI/CD overrides (PILAUNCHER_SSH_KEY, PILAUNCHER_KNOWN_HOSTS,
// PILAUNCHER_SKIP_HOST_KEY_CHECK)
func WithEnv(env *config.Env) Option {
	return func(o *clientOptions) { o.env = env }
}

// Client represents an SSH client connection
type Client struct {
	Host    string
	User    string
	Port    int
	KeyPath string

	opts   clientOptions
	config *ssh.ClientConfig
	client *ssh.Client
	logger zerolog.Logger
}

// NewClient creates a new SSH client
func NewClient(host, user string, port int, keyPath string, opts ...Option) *Client {
	if port == 0 {
		port = 22
	}
	o := clientOptions{
		timeout:      DefaultTimeout,
		maxRetries:   DefaultMaxRetries,
		initialDelay: DefaultInitialDelay,
		maxDelay:     DefaultMaxDelay,
		sleep:        time.Sleep,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.env == nil {
		o.env = &config.Env{}
	}
	return &Client{
		Host:    host,
		User:    user,
		Port:    port,
		KeyPath: keyPath,
		opts:    o,
		logger:  logging.For("ssh").With().Str("host", host).Logger(),
	}
}

// NewClientForDevice creates a client from a registered device
func NewClientForDevice(device *config.DeviceConfig, opts ...Option) *Client {
	if device.Password != "" {
		opts = append([]Option{WithPassword(device.Password)}, opts...)
	}
	return NewClient(device.Host, device.User, device.Port, device.KeyPath, opts...)
}

// Connect establishes an SSH connection, retrying transient network failures
// with exponential backoff
func (c *Client) Connect(ctx context.Context) error {
	auth, err := c.authMethods()
	if err != nil {
		return err
	}

	hostKeyCallback, err := c.hostKeyCallback()
	if err != nil {
		return fmt.Errorf("host key verification failed: %w", err)
	}

	c.config = &ssh.ClientConfig{
		User:            c.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.opts.timeout,
	}

	return c.dial(ctx)
}

// Reconnect closes any existing connection and dials again with the
// configuration of the previous Connect
func (c *Client) Reconnect(ctx context.Context) error {
	if c.config == nil {
		return fmt.Errorf("cannot reconnect: no previous connection")
	}
	_ = c.Close()
	return c.dial(ctx)
}

func (c *Client) dial(ctx context.Context) error {
	addr := net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
	attempt := 0

	client, err := retry.Value(retry.Policy{
		Retryable: isRetryableDialError,
		Retries:   c.opts.maxRetries,
		Backoff: func() bool {
			attempt++
			delay := c.backoffDelay(attempt)
			c.logger.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("dial failed, retrying")
			c.opts.sleep(delay)
			return ctx.Err() != nil
		},
		KeepLastError: true,
	}, func() (*ssh.Client, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return ssh.Dial("tcp", addr, c.config)
	})
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	c.client = client
	c.logger.Debug().Str("user", c.User).Msg("connected")
	return nil
}

// backoffDelay returns the delay before retry attempt n (1-based)
func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.opts.initialDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.opts.maxDelay {
			return c.opts.maxDelay
		}
	}
	if delay > c.opts.maxDelay {
		return c.opts.maxDelay
	}
	return delay
}

// isRetryableDialError reports whether a dial failure is worth retrying.
// Authentication and host key failures are permanent.
func isRetryableDialError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, io.EOF) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"connection timed out",
		"no route to host",
		"network is unreachable",
		"host is down",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// Close closes the SSH connection
func (c *Client) Close() error {
	if c.client != nil {
		err := c.client.Close()
		c.client = nil
		return err
	}
	return nil
}

// IsConnected returns true if the client is connected
func (c *Client) IsConnected() bool {
	return c.client != nil
}

// authMethods returns key auth when a key is available and password auth
// when a password was configured. At least one is required.
func (c *Client) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	signer, keyErr := c.loadPrivateKey()
	if keyErr == nil {
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if c.opts.password != "" {
		password := c.opts.password
		methods = append(methods,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("failed to load private key: %w", keyErr)
	}
	return methods, nil
}

// loadPrivateKey loads the SSH private key
func (c *Client) loadPrivateKey() (ssh.Signer, error) {
	// CI/CD: Check for SSH key in environment variable first
	if envKey := c.opts.env.SSHKey; envKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(envKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse PILAUNCHER_SSH_KEY: %w", err)
		}
		return signer, nil
	}

	keyPath := c.KeyPath
	if keyPath == "" {
		keys, err := DiscoverSSHKeys()
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			if !k.IsEncrypted {
				keyPath = k.Path
				break
			}
		}
		if keyPath == "" {
			return nil, fmt.Errorf("no SSH key found (set PILAUNCHER_SSH_KEY for CI/CD)")
		}
	}

	keyPath, err := expandHome(keyPath)
	if err != nil {
		return nil, err
	}

	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return signer, nil
}

// hostKeyCallback returns the host key callback function
// SECURITY: This function requires a valid known_hosts file by default
// In CI/CD, set PILAUNCHER_KNOWN_HOSTS with the content of known_hosts
// or PILAUNCHER_SKIP_HOST_KEY_CHECK=true to skip verification (not recommended)
func (c *Client) hostKeyCallback() (ssh.HostKeyCallback, error) {
	// CI/CD: Check for known_hosts content in environment variable
	if knownHostsContent := c.opts.env.KnownHosts; knownHostsContent != "" {
		// Write to temp file for knownhosts.New()
		tmpFile, err := os.CreateTemp("", "known_hosts")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp known_hosts: %w", err)
		}
		defer os.Remove(tmpFile.Name())

		if _, err := tmpFile.WriteString(knownHostsContent); err != nil {
			tmpFile.Close()
			return nil, fmt.Errorf("failed to write temp known_hosts: %w", err)
		}
		tmpFile.Close()

		callback, err := knownhosts.New(tmpFile.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to parse PILAUNCHER_KNOWN_HOSTS: %w", err)
		}
		return callback, nil
	}

	// CI/CD: Option to skip host key verification (use with caution)
	if c.opts.env.SkipHostKeyCheck {
		c.logger.Warn().Msg("host key verification disabled")
		return ssh.InsecureIgnoreHostKey(), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	knownHostsPath := filepath.Join(homeDir, ".ssh", "known_hosts")

	if _, err := os.Stat(knownHostsPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("SSH known_hosts file not found at %s. "+
			"Please connect to the device manually first with: ssh %s@%s -p %d\n"+
			"For CI/CD, set PILAUNCHER_KNOWN_HOSTS or PILAUNCHER_SKIP_HOST_KEY_CHECK=true",
			knownHostsPath, c.User, c.Host, c.Port)
	}

	callback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read known_hosts: %w", err)
	}

	return callback, nil
}

// NewSession creates a new SSH session
func (c *Client) NewSession() (*ssh.Session, error) {
	if c.client == nil {
		return nil, fmt.Errorf("not connected")
	}
	return c.client.NewSession()
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, path[2:]), nil
}
