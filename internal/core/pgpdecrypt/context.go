package pgpdecrypt

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	stderrs "errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	perr "sftpetl/internal/platform/errors"
	"sftpetl/internal/platform/logger"

	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"
	pgperrors "golang.org/x/crypto/openpgp/errors"
)

const (
	keyringFile   = "secring.asc"
	armorPrefix   = "-----BEGIN PGP"
	workspaceGlob = "sftpetl-pgp-*"
)

var errPassphrase = stderrs.New("secret key could not be unlocked with the supplied passphrase")

// Option configures a Context
type Option func(*Context)

// WithWorkspaceRoot places the workspace directory under root instead of the OS temp dir
func WithWorkspaceRoot(root string) Option { return func(c *Context) { c.root = root } }

// WithLogger overrides the component logger
func WithLogger(l *logger.Logger) Option { return func(c *Context) { c.log = l } }

// Context is the decryption context: imported key material plus the workspace it lives in.
// It is built lazily on first use and is safe for concurrent use; decrypt calls are
// serialized because unlocking a key mutates it in place
type Context struct {
	keyMaterial string
	root        string
	log         *logger.Logger

	mu        sync.Mutex
	built     bool
	buildErr  error
	workspace string
	keyring   openpgp.EntityList
	unlockSum *[sha256.Size]byte

	imports atomic.Int64
}

// NewContext returns an unbuilt context for keyMaterial (armored or binary key block)
func NewContext(keyMaterial string, opts ...Option) *Context {
	c := &Context{keyMaterial: keyMaterial, log: logger.Named("pgpdecrypt")}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Imports returns how many key imports this context has performed
func (c *Context) Imports() int { return int(c.imports.Load()) }

// Workspace returns the workspace directory, empty until the context is built
func (c *Context) Workspace() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.workspace
}

// Decrypt decrypts content with the imported keys and passphrase. nil content yields nil text
func (c *Context) Decrypt(content []byte, passphrase string) (*string, error) {
	if content == nil {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLocked(); err != nil {
		return nil, err
	}

	plain, err := c.decryptLocked(content, passphrase)
	if err != nil {
		return nil, err
	}
	text := decodeText(plain)
	return &text, nil
}

// Build constructs the context now instead of on first Decrypt
func (c *Context) Build() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureLocked()
}

// Close removes the workspace and forgets the imported keys; a later call rebuilds
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ws := c.workspace
	c.built, c.buildErr = false, nil
	c.workspace, c.keyring, c.unlockSum = "", nil, nil
	if ws == "" {
		return nil
	}
	if err := os.RemoveAll(ws); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "remove pgp workspace")
	}
	return nil
}

// ensureLocked builds the context exactly once; a failed build is remembered so every
// caller sees the same configuration error until Close
func (c *Context) ensureLocked() error {
	if c.built {
		return c.buildErr
	}
	c.built = true
	c.buildErr = c.build()
	return c.buildErr
}

func (c *Context) build() error {
	ws, err := os.MkdirTemp(c.root, workspaceGlob)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeConfiguration, "create pgp workspace")
	}
	if err := os.Chmod(ws, 0o700); err != nil {
		_ = os.RemoveAll(ws)
		return perr.Wrapf(err, perr.ErrorCodeConfiguration, "restrict pgp workspace")
	}
	c.workspace = ws

	path := filepath.Join(ws, keyringFile)
	if err := os.WriteFile(path, []byte(c.keyMaterial), 0o600); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeConfiguration, "write key material to workspace")
	}

	keyring, err := importKeys(path)
	c.imports.Add(1)
	if err != nil {
		return err
	}
	c.keyring = keyring

	c.log.Debug().Str("workspace", ws).Int("secret_keys", countSecret(keyring)).Msg("key material imported")
	return nil
}

// importKeys reads the key file back from the workspace. Zero secret keys is a
// configuration error carrying the reader's diagnostic
func importKeys(path string) (openpgp.EntityList, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeConfiguration, "read key material")
	}

	var el openpgp.EntityList
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte(armorPrefix)) {
		el, err = openpgp.ReadArmoredKeyRing(bytes.NewReader(raw))
	} else {
		el, err = openpgp.ReadKeyRing(bytes.NewReader(raw))
	}
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeConfiguration, "key import: imported 0 keys")
	}
	if countSecret(el) == 0 {
		return nil, perr.Configf("key import: imported 0 keys: key material holds %d public key(s) and no secret key", len(el))
	}
	return el, nil
}

func countSecret(el openpgp.EntityList) int {
	n := 0
	for _, e := range el {
		if e.PrivateKey != nil {
			n++
		}
	}
	return n
}

func (c *Context) decryptLocked(content []byte, passphrase string) ([]byte, error) {
	sum := sha256.Sum256([]byte(passphrase))
	if c.unlockSum != nil && subtle.ConstantTimeCompare(c.unlockSum[:], sum[:]) != 1 {
		return nil, decryptionError("bad passphrase", errPassphrase)
	}

	in, err := messageReader(content)
	if err != nil {
		return nil, decryptionError("no valid OpenPGP data found", err)
	}

	pass := []byte(passphrase)
	prompted := false
	prompt := func(keys []openpgp.Key, symmetric bool) ([]byte, error) {
		if prompted {
			return nil, errPassphrase
		}
		prompted = true
		for _, k := range keys {
			if k.PrivateKey == nil || !k.PrivateKey.Encrypted {
				continue
			}
			if k.PrivateKey.Decrypt(pass) == nil {
				c.unlockSum = &sum
			}
		}
		return pass, nil
	}

	md, err := openpgp.ReadMessage(in, c.keyring, prompt, nil)
	if err != nil {
		return nil, decryptionError(statusOf(err), err)
	}
	if !md.IsEncrypted {
		return nil, decryptionError("no encrypted data", stderrs.New("message is not encrypted"))
	}

	// reading to EOF is what verifies the integrity packet
	plain, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		return nil, decryptionError(statusOf(err), err)
	}
	return plain, nil
}

func messageReader(content []byte) (io.Reader, error) {
	if bytes.HasPrefix(bytes.TrimSpace(content), []byte(armorPrefix)) {
		blk, err := armor.Decode(bytes.NewReader(content))
		if err != nil {
			return nil, err
		}
		return blk.Body, nil
	}
	return bytes.NewReader(content), nil
}

// statusOf names the failure the way an operator reads it in the file ledger
func statusOf(err error) string {
	var (
		structural pgperrors.StructuralError
		sig        pgperrors.SignatureError
		unsupp     pgperrors.UnsupportedError
	)
	switch {
	case stderrs.Is(err, errPassphrase):
		return "bad passphrase"
	case stderrs.Is(err, pgperrors.ErrKeyIncorrect):
		return "no secret key"
	case stderrs.Is(err, io.ErrUnexpectedEOF), stderrs.Is(err, io.EOF):
		return "truncated ciphertext"
	case stderrs.As(err, &sig):
		return "integrity check failed"
	case stderrs.As(err, &structural):
		return "corrupt ciphertext"
	case stderrs.As(err, &unsupp):
		return "unsupported packet"
	}
	return "decryption failed"
}

func decryptionError(status string, cause error) error {
	return perr.Wrapf(cause, perr.ErrorCodeDecryption, "decrypt: %s", status)
}
