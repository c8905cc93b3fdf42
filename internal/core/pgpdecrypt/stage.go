package pgpdecrypt

import "sftpetl/internal/core/layers"

// Stage is the decrypt stage bound to one key block and passphrase
type Stage struct {
	ctx        *Context
	passphrase string
}

// New returns a stage; no key import happens until the first Decrypt
func New(keyMaterial, passphrase string, opts ...Option) *Stage {
	return &Stage{ctx: NewContext(keyMaterial, opts...), passphrase: passphrase}
}

// Decrypt returns the plaintext of content, or nil for nil content
func (s *Stage) Decrypt(content []byte) (*string, error) {
	return s.ctx.Decrypt(content, s.passphrase)
}

// FromRecord maps a bronze record to its silver record
func (s *Stage) FromRecord(rec layers.RawFileRecord) (layers.DecryptedRecord, error) {
	text, err := s.Decrypt(rec.Content)
	if err != nil {
		return layers.DecryptedRecord{Path: rec.Path}, err
	}
	return layers.DecryptedRecord{Path: rec.Path, Text: text}, nil
}

// Build imports the key material eagerly so a bad key fails at startup
func (s *Stage) Build() error { return s.ctx.Build() }

// Imports returns the number of key imports performed
func (s *Stage) Imports() int { return s.ctx.Imports() }

// Close tears down the workspace
func (s *Stage) Close() error { return s.ctx.Close() }

// Context exposes the underlying decryption context
func (s *Stage) Context() *Context { return s.ctx }
