// Package pgpdecrypt is the decrypt stage: it turns captured ciphertext into plaintext using
// a private key block and passphrase supplied from outside the process.
//
// Key material is imported once per Context into a private workspace directory. The first
// Decrypt call builds the context; every later call reuses it until Close. A key block that
// yields no secret keys is a configuration error and no decryption is attempted. Anything
// that stops a message from decrypting cleanly (wrong passphrase, a key that is not a
// recipient, corrupt or truncated input, a failed integrity check) is a decryption error.
//
// Neither the key block nor the passphrase is ever logged or included in an error.
package pgpdecrypt
