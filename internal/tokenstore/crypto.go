package tokenstore

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// keyMaterialBytes is the size of a generated key file.
const keyMaterialBytes = 32

// recordMagic prefixes every record so a foreign file is rejected early.
var recordMagic = []byte("DATK1")

// loadKeyMaterial returns key, or the contents of keyFile, creating the file
// with fresh random material when it does not exist.
func loadKeyMaterial(key []byte, keyFile string) ([]byte, error) {
	if len(key) > 0 {
		return key, nil
	}

	data, err := os.ReadFile(keyFile)
	if err == nil {
		if len(data) == 0 {
			return nil, fmt.Errorf("key file %s is empty", keyFile)
		}
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	material := make([]byte, keyMaterialBytes)
	if _, err := io.ReadFull(rand.Reader, material); err != nil {
		return nil, fmt.Errorf("failed to generate storage key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(keyFile), 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	// O_EXCL: another process may be creating the same key right now.
	f, err := os.OpenFile(keyFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if errors.Is(err, os.ErrExist) {
		return loadKeyMaterial(nil, keyFile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create key file: %w", err)
	}
	if _, err := f.Write(material); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}
	return material, nil
}

// newAEAD derives the record key for appID from material.
func newAEAD(material []byte, appID string) (cipher.AEAD, error) {
	kdf := hkdf.New(sha256.New, material, nil, []byte("deskauth token record v1|"+appID))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive record key: %w", err)
	}
	return chacha20poly1305.NewX(key)
}

// seal returns magic || nonce || ciphertext.
func seal(aead cipher.AEAD, plaintext, ad []byte) ([]byte, error) {
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := make([]byte, 0, len(recordMagic)+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, recordMagic...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, ad), nil
}

func open(aead cipher.AEAD, data, ad []byte) ([]byte, error) {
	if len(data) < len(recordMagic)+aead.NonceSize()+aead.Overhead() ||
		string(data[:len(recordMagic)]) != string(recordMagic) {
		return nil, errors.New("not a token record")
	}
	data = data[len(recordMagic):]
	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, ad)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}
