package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/bizkeeper/internal/common"
	"github.com/dmitrijs2005/bizkeeper/internal/cryptox"
)

// SaltKey holds the random salt the encryption key is derived with. It is
// stored in clear text next to the sealed values.
const SaltKey = "_meta:salt"

// CheckKey holds checkPlaintext sealed with the derived key. A passphrase
// that cannot open it is rejected before any value is read or written.
const CheckKey = "_meta:check"

const checkPlaintext = "bizkeeper"

var ErrWrongPassphrase = errors.New("wrong encryption passphrase")

// Encrypted seals values before handing them to the wrapped Storage.
type Encrypted struct {
	inner Storage
	key   []byte
}

// NewEncrypted derives the key from passphrase and the salt found in inner,
// creating the salt and the check value on first use. It fails with
// ErrWrongPassphrase when the check value does not open. The passphrase
// slice is wiped.
func NewEncrypted(ctx context.Context, inner Storage, passphrase []byte) (*Encrypted, error) {
	defer common.WipeByteArray(passphrase)

	salt, ok, err := inner.Get(ctx, SaltKey)
	if err != nil {
		return nil, err
	}
	if !ok || salt == "" {
		salt, err = common.MakeRandHexString(16)
		if err != nil {
			return nil, fmt.Errorf("failed to generate salt: %w", err)
		}
		if err := inner.Set(ctx, SaltKey, salt); err != nil {
			return nil, err
		}
	}

	e := &Encrypted{inner: inner, key: cryptox.DeriveKey(passphrase, []byte(salt))}
	if err := e.verify(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Encrypted) verify(ctx context.Context) error {
	sealed, ok, err := e.inner.Get(ctx, CheckKey)
	if err != nil {
		return err
	}
	if !ok || sealed == "" {
		return e.Set(ctx, CheckKey, checkPlaintext)
	}

	plain, err := cryptox.OpenString(e.key, sealed)
	if err != nil || plain != checkPlaintext {
		return ErrWrongPassphrase
	}
	return nil
}

func (e *Encrypted) Get(ctx context.Context, key string) (string, bool, error) {
	sealed, ok, err := e.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	plain, err := e.open(key, sealed)
	if err != nil {
		return "", true, err
	}
	return plain, true, nil
}

func (e *Encrypted) Set(ctx context.Context, key string, value string) error {
	sealed, err := cryptox.SealString(e.key, value)
	if err != nil {
		return fmt.Errorf("failed to seal kv[%s]: %w", key, err)
	}
	return e.inner.Set(ctx, key, sealed)
}

// Update is atomic when the wrapped storage is an Updater. A value that no
// longer decrypts is handed to fn as absent.
func (e *Encrypted) Update(ctx context.Context, key string, fn UpdateFunc) error {
	u, ok := e.inner.(Updater)
	if !ok {
		current, found, err := e.Get(ctx, key)
		if errors.Is(err, ErrCorrupt) {
			current, found, err = "", false, nil
		}
		if err != nil {
			return err
		}
		next, err := fn(current, found)
		if err != nil {
			return err
		}
		return e.Set(ctx, key, next)
	}

	return u.Update(ctx, key, func(sealed string, found bool) (string, error) {
		current := ""
		if found {
			plain, err := e.open(key, sealed)
			if err == nil {
				current = plain
			} else {
				found = false
			}
		}
		next, err := fn(current, found)
		if err != nil {
			return "", err
		}
		return cryptox.SealString(e.key, next)
	})
}

func (e *Encrypted) Keys(ctx context.Context, prefix string) ([]string, error) {
	l, ok := e.inner.(Lister)
	if !ok {
		return nil, errors.ErrUnsupported
	}
	return l.Keys(ctx, prefix)
}

func (e *Encrypted) open(key, sealed string) (string, error) {
	plain, err := cryptox.OpenString(e.key, sealed)
	if err != nil {
		return "", fmt.Errorf("%w: kv[%s]: %v", ErrCorrupt, key, err)
	}
	return plain, nil
}
