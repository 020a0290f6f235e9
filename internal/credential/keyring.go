// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package credential

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// ErrNoSavedLogin is returned when the keyring holds no remembered login.
var ErrNoSavedLogin = errors.New("no saved proxy login")

var (
	keyringSet    = keyring.Set
	keyringGet    = keyring.Get
	keyringDelete = keyring.Delete
)

// userField is the keyring entry that records which username was saved; the
// password is stored under the username itself.
const userField = "username"

// Keyring remembers one proxy username/password pair in the OS credential
// vault.
type Keyring struct {
	Service string
}

// NewKeyring returns a Keyring using the application service name.
func NewKeyring() *Keyring {
	return &Keyring{Service: "pubmed-retriever"}
}

// Save stores username and password, replacing any earlier pair.
func (k *Keyring) Save(username, password string) error {
	if username == "" {
		return errors.New("username is required")
	}
	if err := keyringSet(k.Service, username, password); err != nil {
		return fmt.Errorf("saving password: %w", err)
	}
	if err := keyringSet(k.Service, userField, username); err != nil {
		return fmt.Errorf("saving username: %w", err)
	}
	return nil
}

// Load returns the saved pair, or ErrNoSavedLogin.
func (k *Keyring) Load() (username, password string, err error) {
	username, err = keyringGet(k.Service, userField)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", "", ErrNoSavedLogin
	}
	if err != nil {
		return "", "", fmt.Errorf("reading username: %w", err)
	}
	password, err = keyringGet(k.Service, username)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", "", ErrNoSavedLogin
	}
	if err != nil {
		return "", "", fmt.Errorf("reading password: %w", err)
	}
	return username, password, nil
}

// Delete removes the saved pair. Deleting when nothing is saved is not an
// error.
func (k *Keyring) Delete() error {
	username, err := keyringGet(k.Service, userField)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading username: %w", err)
	}
	if err := keyringDelete(k.Service, username); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("deleting password: %w", err)
	}
	if err := keyringDelete(k.Service, userField); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("deleting username: %w", err)
	}
	return nil
}
