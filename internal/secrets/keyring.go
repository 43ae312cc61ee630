// mailattach
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package secrets

import (
	"fmt"

	"github.com/99designs/keyring"
)

const keyringService = "mailattach"

// Keyring stores mailbox passwords in the OS credential store, keyed by the
// account email.
type Keyring struct {
	ring keyring.Keyring
}

// OpenKeyring opens the platform keyring, falling back to an encrypted file
// under `fileDir` when no system backend is available.
func OpenKeyring(fileDir string) (*Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: keyringService,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(keyringService + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("Failed to open keyring: %w", err)
	}
	return &Keyring{ring: ring}, nil
}

func (k *Keyring) Password(account string) (string, error) {
	item, err := k.ring.Get(account)
	if err != nil {
		return "", fmt.Errorf("Failed to get password for %q from keyring: %w", account, err)
	}
	return string(item.Data), nil
}

func (k *Keyring) SetPassword(account, password string) error {
	err := k.ring.Set(keyring.Item{
		Key:   account,
		Data:  []byte(password),
		Label: keyringService + " " + account,
	})
	if err != nil {
		return fmt.Errorf("Failed to store password for %q: %w", account, err)
	}
	return nil
}
