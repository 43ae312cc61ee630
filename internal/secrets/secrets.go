// mailattach
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

// Package secrets resolves the mailbox credentials and the filter settings.
package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const (
	KeyHostname    = "AuthenticationData:Hostname"
	KeyPort        = "AuthenticationData:Port"
	KeyUseSSL      = "AuthenticationData:UseSSL"
	KeyEmail       = "AuthenticationData:Email"
	KeyPassword    = "AuthenticationData:Password"
	KeyUseKeyring  = "AuthenticationData:UseKeyring"
	KeyTimeout     = "AuthenticationData:Timeout"
	KeySender      = "EmailReceived:Address"
	KeyAttachment1 = "EmailReceived:Attachment1"
	KeyAttachment2 = "EmailReceived:Attachment2"
	KeyTargetPath  = "Others:TargetPath"
	KeyJournalPath = "Others:JournalPath"

	EnvPrefix = "MAILATTACH"
)

var ErrMissingSetting = errors.New("Missing setting")

// Settings is an immutable snapshot of the provider, taken once per cycle.
type Settings struct {
	Hostname string
	Port     int
	UseSSL   bool
	Timeout  time.Duration

	Email    string
	Password string

	Sender      string
	Prefixes    []string
	TargetPath  string
	JournalPath string
}

// Addr is the host:port to dial.
func (s Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Hostname, s.Port)
}

// PasswordSource looks up a password that is not stored in the settings file.
type PasswordSource interface {
	Password(account string) (string, error)
}

// Provider re-reads the settings file on every call to Resolve so that
// rotated credentials are used by the next cycle.
type Provider struct {
	fs      afero.Fs
	path    string
	keyring PasswordSource
}

func NewProvider(fs afero.Fs, path string, keyring PasswordSource) *Provider {
	return &Provider{
		fs:      fs,
		path:    path,
		keyring: keyring,
	}
}

func (p *Provider) newViper() *viper.Viper {
	v := viper.NewWithOptions(viper.KeyDelimiter(":"))
	v.SetFs(p.fs)
	v.SetConfigFile(p.path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(":", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyUseSSL, true)
	v.SetDefault(KeyTimeout, "30s")
	return v
}

// Resolve reads and validates the settings.
func (p *Provider) Resolve() (Settings, error) {
	v := p.newViper()
	if err := v.ReadInConfig(); err != nil && !isNotFound(err) {
		return Settings{}, fmt.Errorf("Failed to read secrets file %s: %w", p.path, err)
	}

	if !v.IsSet(KeyPort) {
		return Settings{}, fmt.Errorf("%w: %s", ErrMissingSetting, KeyPort)
	}
	port, err := parseInt(v.GetString(KeyPort))
	if err != nil {
		return Settings{}, fmt.Errorf("Invalid %s: %w", KeyPort, err)
	}
	timeout, err := time.ParseDuration(v.GetString(KeyTimeout))
	if err != nil {
		return Settings{}, fmt.Errorf("Invalid %s: %w", KeyTimeout, err)
	}

	s := Settings{
		Hostname:    strings.TrimSpace(v.GetString(KeyHostname)),
		Port:        port,
		UseSSL:      v.GetBool(KeyUseSSL),
		Timeout:     timeout,
		Email:       v.GetString(KeyEmail),
		Password:    v.GetString(KeyPassword),
		Sender:      v.GetString(KeySender),
		TargetPath:  v.GetString(KeyTargetPath),
		JournalPath: v.GetString(KeyJournalPath),
	}

	// An empty prefix is configured and matches every filename. An absent
	// key is not configured.
	for _, key := range []string{KeyAttachment1, KeyAttachment2} {
		if v.IsSet(key) {
			s.Prefixes = append(s.Prefixes, v.GetString(key))
		}
	}

	if s.Password == "" && v.GetBool(KeyUseKeyring) {
		if p.keyring == nil {
			return Settings{}, fmt.Errorf("%s is set but no keyring is available", KeyUseKeyring)
		}
		s.Password, err = p.keyring.Password(s.Email)
		if err != nil {
			return Settings{}, err
		}
	}

	if err := s.validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) validate() error {
	required := []struct {
		key, value string
	}{
		{KeyHostname, s.Hostname},
		{KeyEmail, s.Email},
		{KeySender, s.Sender},
		{KeyTargetPath, s.TargetPath},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%w: %s", ErrMissingSetting, r.key)
		}
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", KeyPort, s.Port)
	}
	return nil
}

func parseInt(raw string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", raw)
	}
	return v, nil
}

// isNotFound reports a missing secrets file. Settings may then come from the
// environment alone.
func isNotFound(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf) || errors.Is(err, fs.ErrNotExist)
}
