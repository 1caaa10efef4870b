/*
 * Copyright 2023 Comcast Cable Communications Management, LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package credentials resolves the BMC login used for a target, either the
// statically configured account or a secret read from vault through a named
// credential profile.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/comcast/fishyctl/vault"
	vaultapi "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
	"gopkg.in/alecthomas/kingpin.v2"
	"gopkg.in/yaml.v3"
)

var (
	ErrNoCredential   = errors.New("no BMC credential configured")
	ErrUnknownProfile = errors.New("unknown credential profile")
)

// SecretReader reads a KV secret, implemented by *vault.Vault
type SecretReader interface {
	GetKVSecret(ctx context.Context, props *vault.SecretProperties, target string) (*vaultapi.KVSecret, error)
}

type Credential struct {
	User string
	Pass string
}

// Profile names a vault location holding BMC credentials
type Profile struct {
	Name                   string `yaml:"name"`
	vault.SecretProperties `yaml:",inline"`
}

type profileList struct {
	Profiles []Profile `yaml:"profiles"`
}

// Store caches credentials per profile and target
type Store struct {
	mu       sync.Mutex
	creds    map[string]*Credential
	profiles map[string]Profile
	static   Credential
	Vault    SecretReader
}

// NewStore returns a store that falls back to the static credential when
// no profile is asked for.
func NewStore(static Credential) *Store {
	return &Store{
		creds:    make(map[string]*Credential),
		profiles: make(map[string]Profile),
		static:   static,
	}
}

// SetStatic replaces the credential used when no profile is asked for
func (s *Store) SetStatic(c Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.static = c
}

func (s *Store) AddProfile(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.Name] = p
}

// ParseProfiles adds every profile of a YAML (or JSON) document shaped
// {"profiles": [...]}.
func (s *Store) ParseProfiles(doc string) error {
	var list profileList
	if err := yaml.Unmarshal([]byte(doc), &list); err != nil {
		return fmt.Errorf("error parsing credential profiles - %w", err)
	}
	for _, p := range list.Profiles {
		if p.Name == "" || p.MountPath == "" {
			return fmt.Errorf("credential profile needs a name and a mountPath, got %+v", p)
		}
		s.AddProfile(p)
	}
	return nil
}

func (s *Store) get(key string) (*Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, ok := s.creds[key]
	return val, ok
}

func (s *Store) set(key string, value *Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[key] = value
}

// Invalidate drops the cached credential so the next Resolve goes to vault,
// used when a BMC rejects a login because the secret was rotated.
func (s *Store) Invalidate(profile, target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, profile+"/"+target)
}

// Resolve returns the credential for target. An empty profile means the
// static credential.
func (s *Store) Resolve(ctx context.Context, profile, target string) (*Credential, error) {
	if profile == "" {
		s.mu.Lock()
		c := s.static
		s.mu.Unlock()
		if c.User == "" {
			return nil, ErrNoCredential
		}
		return &c, nil
	}

	key := profile + "/" + target
	if c, ok := s.get(key); ok {
		return c, nil
	}

	s.mu.Lock()
	p, ok := s.profiles[profile]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, profile)
	}

	c, err := s.fetch(ctx, p, target)
	if err != nil {
		zap.L().Error("issue retrieving credentials from vault", zap.String("target", target),
			zap.String("profile", profile), zap.Error(err))
		return nil, err
	}
	s.set(key, c)
	return c, nil
}

func (s *Store) fetch(ctx context.Context, p Profile, target string) (*Credential, error) {
	if s.Vault == nil {
		return nil, fmt.Errorf("vault client not configured, can't use credential profile %s", p.Name)
	}

	// secrets are keyed by host, drop any scheme or port
	host := target
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	host = strings.SplitN(host, ":", 2)[0]

	secret, err := s.Vault.GetKVSecret(ctx, &p.SecretProperties, host)
	if err != nil {
		return nil, err
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("the secret retrieved from vault for target %s is empty", host)
	}

	user := p.UserName
	if p.UserField != "" {
		var ok bool
		if user, ok = secret.Data[p.UserField].(string); !ok {
			return nil, fmt.Errorf("the secret retrieved from vault for target %s is missing the %q field", host, p.UserField)
		}
	}
	pass, ok := secret.Data[p.PasswordField].(string)
	if !ok {
		return nil, fmt.Errorf("the secret retrieved from vault for target %s is missing the %q field", host, p.PasswordField)
	}
	if user == "" {
		return nil, fmt.Errorf("credential profile %s yields no user name", p.Name)
	}

	return &Credential{User: user, Pass: pass}, nil
}

type profilesValue struct {
	store *Store
	raw   string
}

func (v *profilesValue) Set(s string) error {
	v.raw = s
	return v.store.ParseProfiles(s)
}

func (v *profilesValue) String() string {
	return v.raw
}

// CredentialProf registers a flag whose value is a profile document, parsed
// straight into store.
func CredentialProf(s kingpin.Settings, store *Store) {
	s.SetValue(&profilesValue{store: store})
}
