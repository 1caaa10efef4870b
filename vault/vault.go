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

package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
	"github.com/hashicorp/vault/api/auth/approle"
	"go.uber.org/zap"
)

const defaultLoginRetry = 10 * time.Second

var (
	ErrBadTLSConfig = errors.New("bad TLS configuration")
)

type Parameters struct {
	// connection and credential parameters
	Address         string
	ApproleRoleID   string
	ApproleSecretID string
	CACertBytes     []byte
	// LoginRetry is how long to wait before logging in again, 10s when zero
	LoginRetry time.Duration
}

// SecretProperties locates the BMC credential of a target in a KV mount.
// The secret read is Path/SecretName, or Path/<target> when SecretName is
// empty.
type SecretProperties struct {
	MountPath     string `yaml:"mountPath" json:"mountPath"`
	KVVersion     int    `yaml:"kvVersion" json:"kvVersion"`
	Path          string `yaml:"path" json:"path"`
	UserField     string `yaml:"userField" json:"userField"`
	PasswordField string `yaml:"passwordField" json:"passwordField"`
	SecretName    string `yaml:"secretName" json:"secretName"`
	// UserName is used as the login when the secret carries no user field
	UserName string `yaml:"userName" json:"userName"`
}

// kv2 reports whether the mount is a versioned KV store. Mounts named kv2
// are assumed versioned when no version is configured.
func (p *SecretProperties) kv2() bool {
	if p.KVVersion != 0 {
		return p.KVVersion == 2
	}
	return p.MountPath == "kv2"
}

func (p *SecretProperties) secretPath(secret string) string {
	name := secret
	if p.SecretName != "" {
		name = p.SecretName
	}
	if p.Path == "" {
		return name
	}
	return fmt.Sprintf("%s/%s", p.Path, name)
}

type Vault struct {
	mu         sync.RWMutex
	client     *vault.Client
	Parameters Parameters
	isLoggedIn bool
}

// NewVaultAppRoleClient builds a client for the AppRole authentication
// method. No login happens until RenewToken runs.
func NewVaultAppRoleClient(ctx context.Context, parameters Parameters) (*Vault, error) {
	config := vault.DefaultConfig()
	config.Address = parameters.Address
	if len(parameters.CACertBytes) > 0 {
		if err := config.ConfigureTLS(&vault.TLSConfig{
			CACertBytes: parameters.CACertBytes,
		}); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadTLSConfig, err)
		}
	}

	client, err := vault.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize vault client: %w", err)
	}
	if parameters.LoginRetry <= 0 {
		parameters.LoginRetry = defaultLoginRetry
	}

	vault := &Vault{
		client:     client,
		Parameters: parameters,
	}

	return vault, nil
}

// A combination of a RoleID and a SecretID is required to log into Vault
// with AppRole authentication method.
func (v *Vault) login(ctx context.Context) (*vault.Secret, error) {
	var roleId, secretId string
	v.mu.RLock()
	roleId = v.Parameters.ApproleRoleID
	secretId = v.Parameters.ApproleSecretID
	v.mu.RUnlock()

	approleSecretID := &approle.SecretID{
		FromString: secretId,
	}

	appRoleAuth, err := approle.NewAppRoleAuth(
		roleId,
		approleSecretID,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize approle authentication method: %w", err)
	}

	authInfo, err := v.client.Auth().Login(ctx, appRoleAuth)
	if err != nil {
		return nil, fmt.Errorf("unable to login using approle auth method: %w", err)
	}

	return authInfo, nil
}

// GetKVSecret fetches the latest version of the secret for target from kv-v1 or kv-v2
func (v *Vault) GetKVSecret(ctx context.Context, props *SecretProperties, target string) (*vault.KVSecret, error) {
	var kvSecret *vault.KVSecret
	var err error

	secretPath := props.secretPath(target)
	if props.kv2() {
		kvSecret, err = v.client.KVv2(props.MountPath).Get(ctx, secretPath)
	} else {
		kvSecret, err = v.client.KVv1(props.MountPath).Get(ctx, secretPath)
	}

	if err != nil {
		return kvSecret, fmt.Errorf("unable to read secret %s/%s: %w", props.MountPath, secretPath, err)
	}

	return kvSecret, nil
}

func wait(sleepTime time.Duration, c chan bool) {
	time.Sleep(sleepTime)
	c <- true
}

func (v *Vault) IsLoggedIn() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.isLoggedIn
}

func (v *Vault) setLoggedIn(b bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.isLoggedIn = b
}

// RenewToken logs in and keeps the token alive until doneRenew fires,
// logging in again whenever the token can no longer be renewed. A value on
// tokenLifecycle stops the current token watcher and revokes the token.
func (v *Vault) RenewToken(ctx context.Context, doneRenew, tokenLifecycle chan bool, wg *sync.WaitGroup) {
	log := zap.L().With(zap.String("vault_address", v.Parameters.Address))
	retry := make(chan bool, 1)
	defer wg.Done()
	retry <- true

	for {
		select {
		case <-doneRenew:
			log.Info("stopping renew token go routine")
			return
		case <-retry:
			vaultLoginResp, err := v.login(ctx)
			if err != nil {
				log.Error("unable to authenticate to vault", zap.Error(err))
				v.setLoggedIn(false)
				go wait(v.Parameters.LoginRetry, retry)
				continue
			}
			v.setLoggedIn(true)
			log.Info("authenticated to vault")

			stopped, tokenErr := v.manageTokenLifecycle(ctx, vaultLoginResp, tokenLifecycle)
			if tokenErr != nil {
				log.Error("unable to start managing token lifecycle", zap.Error(tokenErr))
			}
			if stopped {
				v.setLoggedIn(false)
				continue
			}
			go wait(v.Parameters.LoginRetry, retry)
		}
	}
}

// manageTokenLifecycle renews token until it expires or done fires. stopped
// is true when done fired and the token was revoked.
func (v *Vault) manageTokenLifecycle(ctx context.Context, token *vault.Secret, done chan bool) (stopped bool, err error) {
	log := zap.L()

	if token.Auth == nil || !token.Auth.Renewable {
		log.Info("token is not configured to be renewable, it is used until it expires")
		return false, nil
	}

	watcher, err := v.client.NewLifetimeWatcher(&vault.LifetimeWatcherInput{
		Secret:    token,
		Increment: token.Auth.LeaseDuration / 2,
	})
	if err != nil {
		return false, fmt.Errorf("unable to initialize new lifetime watcher for renewing auth token: %w", err)
	}

	go watcher.Start()
	defer watcher.Stop()

	for {
		select {
		case <-done:
			log.Info("stopping token watcher go routine, revoking token")
			if err := v.client.Auth().Token().RevokeSelfWithContext(ctx, v.client.Token()); err != nil {
				log.Error("unable to revoke token", zap.Error(err))
			}
			return true, nil
		// `DoneCh` will return if renewal fails, or if the remaining lease
		// duration is under a built-in threshold and either renewing is not
		// extending it or renewing is disabled.
		case err := <-watcher.DoneCh():
			if err != nil {
				log.Error("failed to renew token. re-attempting login", zap.Error(err))
				return false, nil
			}
			// This occurs once the token has reached max TTL.
			log.Info("token can no longer be renewed. re-attempting login")
			return false, nil

		case renewal := <-watcher.RenewCh():
			v.client.SetToken(renewal.Secret.Auth.ClientToken)
			log.Debug("successfully renewed vault token", zap.Int("lease_duration", renewal.Secret.Auth.LeaseDuration))
		}
	}
}
