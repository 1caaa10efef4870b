/*
 * Copyright 2025 Comcast Cable Communications Management, LLC
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

package operations

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/comcast/fishyctl/credentials"
	"github.com/comcast/fishyctl/redfish"
	"github.com/comcast/fishyctl/redfish/redfishtest"
	"github.com/comcast/fishyctl/vault"
	vaultapi "github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rotatingReader hands out each password in turn
type rotatingReader struct {
	mu        sync.Mutex
	passwords []string
	reads     int
}

func (r *rotatingReader) GetKVSecret(context.Context, *vault.SecretProperties, string) (*vaultapi.KVSecret, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.passwords[r.reads%len(r.passwords)]
	r.reads++
	return &vaultapi.KVSecret{Data: map[string]interface{}{"user": testUser, "password": p}}, nil
}

func testDispatcher(creds *credentials.Store) *Dispatcher {
	return &Dispatcher{
		Config: func(address string) redfish.Config {
			return redfish.Config{BaseURL: address, RetryWait: 1}
		},
		Creds:       creds,
		Concurrency: 2,
	}
}

func Test_Dispatch(t *testing.T) {
	var targets []Target
	var servers []*redfishtest.Server
	for i := 0; i < 3; i++ {
		srv := newBMC(t, "USERID", "ops")
		servers = append(servers, srv)
		targets = append(targets, Target{Address: srv.URL})
	}
	servers[2].Fail(http.MethodPatch, accountsPath+"/2", http.StatusInternalServerError, redfishtest.ExtendedError("internal error"))

	d := testDispatcher(credentials.NewStore(credentials.Credential{User: testUser, Pass: testPass}))
	built := 0
	tasks, err := d.Dispatch(context.Background(), func() (Operation, error) {
		built++
		return &UpdatePassword{Username: "ops", NewPassword: "N3wPassw0rd"}, nil
	}, targets)
	require.NoError(t, err)
	assert.Equal(t, 3, built)

	require.Len(t, tasks, 3)
	for i, task := range tasks {
		assert.Equal(t, targets[i].Address, task.Target)
		assert.Equal(t, 1, servers[i].Logouts())
	}
	assert.True(t, tasks[0].Result.Ret)
	assert.True(t, tasks[1].Result.Ret)
	assert.Equal(t, redfish.KindAPI, tasks[2].Result.Kind)
}

func Test_Dispatch_Errors(t *testing.T) {
	d := testDispatcher(nil)

	_, err := d.Dispatch(context.Background(), func() (Operation, error) { return &SystemLog{}, nil }, nil)
	assert.ErrorIs(t, err, redfish.ErrInvalidArgument)

	bad := errors.New("bad params")
	_, err = d.Dispatch(context.Background(), func() (Operation, error) { return nil, bad }, []Target{{Address: "10.0.0.5"}})
	assert.ErrorIs(t, err, bad)

	// no credential source
	srv := newBMC(t)
	tasks, err := d.Dispatch(context.Background(), func() (Operation, error) { return &SystemLog{}, nil }, []Target{{Address: srv.URL}})
	require.NoError(t, err)
	assert.Equal(t, redfish.KindInvalidArgument, tasks[0].Result.Kind)
	assert.Equal(t, 0, srv.Logins())

	tasks, err = testDispatcher(credentials.NewStore(credentials.Credential{})).Dispatch(context.Background(),
		func() (Operation, error) { return &SystemLog{}, nil }, []Target{{Address: srv.URL, Profile: "nope"}})
	require.NoError(t, err)
	assert.Equal(t, redfish.KindInvalidArgument, tasks[0].Result.Kind)
}

func Test_Dispatch_RotatedSecret(t *testing.T) {
	srv := newBMC(t, "USERID", "ops")
	reader := &rotatingReader{passwords: []string{"stale", testPass}}
	store := credentials.NewStore(credentials.Credential{})
	store.Vault = reader
	store.AddProfile(credentials.Profile{Name: "xcc", SecretProperties: vault.SecretProperties{
		MountPath: "secret", UserField: "user", PasswordField: "password",
	}})

	tasks, err := testDispatcher(store).Dispatch(context.Background(), func() (Operation, error) {
		return &DeleteUser{Username: "ops"}, nil
	}, []Target{{Address: srv.URL, Profile: "xcc"}})
	require.NoError(t, err)
	require.True(t, tasks[0].Result.Ret, tasks[0].Result.Msg)
	assert.Equal(t, 2, reader.reads)
	assert.Equal(t, 1, srv.Logouts())

	// the refreshed credential is cached
	_, err = testDispatcher(store).Dispatch(context.Background(), func() (Operation, error) {
		return &SystemLog{}, nil
	}, []Target{{Address: srv.URL, Profile: "xcc"}})
	require.NoError(t, err)
	assert.Equal(t, 2, reader.reads)
}

func Test_Dispatch_ProxyHost(t *testing.T) {
	srv := newBMC(t)
	d := testDispatcher(credentials.NewStore(credentials.Credential{User: testUser, Pass: testPass}))

	cfg := d.config(Target{Address: srv.URL, ProxyHost: "proxy.example.com:3128"})
	assert.Equal(t, "proxy.example.com:3128", cfg.Proxy)
	assert.Equal(t, srv.URL, cfg.BaseURL)
	assert.Empty(t, d.config(Target{Address: srv.URL}).Proxy)

	tasks, err := d.Dispatch(context.Background(), func() (Operation, error) { return &SystemLog{}, nil },
		[]Target{{Address: srv.URL, ProxyHost: "http://"}})
	require.NoError(t, err)
	assert.Equal(t, redfish.KindInvalidArgument, tasks[0].Result.Kind)
	assert.Equal(t, 0, srv.Logins())
}
