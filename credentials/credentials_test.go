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

package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/comcast/fishyctl/vault"
	vaultapi "github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/alecthomas/kingpin.v2"
)

type fakeReader struct {
	data    map[string]interface{}
	err     error
	targets []string
}

func (f *fakeReader) GetKVSecret(_ context.Context, props *vault.SecretProperties, target string) (*vaultapi.KVSecret, error) {
	f.targets = append(f.targets, props.MountPath+":"+target)
	if f.err != nil {
		return nil, f.err
	}
	return &vaultapi.KVSecret{Data: f.data}, nil
}

const profiles = `
profiles:
  - name: lenovo
    mountPath: kv2
    path: bmc
    userField: user
    passwordField: password
  - name: shared
    mountPath: secret
    secretName: bmc-shared
    userName: USERID
    passwordField: password
`

func Test_Resolve_Static(t *testing.T) {
	s := NewStore(Credential{User: "USERID", Pass: "PASSW0RD"})
	c, err := s.Resolve(context.Background(), "", "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, &Credential{User: "USERID", Pass: "PASSW0RD"}, c)

	empty := NewStore(Credential{})
	_, err = empty.Resolve(context.Background(), "", "10.0.0.5")
	assert.ErrorIs(t, err, ErrNoCredential)

	empty.SetStatic(Credential{User: "admin", Pass: "x"})
	c, err = empty.Resolve(context.Background(), "", "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, "admin", c.User)
}

func Test_Resolve_Profile(t *testing.T) {
	reader := &fakeReader{data: map[string]interface{}{"user": "admin", "password": "hunter22"}}
	s := NewStore(Credential{})
	s.Vault = reader
	require.NoError(t, s.ParseProfiles(profiles))
	ctx := context.Background()

	c, err := s.Resolve(ctx, "lenovo", "https://10.0.0.5:8443")
	require.NoError(t, err)
	assert.Equal(t, &Credential{User: "admin", Pass: "hunter22"}, c)

	// cached until invalidated
	_, err = s.Resolve(ctx, "lenovo", "https://10.0.0.5:8443")
	require.NoError(t, err)
	assert.Equal(t, []string{"kv2:10.0.0.5"}, reader.targets)

	s.Invalidate("lenovo", "https://10.0.0.5:8443")
	_, err = s.Resolve(ctx, "lenovo", "https://10.0.0.5:8443")
	require.NoError(t, err)
	assert.Len(t, reader.targets, 2)

	c, err = s.Resolve(ctx, "shared", "10.0.0.6")
	require.NoError(t, err)
	assert.Equal(t, &Credential{User: "USERID", Pass: "hunter22"}, c)

	_, err = s.Resolve(ctx, "dell", "10.0.0.6")
	assert.ErrorIs(t, err, ErrUnknownProfile)
}

func Test_Resolve_Errors(t *testing.T) {
	tests := []struct {
		name   string
		reader SecretReader
		errMsg string
	}{
		{name: "no vault", errMsg: "vault client not configured"},
		{name: "vault error", reader: &fakeReader{err: errors.New("permission denied")}, errMsg: "permission denied"},
		{name: "empty secret", reader: &fakeReader{}, errMsg: "is empty"},
		{name: "missing password", reader: &fakeReader{data: map[string]interface{}{"user": "admin"}}, errMsg: `"password"`},
		{name: "missing user", reader: &fakeReader{data: map[string]interface{}{"password": "x"}}, errMsg: `"user"`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := NewStore(Credential{})
			s.Vault = test.reader
			require.NoError(t, s.ParseProfiles(profiles))

			_, err := s.Resolve(context.Background(), "lenovo", "10.0.0.5")
			assert.ErrorContains(t, err, test.errMsg)
		})
	}
}

func Test_ParseProfiles(t *testing.T) {
	s := NewStore(Credential{})
	assert.Error(t, s.ParseProfiles("profiles: [name"))
	assert.ErrorContains(t, s.ParseProfiles(`{"profiles": [{"name": "x"}]}`), "mountPath")
	assert.NoError(t, s.ParseProfiles(`{"profiles": [{"name": "x", "mountPath": "secret", "passwordField": "p"}]}`))
}

func Test_CredentialProf(t *testing.T) {
	s := NewStore(Credential{})
	app := kingpin.New("test", "")
	CredentialProf(app.Flag("credentials.profiles", ""), s)

	_, err := app.Parse([]string{"--credentials.profiles", profiles})
	require.NoError(t, err)
	assert.Contains(t, s.profiles, "lenovo")
	assert.Contains(t, s.profiles, "shared")
}
