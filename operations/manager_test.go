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
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/comcast/fishyctl/redfish"
	"github.com/comcast/fishyctl/redfish/redfishtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_SetNTP_Validate(t *testing.T) {
	tests := []struct {
		name string
		op   SetNTP
		err  bool
	}{
		{name: "four servers", op: SetNTP{Servers: []string{"a", "b", "c", "d"}, Enabled: true}},
		{name: "disable without servers", op: SetNTP{}},
		{name: "too many servers", op: SetNTP{Servers: []string{"a", "b", "c", "d", "e"}}, err: true},
		{name: "enable without servers", op: SetNTP{Servers: []string{"", " "}, Enabled: true}, err: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.op.Validate()
			if test.err {
				assert.ErrorIs(t, err, redfish.ErrInvalidArgument)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func Test_SetNTP(t *testing.T) {
	srv := newBMC(t)
	servers := []string{"0.pool.ntp.org", "1.pool.ntp.org", "", ""}

	res := runOn(srv, &SetNTP{Servers: servers, Enabled: true})
	require.True(t, res.Ret, res.Msg)

	ntp := srv.Get(networkPath)["NTP"].(map[string]interface{})
	assert.Equal(t, []interface{}{"0.pool.ntp.org", "1.pool.ntp.org", "", ""}, ntp["NTPServers"])
	assert.Equal(t, true, ntp["ProtocolEnabled"])
	assert.Equal(t, 1, srv.Logouts())
}

func Test_SetNTP_EveryManager(t *testing.T) {
	srv := newBMC(t)
	second := "/redfish/v1/Managers/2"
	srv.Collection("/redfish/v1/Managers", managerPath, second)
	srv.Set(second, redfishtest.Resource{"NetworkProtocol": map[string]string{"@odata.id": second + "/NetworkProtocol"}})
	srv.Set(second+"/NetworkProtocol", redfishtest.Resource{})

	res := runOn(srv, &SetNTP{Servers: []string{"ntp1"}, Enabled: true})
	require.True(t, res.Ret, res.Msg)
	assert.Len(t, patches(srv, networkPath), 1)
	assert.Len(t, patches(srv, second+"/NetworkProtocol"), 1)
}

func Test_SetNTP_NoManagers(t *testing.T) {
	srv := newBMC(t)
	srv.Collection("/redfish/v1/Managers")

	res := runOn(srv, &SetNTP{})
	assert.Equal(t, redfish.KindNotFound, res.Kind)
}

func Test_SyncTime(t *testing.T) {
	tests := []struct {
		name   string
		method string
		syncs  int
		kind   redfish.ErrorKind
	}{
		{name: "ntp syncs immediately", method: "SyncwithNTP", syncs: 1},
		{name: "host", method: "SyncwithHost", syncs: 0},
		{name: "bad method", method: "SyncwithGPS", kind: redfish.KindInvalidArgument},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			srv := newBMC(t)
			srv.Action(syncAction, func(body map[string]interface{}) (int, interface{}) {
				return http.StatusOK, map[string]interface{}{}
			})

			res := runOn(srv, &SyncTime{Method: test.method})
			if test.kind != "" {
				assert.Equal(t, test.kind, res.Kind)
				assert.Equal(t, 0, srv.Logins())
				return
			}
			require.True(t, res.Ret, res.Msg)
			assert.Equal(t, test.method, srv.Get(dateTimePath)["SettingMethod"])
			assert.Equal(t, test.syncs, srv.Count(http.MethodPost, syncAction))
		})
	}
}

func Test_SyncTime_MissingAction(t *testing.T) {
	srv := newBMC(t)
	srv.Set(dateTimePath, redfishtest.Resource{"SettingMethod": "SyncwithHost"})

	res := runOn(srv, &SyncTime{Method: "SyncwithNTP"})
	assert.Equal(t, redfish.KindPath, res.Kind)
	assert.Contains(t, res.Msg, "ImmediatelySync")
}

func Test_RestoreConfig_Validate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "backup.json")
	require.NoError(t, os.WriteFile(good, []byte(`[1, 2, 3]`), 0o600))
	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`[]`), 0o600))

	tests := []struct {
		name string
		op   RestoreConfig
		err  bool
	}{
		{name: "inline backup", op: RestoreConfig{Passphrase: "123456789", Backup: json.RawMessage(`[{"a":1}]`)}},
		{name: "backup file", op: RestoreConfig{Passphrase: "123456789", BackupFile: good}},
		{name: "short passphrase", op: RestoreConfig{Passphrase: "12345678", Backup: json.RawMessage(`[1]`)}, err: true},
		{name: "missing file", op: RestoreConfig{Passphrase: "123456789", BackupFile: filepath.Join(dir, "nope.json")}, err: true},
		{name: "empty list", op: RestoreConfig{Passphrase: "123456789", BackupFile: empty}, err: true},
		{name: "not a list", op: RestoreConfig{Passphrase: "123456789", Backup: json.RawMessage(`{"a":1}`)}, err: true},
		{name: "not json", op: RestoreConfig{Passphrase: "123456789", Backup: json.RawMessage(`[1,`)}, err: true},
		{name: "no backup", op: RestoreConfig{Passphrase: "123456789"}, err: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.op.Validate()
			if test.err {
				assert.ErrorIs(t, err, redfish.ErrInvalidArgument)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func Test_RestoreConfig(t *testing.T) {
	srv := newBMC(t)
	var got map[string]interface{}
	srv.Action(restoreURL, func(body map[string]interface{}) (int, interface{}) {
		got = body
		return http.StatusOK, map[string]interface{}{}
	})

	res := runOn(srv, &RestoreConfig{Passphrase: "s3cretpass", Backup: json.RawMessage(`[{"key":"value"},2]`)})
	require.True(t, res.Ret, res.Msg)
	assert.Equal(t, "s3cretpass", got["Passphrase"])
	assert.Equal(t, []interface{}{map[string]interface{}{"key": "value"}, float64(2)}, got["bytes"])
	assert.Equal(t, 1, srv.Logouts())
}

func Test_RestoreConfig_Rejected(t *testing.T) {
	srv := newBMC(t)
	srv.Action(restoreURL, func(body map[string]interface{}) (int, interface{}) {
		return http.StatusBadRequest, json.RawMessage(redfishtest.ExtendedError("The passphrase is incorrect"))
	})

	res := runOn(srv, &RestoreConfig{Passphrase: "s3cretpass", Backup: json.RawMessage(`[1]`)})
	assert.Equal(t, redfish.KindAPI, res.Kind)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Contains(t, res.Msg, "The passphrase is incorrect")
}
