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
	"fmt"
	"net/http"
	"testing"

	"github.com/comcast/fishyctl/redfish"
	"github.com/comcast/fishyctl/redfish/redfishtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_CreateUser_Validate(t *testing.T) {
	tests := []struct {
		name string
		op   CreateUser
		err  bool
	}{
		{name: "defaults to supervisor", op: CreateUser{Username: "ops", Password: "Passw0rd!"}},
		{name: "read only", op: CreateUser{Username: "ops", Password: "Passw0rd!", Authority: []string{"ReadOnly"}}},
		{name: "custom", op: CreateUser{Username: "ops", Password: "Passw0rd!", Authority: []string{"RemoteConsoleAccess", "AbilityClearEventLogs"}}},
		{name: "no username", op: CreateUser{Password: "Passw0rd!"}, err: true},
		{name: "no password", op: CreateUser{Username: "ops"}, err: true},
		{name: "unknown privilege", op: CreateUser{Username: "ops", Password: "x", Authority: []string{"Root"}}, err: true},
		{name: "supervisor mixed with custom", op: CreateUser{Username: "ops", Password: "x", Authority: []string{"Supervisor", "RemoteConsoleAccess"}}, err: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.op.Validate()
			if test.err {
				assert.ErrorIs(t, err, redfish.ErrInvalidArgument)
			} else {
				assert.NoError(t, err)
				assert.NotEmpty(t, test.op.Authority)
			}
		})
	}
}

func Test_CreateUser(t *testing.T) {
	tests := []struct {
		name      string
		accounts  []string
		authority []string
		slot      string
		role      string
		kind      redfish.ErrorKind
	}{
		{
			name:     "administrator in first free slot",
			accounts: []string{"USERID", "", ""},
			slot:     accountsPath + "/2",
			role:     "Administrator",
		},
		{
			name:      "read only",
			accounts:  []string{"USERID", "ops", "", ""},
			authority: []string{"ReadOnly"},
			slot:      accountsPath + "/3",
			role:      "ReadOnly",
		},
		{
			name:      "custom role follows the slot",
			accounts:  []string{"USERID", "ops", ""},
			authority: []string{"RemoteConsoleAccess", "UserAccountManagement"},
			slot:      accountsPath + "/3",
			role:      "CustomRole3",
		},
		{
			name:     "duplicate user",
			accounts: []string{"USERID", "", "newuser"},
			kind:     redfish.KindConflict,
		},
		{
			name:     "accounts full",
			accounts: []string{"USERID", "ops"},
			kind:     redfish.KindConflict,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			srv := newBMC(t, test.accounts...)
			res := runOn(srv, &CreateUser{Username: "newuser", Password: "Passw0rd!", Authority: test.authority})

			assert.Equal(t, 1, srv.Logouts())
			if test.kind != "" {
				assert.False(t, res.Ret)
				assert.Equal(t, test.kind, res.Kind)
				for i := range test.accounts {
					assert.Empty(t, patches(srv, fmt.Sprintf("%s/%d", accountsPath, i+1)))
				}
				return
			}

			require.True(t, res.Ret, res.Msg)
			account := srv.Get(test.slot)
			assert.Equal(t, "newuser", account["UserName"])
			assert.Equal(t, "Passw0rd!", account["Password"])
			assert.Equal(t, test.role, account["RoleId"])
		})
	}
}

func Test_CreateUser_CustomPrivileges(t *testing.T) {
	srv := newBMC(t, "USERID", "")
	privs := []string{"RemoteConsoleAccess", "AbilityClearEventLogs"}

	res := runOn(srv, &CreateUser{Username: "ops", Password: "Passw0rd!", Authority: privs})
	require.True(t, res.Ret, res.Msg)

	role := srv.Get(rolesPath + "/CustomRole2")
	assert.Equal(t, []interface{}{"RemoteConsoleAccess", "AbilityClearEventLogs"}, role["OemPrivileges"])

	// role first, account second
	var order []string
	for _, r := range srv.Requests() {
		if r.Method == http.MethodPatch {
			order = append(order, r.Path)
		}
	}
	assert.Equal(t, []string{rolesPath + "/CustomRole2", accountsPath + "/2"}, order)
}

func Test_CreateUser_PrivilegeAlias(t *testing.T) {
	srv := newBMC(t, "USERID", "")

	res := runOn(srv, &CreateUser{
		Username:  "ops",
		Password:  "Passw0rd!",
		Authority: []string{"RemoteConsoleAndVirtualMediaAcccess", "AbilityClearEventLogs"},
	})
	require.True(t, res.Ret, res.Msg)

	role := srv.Get(rolesPath + "/CustomRole2")
	assert.Equal(t, []interface{}{"RemoteConsoleAndVirtualMediaAccess", "AbilityClearEventLogs"}, role["OemPrivileges"])
}

func Test_CreateUser_MissingRole(t *testing.T) {
	srv := newBMC(t, "USERID", "")
	srv.Collection(rolesPath, rolesPath+"/CustomRole1")

	res := runOn(srv, &CreateUser{Username: "ops", Password: "Passw0rd!", Authority: []string{"RemoteConsoleAccess"}})
	assert.False(t, res.Ret)
	assert.Equal(t, redfish.KindNotFound, res.Kind)
	assert.Contains(t, res.Msg, "CustomRole2")
	assert.Empty(t, patches(srv, accountsPath+"/2"))
}

func Test_CreateUser_IfMatch(t *testing.T) {
	srv := newBMC(t, "USERID", "")
	slot := srv.Get(accountsPath + "/2")
	slot["@odata.etag"] = `W/"abc"`
	srv.Set(accountsPath+"/2", slot)

	res := runOn(srv, &CreateUser{Username: "ops", Password: "Passw0rd!"})
	require.True(t, res.Ret, res.Msg)

	sent := patches(srv, accountsPath+"/2")
	require.Len(t, sent, 1)
	assert.Equal(t, `W/"abc"`, sent[0].Header.Get("If-Match"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(sent[0].Body, &body))
	assert.Equal(t, map[string]string{"UserName": "ops", "Password": "Passw0rd!", "RoleId": "Administrator"}, body)
}

func Test_DeleteUser(t *testing.T) {
	srv := newBMC(t, "USERID", "ops", "dev")

	res := runOn(srv, &DeleteUser{Username: "ops"})
	require.True(t, res.Ret, res.Msg)
	assert.Equal(t, "account ops delete successfully", res.Msg)
	assert.Equal(t, "", srv.Get(accountsPath + "/2")["UserName"])
	assert.Equal(t, "dev", srv.Get(accountsPath + "/3")["UserName"])
	assert.Equal(t, 1, srv.Logouts())

	res = runOn(srv, &DeleteUser{Username: "ops"})
	assert.Equal(t, redfish.KindNotFound, res.Kind)
	assert.Contains(t, res.Msg, "account ops")

	res = runOn(srv, &DeleteUser{Username: "  "})
	assert.Equal(t, redfish.KindInvalidArgument, res.Kind)
	assert.Equal(t, 2, srv.Logins())
}

func Test_UpdatePassword(t *testing.T) {
	srv := newBMC(t, "USERID", "ops")

	res := runOn(srv, &UpdatePassword{Username: "ops", NewPassword: "N3wPassw0rd"})
	require.True(t, res.Ret, res.Msg)
	assert.Equal(t, "N3wPassw0rd", srv.Get(accountsPath + "/2")["Password"])

	res = runOn(srv, &UpdatePassword{Username: "nobody", NewPassword: "N3wPassw0rd"})
	assert.Equal(t, redfish.KindNotFound, res.Kind)

	res = runOn(srv, &UpdatePassword{Username: "ops"})
	assert.Equal(t, redfish.KindInvalidArgument, res.Kind)
}

func Test_UpdatePassword_PreconditionFailed(t *testing.T) {
	srv := newBMC(t, "USERID", "ops")
	srv.Fail(http.MethodPatch, accountsPath+"/2", http.StatusPreconditionFailed, redfishtest.ExtendedError("The ETag supplied did not match"))

	res := runOn(srv, &UpdatePassword{Username: "ops", NewPassword: "N3wPassw0rd"})
	assert.False(t, res.Ret)
	assert.Equal(t, redfish.KindPreconditionFailed, res.Kind)
	assert.Equal(t, http.StatusPreconditionFailed, res.Status)
	assert.Len(t, patches(srv, accountsPath+"/2"), 1)
	assert.Equal(t, 1, srv.Logouts())
}
