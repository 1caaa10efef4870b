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

package oem

// /redfish/v1/Systems/X/LogServices/X/Entries

// LogEntry is one system event log record
type LogEntry struct {
	Name     string `json:"Name"`
	Message  string `json:"Message"`
	Created  string `json:"Created"`
	Severity string `json:"Severity"`
}

// /redfish/v1/AccountService/Accounts/X

// Account is a BMC user slot. An empty UserName marks a free slot.
type Account struct {
	ID       string `json:"Id"`
	UserName string `json:"UserName"`
	RoleID   string `json:"RoleId"`
	Enabled  bool   `json:"Enabled"`
}

// predefined roles and the authorities that map onto them
const (
	AuthoritySupervisor = "Supervisor"
	AuthorityReadOnly   = "ReadOnly"

	RoleAdministrator = "Administrator"
	RoleReadOnly      = "ReadOnly"

	// CustomRolePrefix is followed by the 1-based account slot number
	CustomRolePrefix = "CustomRole"
)

// Privileges is the closed list of OemPrivileges a custom role may carry.
var Privileges = map[string]bool{
	"UserAccountManagement":                      true,
	"RemoteConsoleAccess":                        true,
	"RemoteConsoleAndVirtualMediaAccess":         true,
	"RemoteServerPowerRestartAccess":             true,
	"AbilityClearEventLogs":                      true,
	"AdapterConfiguration_Basic":                 true,
	"AdapterConfiguration_NetworkingAndSecurity": true,
	"AdapterConfiguration_Advanced":              true,
}

// PrivilegeAliases maps spellings accepted on input to the privilege sent
// to the BMC. Older tooling spelled the virtual media access with three c's.
var PrivilegeAliases = map[string]string{
	"RemoteConsoleAndVirtualMediaAcccess": "RemoteConsoleAndVirtualMediaAccess",
}
