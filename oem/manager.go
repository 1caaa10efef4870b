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

// Link is a Redfish navigation property
type Link struct {
	URL string `json:"@odata.id"`
}

// /redfish/v1/Managers/X

// Manager contains the links of a Lenovo XCC manager that BMC operations follow
type Manager struct {
	ID              string     `json:"Id"`
	Model           string     `json:"Model"`
	FirmwareVersion string     `json:"FirmwareVersion"`
	NetworkProtocol Link       `json:"NetworkProtocol"`
	Oem             OemManager `json:"Oem"`
}

type OemManager struct {
	Lenovo LenovoManager `json:"Lenovo"`
}

type LenovoManager struct {
	Configuration   Link `json:"Configuration"`
	DateTimeService Link `json:"DateTimeService"`
	ServiceData     Link `json:"ServiceData"`
}

// /redfish/v1/Managers/X/Oem/Lenovo/DateTimeService

// time sync methods accepted by LenovoDateTimeService.SettingMethod
const (
	SyncWithHost = "SyncwithHost"
	SyncWithNTP  = "SyncwithNTP"
)

// Lenovo OEM action names
const (
	ActionImmediatelySync      = "#LenovoDateTimeService.ImmediatelySync"
	ActionRestoreConfiguration = "#LenovoConfigurationService.RestoreConfiguration"
	ActionExportFFDCData       = "#LenovoServiceData.ExportFFDCData"
)

// /redfish/v1/TaskService/Tasks/X

// FFDCTask is the Oem section of a completed ExportFFDCData task
type FFDCTask struct {
	TaskState string `json:"TaskState"`
	Oem       struct {
		Lenovo struct {
			FFDCForDownloading struct {
				Path string `json:"Path"`
			} `json:"FFDCForDownloading"`
		} `json:"Lenovo"`
	} `json:"Oem"`
}

// DownloadPath returns where the BMC left the FFDC archive, empty when the
// data was pushed to an export URI instead.
func (t FFDCTask) DownloadPath() string {
	return t.Oem.Lenovo.FFDCForDownloading.Path
}
