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
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/comcast/fishyctl/oem"
	"github.com/comcast/fishyctl/redfish"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

const (
	// MaxNTPServers is the number of NTP server slots an XCC exposes
	MaxNTPServers = 4

	minPassphraseLen = 9
)

// SetNTP writes the NTP servers and protocol state of every manager.
type SetNTP struct {
	Servers []string `json:"servers"`
	Enabled bool     `json:"enabled"`
}

func (n *SetNTP) Name() string { return NameSetNTP }

func (n *SetNTP) Validate() error {
	if len(n.Servers) > MaxNTPServers {
		return fmt.Errorf("%w: at most %d ntp servers, got %d", redfish.ErrInvalidArgument, MaxNTPServers, len(n.Servers))
	}
	configured := 0
	for _, srv := range n.Servers {
		if strings.TrimSpace(srv) != "" {
			configured++
		}
	}
	if n.Enabled && configured == 0 {
		return fmt.Errorf("%w: enabling ntp needs at least one server", redfish.ErrInvalidArgument)
	}
	return nil
}

func (n *SetNTP) Execute(ctx context.Context, s *redfish.Session) (redfish.Result, error) {
	managers, err := managerURLs(ctx, s)
	if err != nil {
		return redfish.Result{}, err
	}

	servers := n.Servers
	if servers == nil {
		servers = []string{}
	}
	body, err := sjson.SetBytes([]byte(`{}`), "NTP.NTPServers", servers)
	if err == nil {
		body, err = sjson.SetBytes(body, "NTP.ProtocolEnabled", n.Enabled)
	}
	if err != nil {
		return redfish.Result{}, fmt.Errorf("error building ntp body - %w", err)
	}

	for _, m := range managers {
		proto, err := s.ResolvePath(ctx, m, "NetworkProtocol")
		if err != nil {
			return redfish.Result{}, err
		}
		if _, err := s.Apply(ctx, proto, body, true); err != nil {
			return redfish.Result{}, err
		}
		zap.L().Info("ntp servers updated", zap.String("manager", m), zap.Strings("servers", n.Servers), zap.Bool("enabled", n.Enabled))
	}
	return redfish.OK("set manager ntp servers successfully"), nil
}

// SyncTime sets how managers keep their clock, syncing right away when the
// method is NTP.
type SyncTime struct {
	Method string `json:"method"`
}

func (t *SyncTime) Name() string { return NameSyncTime }

func (t *SyncTime) Validate() error {
	switch t.Method {
	case oem.SyncWithHost, oem.SyncWithNTP:
		return nil
	}
	return fmt.Errorf("%w: sync method must be %s or %s, got %q",
		redfish.ErrInvalidArgument, oem.SyncWithHost, oem.SyncWithNTP, t.Method)
}

func (t *SyncTime) Execute(ctx context.Context, s *redfish.Session) (redfish.Result, error) {
	managers, err := managerURLs(ctx, s)
	if err != nil {
		return redfish.Result{}, err
	}

	for _, m := range managers {
		dts, err := s.ResolvePath(ctx, m, "Oem.Lenovo.DateTimeService")
		if err != nil {
			return redfish.Result{}, err
		}
		if _, err := s.Apply(ctx, dts, map[string]string{"SettingMethod": t.Method}, true); err != nil {
			return redfish.Result{}, err
		}
		if t.Method != oem.SyncWithNTP {
			continue
		}
		target, err := dts.Target(oem.ActionImmediatelySync)
		if err != nil {
			return redfish.Result{}, err
		}
		if _, err := s.Post(ctx, target, []byte(`{}`)); err != nil {
			return redfish.Result{}, err
		}
	}
	return redfish.OK(fmt.Sprintf("bmc time sync method set to %s", t.Method)), nil
}

// RestoreConfig restores a BMC configuration backup onto the first manager.
// Backup holds the JSON list the BMC exported; BackupFile is read into it
// during Validate when Backup is empty.
type RestoreConfig struct {
	Passphrase string          `json:"passphrase"`
	Backup     json.RawMessage `json:"backup"`
	BackupFile string          `json:"-"`
}

func (r *RestoreConfig) Name() string { return NameRestoreConfig }

func (r *RestoreConfig) Validate() error {
	if len(r.Passphrase) < minPassphraseLen {
		return fmt.Errorf("%w: passphrase needs at least %d characters", redfish.ErrInvalidArgument, minPassphraseLen)
	}
	if len(r.Backup) == 0 && r.BackupFile != "" {
		b, err := os.ReadFile(r.BackupFile)
		if err != nil {
			return fmt.Errorf("%w: unable to read backup file - %v", redfish.ErrInvalidArgument, err)
		}
		r.Backup = b
	}
	if len(r.Backup) == 0 {
		return fmt.Errorf("%w: a backup is required", redfish.ErrInvalidArgument)
	}
	if !gjson.ValidBytes(r.Backup) {
		return fmt.Errorf("%w: backup is not valid json", redfish.ErrInvalidArgument)
	}
	list := gjson.ParseBytes(r.Backup)
	if !list.IsArray() {
		return fmt.Errorf("%w: backup must be a json list", redfish.ErrInvalidArgument)
	}
	if len(list.Array()) == 0 {
		return fmt.Errorf("%w: backup list is empty", redfish.ErrInvalidArgument)
	}
	return nil
}

func (r *RestoreConfig) Execute(ctx context.Context, s *redfish.Session) (redfish.Result, error) {
	managers, err := managerURLs(ctx, s)
	if err != nil {
		return redfish.Result{}, err
	}

	svc, err := s.ResolvePath(ctx, managers[0], "Oem.Lenovo.Configuration")
	if err != nil {
		return redfish.Result{}, err
	}
	target, err := svc.Target(oem.ActionRestoreConfiguration)
	if err != nil {
		return redfish.Result{}, err
	}

	body, err := sjson.SetRawBytes([]byte(`{}`), "bytes", r.Backup)
	if err == nil {
		body, err = sjson.SetBytes(body, "Passphrase", r.Passphrase)
	}
	if err != nil {
		return redfish.Result{}, fmt.Errorf("error building restore body - %w", err)
	}

	if _, err := s.Post(ctx, target, body); err != nil {
		return redfish.Result{}, err
	}
	zap.L().Info("bmc configuration restored", zap.String("manager", managers[0]))
	return redfish.OK("bmc configuration restore successfully"), nil
}
