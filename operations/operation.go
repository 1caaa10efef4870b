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

// Package operations implements the BMC management tasks. Every operation
// validates its input before login and runs inside one session that is
// closed exactly once.
package operations

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/comcast/fishyctl/metrics"
	"github.com/comcast/fishyctl/middleware/logging"
	"github.com/comcast/fishyctl/redfish"
	"go.uber.org/zap"
)

// operation names, also used as CLI commands and agent routes
const (
	NameCreateUser     = "create-user"
	NameDeleteUser     = "delete-user"
	NameUpdatePassword = "update-password"
	NameSetNTP         = "set-ntp"
	NameRestoreConfig  = "restore-config"
	NameSyncTime       = "sync-time"
	NameExportFFDC     = "export-ffdc"
	NameSystemLog      = "system-log"
)

// Target is one BMC and the account used to log in to it. Without a user
// the Dispatcher resolves the account, from Profile when one is named.
// ProxyHost overrides the environment proxy for this BMC.
type Target struct {
	Address   string `json:"address"`
	User      string `json:"user,omitempty"`
	Pass      string `json:"password,omitempty"`
	Profile   string `json:"profile,omitempty"`
	ProxyHost string `json:"proxy_host,omitempty"`
}

// Operation is one BMC management task.
type Operation interface {
	Name() string
	// Validate checks the input without touching the network.
	Validate() error
	// Execute runs on an open session. The session is closed by the caller.
	Execute(ctx context.Context, s *redfish.Session) (redfish.Result, error)
}

// Options carries the process configuration some operations need
type Options struct {
	Poll        redfish.PollOptions
	DownloadDir string
}

var registry = map[string]func(Options) Operation{
	NameCreateUser:     func(Options) Operation { return &CreateUser{} },
	NameDeleteUser:     func(Options) Operation { return &DeleteUser{} },
	NameUpdatePassword: func(Options) Operation { return &UpdatePassword{} },
	NameSetNTP:         func(Options) Operation { return &SetNTP{} },
	NameRestoreConfig:  func(Options) Operation { return &RestoreConfig{} },
	NameSyncTime:       func(Options) Operation { return &SyncTime{} },
	NameExportFFDC: func(o Options) Operation {
		return &ExportFFDC{Poll: o.Poll, DownloadDir: o.DownloadDir}
	},
	NameSystemLog: func(Options) Operation { return &SystemLog{} },
}

// New returns an empty operation of the given name, ready to have its
// parameters decoded into it.
func New(name string, opts Options) (Operation, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown operation %q", redfish.ErrInvalidArgument, name)
	}
	return f(opts), nil
}

// Names lists the known operations in sorted order
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run validates op, opens a session on target, executes op and closes the
// session. It never panics and always returns a Result.
func Run(ctx context.Context, cfg redfish.Config, target Target, op Operation) redfish.Result {
	log := zap.L().With(
		zap.String("operation", op.Name()),
		zap.String("target", target.Address),
		zap.String("trace_id", logging.TraceID(ctx)),
	)
	if cfg.Observer == nil {
		cfg.Observer = metrics.Default.ObserveRequest
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = target.Address
	}

	start := time.Now()
	result := run(ctx, cfg, target, op, log)
	elapsed := time.Since(start)

	metrics.Default.ObserveOperation(op.Name(), string(result.Kind), elapsed)
	if result.Ret {
		log.Info("operation succeeded", zap.Float64("elapsed_time_sec", elapsed.Seconds()))
	} else {
		log.Error("operation failed", zap.String("error_kind", string(result.Kind)),
			zap.String("msg", result.Msg), zap.Float64("elapsed_time_sec", elapsed.Seconds()))
	}
	return result
}

func run(ctx context.Context, cfg redfish.Config, target Target, op Operation, log *zap.Logger) (result redfish.Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("operation panicked", zap.Any("panic", r), zap.Stack("stack"))
			result = redfish.Result{Ret: false, Kind: redfish.KindInternal, Msg: fmt.Sprintf("internal error - %v", r)}
		}
	}()

	if target.Address == "" {
		return redfish.Fail(fmt.Errorf("%w: BMC address is required", redfish.ErrInvalidArgument))
	}
	if err := op.Validate(); err != nil {
		return redfish.Fail(err)
	}

	s, err := redfish.Open(ctx, cfg, target.User, target.Pass)
	if err != nil {
		return redfish.Fail(err)
	}
	defer func() {
		// logout must go out even when ctx was cancelled
		if err := s.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn("unable to close session", zap.String("session", s.Location()), zap.Error(err))
		}
	}()

	res, err := op.Execute(ctx, s)
	if err != nil {
		return redfish.Fail(err)
	}
	return res
}

// managerURLs returns the members of the service root Managers collection.
func managerURLs(ctx context.Context, s *redfish.Session) ([]string, error) {
	return rootMembers(ctx, s, "Managers", "manager")
}

func rootMembers(ctx context.Context, s *redfish.Session, link, what string) ([]string, error) {
	coll, err := s.ResolvePath(ctx, redfish.ServiceRoot, link)
	if err != nil {
		return nil, err
	}
	urls, err := coll.Members()
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, &redfish.NotFoundError{Collection: coll.URL, What: what}
	}
	return urls, nil
}
