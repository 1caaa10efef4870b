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
	"fmt"

	"github.com/comcast/fishyctl/credentials"
	"github.com/comcast/fishyctl/pool"
	"github.com/comcast/fishyctl/redfish"
	"go.uber.org/zap"
)

// Dispatcher runs one operation against many targets, one session per
// target, at most Concurrency at a time.
type Dispatcher struct {
	// Config returns the session configuration for a BMC address
	Config      func(address string) redfish.Config
	Creds       *credentials.Store
	Concurrency int
}

// Dispatch builds one operation per target with newOp and runs them all.
// An error from newOp aborts before any target is contacted. The returned
// tasks are in target order.
func (d *Dispatcher) Dispatch(ctx context.Context, newOp func() (Operation, error), targets []Target) ([]*pool.Task, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: at least one target is required", redfish.ErrInvalidArgument)
	}

	tasks := make([]*pool.Task, 0, len(targets))
	for _, t := range targets {
		op, err := newOp()
		if err != nil {
			return nil, err
		}
		target := t
		tasks = append(tasks, pool.NewTask(target.Address, func(ctx context.Context) redfish.Result {
			return d.run(ctx, target, op)
		}))
	}

	p := pool.NewPool(tasks, d.Concurrency)
	p.Run(ctx)

	if failed := p.Failed(); failed > 0 {
		zap.L().Warn("operation failed on some targets", zap.Int("failed", failed), zap.Int("targets", len(tasks)))
	}
	return p.Results(), nil
}

func (d *Dispatcher) run(ctx context.Context, target Target, op Operation) redfish.Result {
	target, err := d.login(ctx, target)
	if err != nil {
		return redfish.Fail(err)
	}

	res := Run(ctx, d.config(target), target, op)
	if res.Kind != redfish.KindAuth || target.Profile == "" || d.Creds == nil {
		return res
	}

	// the secret may have been rotated since it was cached
	zap.L().Info("login rejected, refreshing credential", zap.String("target", target.Address),
		zap.String("profile", target.Profile))
	d.Creds.Invalidate(target.Profile, target.Address)
	target.User = ""
	if target, err = d.login(ctx, target); err != nil {
		return redfish.Fail(err)
	}
	return Run(ctx, d.config(target), target, op)
}

// login fills in the account of target when the caller gave none
func (d *Dispatcher) login(ctx context.Context, target Target) (Target, error) {
	if target.User != "" {
		return target, nil
	}
	if d.Creds == nil {
		return target, fmt.Errorf("%w: no user given for %s", redfish.ErrInvalidArgument, target.Address)
	}

	c, err := d.Creds.Resolve(ctx, target.Profile, target.Address)
	if errors.Is(err, credentials.ErrNoCredential) || errors.Is(err, credentials.ErrUnknownProfile) {
		return target, fmt.Errorf("%w: %v", redfish.ErrInvalidArgument, err)
	}
	if err != nil {
		return target, err
	}
	target.User, target.Pass = c.User, c.Pass
	return target, nil
}

func (d *Dispatcher) config(target Target) redfish.Config {
	cfg := redfish.Config{BaseURL: target.Address}
	if d.Config != nil {
		cfg = d.Config(target.Address)
	}
	if target.ProxyHost != "" {
		cfg.Proxy = target.ProxyHost
	}
	return cfg
}
