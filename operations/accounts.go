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
	"strconv"
	"strings"

	"github.com/comcast/fishyctl/oem"
	"github.com/comcast/fishyctl/redfish"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

// CreateUser fills the first free account slot with a new user.
//
// Authority ["Supervisor"] maps to the Administrator role and ["ReadOnly"] to
// the ReadOnly role. Any other list is a set of OEM privileges written onto
// the slot's CustomRole<N> before the account itself is written. The two
// writes are not atomic: if the account write fails the custom role keeps
// its new privileges.
type CreateUser struct {
	Username  string   `json:"username"`
	Password  string   `json:"password"`
	Authority []string `json:"authority"`
}

func (c *CreateUser) Name() string { return NameCreateUser }

func (c *CreateUser) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return fmt.Errorf("%w: username is required", redfish.ErrInvalidArgument)
	}
	if c.Password == "" {
		return fmt.Errorf("%w: password is required", redfish.ErrInvalidArgument)
	}
	if len(c.Authority) == 0 {
		c.Authority = []string{oem.AuthoritySupervisor}
	}
	if _, custom := c.role(0); !custom {
		return nil
	}
	privs := make([]string, 0, len(c.Authority))
	for _, a := range c.Authority {
		if alias, ok := oem.PrivilegeAliases[a]; ok {
			a = alias
		}
		if !oem.Privileges[a] {
			return fmt.Errorf("%w: unknown authority %q", redfish.ErrInvalidArgument, a)
		}
		privs = append(privs, a)
	}
	c.Authority = privs
	return nil
}

// role returns the role the account at 1-based slot gets.
func (c *CreateUser) role(slot int) (string, bool) {
	if len(c.Authority) == 1 {
		switch c.Authority[0] {
		case oem.AuthoritySupervisor:
			return oem.RoleAdministrator, false
		case oem.AuthorityReadOnly:
			return oem.RoleReadOnly, false
		}
	}
	return oem.CustomRolePrefix + strconv.Itoa(slot), true
}

func (c *CreateUser) Execute(ctx context.Context, s *redfish.Session) (redfish.Result, error) {
	log := zap.L()

	svc, err := s.ResolvePath(ctx, redfish.ServiceRoot, "AccountService")
	if err != nil {
		return redfish.Result{}, err
	}
	accountsURL, err := svc.Link("Accounts")
	if err != nil {
		return redfish.Result{}, err
	}

	// every account is checked for a duplicate, the first empty one is kept
	var free *redfish.Resource
	slot := 0
	err = s.ScanMembers(ctx, accountsURL, func(i int, account *redfish.Resource) (bool, error) {
		name := account.String("UserName")
		if name == c.Username {
			return true, fmt.Errorf("%w: username %s already exists", redfish.ErrConflict, c.Username)
		}
		if name == "" && free == nil {
			free = account
			slot = i + 1
		}
		return false, nil
	})
	if err != nil {
		return redfish.Result{}, err
	}
	if free == nil {
		return redfish.Result{}, fmt.Errorf("%w: accounts are full, can't create a new account", redfish.ErrConflict)
	}

	role, custom := c.role(slot)
	if custom {
		if err := c.setPrivileges(ctx, s, svc, role); err != nil {
			return redfish.Result{}, err
		}
	}

	body, err := sjson.SetBytes([]byte(`{}`), "UserName", c.Username)
	if err == nil {
		body, err = sjson.SetBytes(body, "Password", c.Password)
	}
	if err == nil {
		body, err = sjson.SetBytes(body, "RoleId", role)
	}
	if err != nil {
		return redfish.Result{}, fmt.Errorf("error building account body - %w", err)
	}

	if _, err := s.Apply(ctx, free, body, true); err != nil {
		return redfish.Result{}, err
	}

	log.Info("bmc user created", zap.String("user", c.Username), zap.String("account", free.URL), zap.String("role", role))
	return redfish.OK(fmt.Sprintf("create new user %s successful, account slot %d, role %s", c.Username, slot, role)), nil
}

func (c *CreateUser) setPrivileges(ctx context.Context, s *redfish.Session, svc *redfish.Resource, role string) error {
	rolesURL, err := svc.Link("Roles")
	if err != nil {
		return err
	}
	res, _, err := s.FindMember(ctx, rolesURL, redfish.FieldEquals("Name", role))
	if err != nil {
		var nf *redfish.NotFoundError
		if errors.As(err, &nf) {
			nf.What = "role " + role
		}
		return err
	}

	body, err := sjson.SetBytes([]byte(`{}`), "OemPrivileges", c.Authority)
	if err != nil {
		return fmt.Errorf("error building role body - %w", err)
	}
	_, err = s.Apply(ctx, res, body, true)
	return err
}

// DeleteUser frees the account slot holding Username.
type DeleteUser struct {
	Username string `json:"username"`
}

func (d *DeleteUser) Name() string { return NameDeleteUser }

func (d *DeleteUser) Validate() error {
	if strings.TrimSpace(d.Username) == "" {
		return fmt.Errorf("%w: username is required", redfish.ErrInvalidArgument)
	}
	return nil
}

func (d *DeleteUser) Execute(ctx context.Context, s *redfish.Session) (redfish.Result, error) {
	account, err := findAccount(ctx, s, d.Username)
	if err != nil {
		return redfish.Result{}, err
	}
	if _, err := s.Apply(ctx, account, map[string]string{"UserName": ""}, true); err != nil {
		return redfish.Result{}, err
	}
	return redfish.OK(fmt.Sprintf("account %s delete successfully", d.Username)), nil
}

// UpdatePassword sets a new password on an existing account.
type UpdatePassword struct {
	Username    string `json:"username"`
	NewPassword string `json:"new_password"`
}

func (u *UpdatePassword) Name() string { return NameUpdatePassword }

func (u *UpdatePassword) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return fmt.Errorf("%w: username is required", redfish.ErrInvalidArgument)
	}
	if u.NewPassword == "" {
		return fmt.Errorf("%w: new password is required", redfish.ErrInvalidArgument)
	}
	return nil
}

func (u *UpdatePassword) Execute(ctx context.Context, s *redfish.Session) (redfish.Result, error) {
	account, err := findAccount(ctx, s, u.Username)
	if err != nil {
		return redfish.Result{}, err
	}
	if _, err := s.Apply(ctx, account, map[string]string{"Password": u.NewPassword}, true); err != nil {
		return redfish.Result{}, err
	}
	return redfish.OK(fmt.Sprintf("the BMC user %s password is successfully updated", u.Username)), nil
}

func findAccount(ctx context.Context, s *redfish.Session, username string) (*redfish.Resource, error) {
	svc, err := s.ResolvePath(ctx, redfish.ServiceRoot, "AccountService")
	if err != nil {
		return nil, err
	}
	accountsURL, err := svc.Link("Accounts")
	if err != nil {
		return nil, err
	}
	account, _, err := s.FindMember(ctx, accountsURL, redfish.FieldEquals("UserName", username))
	if err != nil {
		var nf *redfish.NotFoundError
		if errors.As(err, &nf) {
			nf.What = "account " + username
		}
		return nil, err
	}
	return account, nil
}
