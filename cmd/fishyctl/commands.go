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

package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/comcast/fishyctl/middleware/logging"
	"github.com/comcast/fishyctl/operations"
	"go.uber.org/zap"
	"gopkg.in/alecthomas/kingpin.v2"
)

// opCommand is a subcommand running one operation against the --target BMCs
type opCommand struct {
	cmd     *kingpin.CmdClause
	targets *[]string
	profile *string
	proxy   *string
	build   func(opts operations.Options) operations.Operation
}

func newOpCommand(app *kingpin.Application, name, help string) *opCommand {
	c := &opCommand{cmd: app.Command(name, help)}
	c.targets = c.cmd.Flag("target", "BMC address, repeat for more than one").Short('t').Required().Strings()
	c.profile = c.cmd.Flag("credential-profile", "credential profile used to log in instead of --user").Default("").Envar("CREDENTIAL_PROFILE").String()
	c.proxy = c.cmd.Flag("proxy-host", "http proxy to reach the BMCs through, instead of HTTP_PROXY/HTTPS_PROXY").Default("").Envar("BMC_PROXY_HOST").String()
	return c
}

func operationCommands(app *kingpin.Application) []*opCommand {
	var cmds []*opCommand

	{
		c := newOpCommand(app, operations.NameCreateUser, "create an account in the first free slot")
		op := operations.CreateUser{}
		c.cmd.Flag("username", "new account name").Required().StringVar(&op.Username)
		c.cmd.Flag("new-password", "new account password").Required().Envar("NEW_USER_PASSWORD").StringVar(&op.Password)
		c.cmd.Flag("authority", "Supervisor, ReadOnly or custom privileges, repeatable").StringsVar(&op.Authority)
		c.build = func(operations.Options) operations.Operation { o := op; return &o }
		cmds = append(cmds, c)
	}
	{
		c := newOpCommand(app, operations.NameDeleteUser, "clear the account with the given name")
		op := operations.DeleteUser{}
		c.cmd.Flag("username", "account name").Required().StringVar(&op.Username)
		c.build = func(operations.Options) operations.Operation { o := op; return &o }
		cmds = append(cmds, c)
	}
	{
		c := newOpCommand(app, operations.NameUpdatePassword, "change the password of an account")
		op := operations.UpdatePassword{}
		c.cmd.Flag("username", "account name").Required().StringVar(&op.Username)
		c.cmd.Flag("new-password", "new password").Required().Envar("NEW_USER_PASSWORD").StringVar(&op.NewPassword)
		c.build = func(operations.Options) operations.Operation { o := op; return &o }
		cmds = append(cmds, c)
	}
	{
		c := newOpCommand(app, operations.NameSetNTP, "configure the NTP servers of every manager")
		op := operations.SetNTP{}
		c.cmd.Flag("server", "NTP server, repeat up to 4 times").StringsVar(&op.Servers)
		c.cmd.Flag("enabled", "enable the NTP protocol").Default("true").BoolVar(&op.Enabled)
		c.build = func(operations.Options) operations.Operation { o := op; return &o }
		cmds = append(cmds, c)
	}
	{
		c := newOpCommand(app, operations.NameRestoreConfig, "restore a BMC configuration backup")
		op := operations.RestoreConfig{}
		c.cmd.Flag("passphrase", "passphrase the backup was made with").Required().Envar("BACKUP_PASSPHRASE").StringVar(&op.Passphrase)
		c.cmd.Flag("backup-file", "JSON backup file").Required().ExistingFileVar(&op.BackupFile)
		c.build = func(operations.Options) operations.Operation { o := op; return &o }
		cmds = append(cmds, c)
	}
	{
		c := newOpCommand(app, operations.NameSyncTime, "set how the BMC clock is synchronized")
		op := operations.SyncTime{}
		c.cmd.Flag("method", "SyncwithHost or SyncwithNTP").Required().EnumVar(&op.Method, "SyncwithHost", "SyncwithNTP")
		c.build = func(operations.Options) operations.Operation { o := op; return &o }
		cmds = append(cmds, c)
	}
	{
		c := newOpCommand(app, operations.NameExportFFDC, "collect FFDC service data, download it or push it to a tftp/sftp server")
		op := operations.ExportFFDC{}
		c.cmd.Flag("export-uri", "tftp:// or sftp:// destination, the archive is downloaded when empty").Default("").StringVar(&op.ExportURI)
		c.cmd.Flag("sftp-user", "sftp user").Default("").StringVar(&op.Username)
		c.cmd.Flag("sftp-password", "sftp password").Default("").Envar("SFTP_PASSWORD").StringVar(&op.Password)
		c.build = func(opts operations.Options) operations.Operation {
			o := op
			o.Poll = opts.Poll
			o.DownloadDir = opts.DownloadDir
			return &o
		}
		cmds = append(cmds, c)
	}
	{
		c := newOpCommand(app, operations.NameSystemLog, "read the system event logs")
		c.build = func(operations.Options) operations.Operation { return &operations.SystemLog{} }
		cmds = append(cmds, c)
	}

	return cmds
}

// run dispatches the operation and prints the result: a single Result for
// one target, a list of {target, result} otherwise. The exit code is 1 when
// any target failed.
func (c *opCommand) run(ctx context.Context, d *operations.Dispatcher, opts operations.Options, stdout io.Writer) int {
	ctx, stop := signal.NotifyContext(logging.WithTraceID(ctx), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log := zap.L().With(zap.String("trace_id", logging.TraceID(ctx)))

	targets := make([]operations.Target, 0, len(*c.targets))
	for _, t := range *c.targets {
		targets = append(targets, operations.Target{Address: t, Profile: *c.profile, ProxyHost: *c.proxy})
	}

	tasks, err := d.Dispatch(ctx, func() (operations.Operation, error) {
		return c.build(opts), nil
	}, targets)
	if err != nil {
		log.Error("unable to run operation", zap.String("operation", c.cmd.FullCommand()), zap.Error(err))
		return 2
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if len(tasks) == 1 {
		err = enc.Encode(tasks[0].Result)
	} else {
		err = enc.Encode(tasks)
	}
	if err != nil {
		log.Error("unable to write results", zap.Error(err))
		return 1
	}

	for _, t := range tasks {
		if !t.Result.Ret {
			return 1
		}
	}
	return 0
}
