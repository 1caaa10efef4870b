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

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/comcast/fishyctl/buildinfo"
	"github.com/comcast/fishyctl/config"
	"github.com/comcast/fishyctl/credentials"
	"github.com/comcast/fishyctl/logger"
	"github.com/comcast/fishyctl/operations"
	fishy_vault "github.com/comcast/fishyctl/vault"
	"go.uber.org/zap"
	"gopkg.in/alecthomas/kingpin.v2"
)

const (
	app = "fishyctl"
)

var (
	a                  = kingpin.New(app, "redfish BMC management for Lenovo XClarity Controllers")
	configFile         = a.Flag("config.file", "YAML file with connection and polling defaults").Default("").Envar("CONFIG_FILE").String()
	username           = a.Flag("user", "BMC static username").Default("").Envar("BMC_USERNAME").String()
	password           = a.Flag("password", "BMC static password").Default("").Envar("BMC_PASSWORD").String()
	bmcTimeout         = a.Flag("timeout", "BMC request timeout").Envar("BMC_TIMEOUT").Duration()
	bmcScheme          = a.Flag("scheme", "BMC Scheme to use when a target has none").Default("").Envar("BMC_SCHEME").String()
	insecureSkipVerify = a.Flag("insecure-skip-verify", "Skip TLS verification").Default("false").Envar("INSECURE_SKIP_VERIFY").Bool()
	retryMax           = a.Flag("retry.max", "retries of a failed BMC request").Default("-1").Envar("BMC_RETRY_MAX").Int()
	concurrency        = a.Flag("concurrency", "number of BMCs worked on at the same time").Default("0").Envar("CONCURRENCY").Int()
	pollInterval       = a.Flag("poll.interval", "time between task polls").Envar("POLL_INTERVAL").Duration()
	pollTimeout        = a.Flag("poll.timeout", "give up on a task after this long").Envar("POLL_TIMEOUT").Duration()
	downloadDir        = a.Flag("download-dir", "directory FFDC archives are saved in").Default("").Envar("DOWNLOAD_DIR").String()
	logLevel           = a.Flag("log.level", "log level verbosity").PlaceHolder("[debug|info|warn|error]").Default("info").Envar("LOG_LEVEL").String()
	logMethod          = a.Flag("log.method", "alternative method for logging in addition to the console").PlaceHolder("[file|vector]").Default("").Envar("LOG_METHOD").String()
	logFilePath        = a.Flag("log.file-path", "directory path where log files are written if log-method is file").Default("/var/log/fishyctl").Envar("LOG_FILE_PATH").String()
	logFileMaxSize     = a.Flag("log.file-max-size", "max file size in megabytes if log-method is file").Default("256").Envar("LOG_FILE_MAX_SIZE").String()
	logFileMaxBackups  = a.Flag("log.file-max-backups", "max file backups before they are rotated if log-method is file").Default("1").Envar("LOG_FILE_MAX_BACKUPS").String()
	logFileMaxAge      = a.Flag("log.file-max-age", "max file age in days before they are rotated if log-method is file").Default("1").Envar("LOG_FILE_MAX_AGE").String()
	vectorEndpoint     = a.Flag("vector.endpoint", "vector endpoint to send structured json logs to").Default("http://0.0.0.0:4444").Envar("VECTOR_ENDPOINT").String()
	vaultAddr          = a.Flag("vault.addr", "Vault instance address to get BMC credentials from").Default("https://vault.com").Envar("VAULT_ADDRESS").String()
	vaultRoleId        = a.Flag("vault.role-id", "Vault Role ID for AppRole").Default("").Envar("VAULT_ROLE_ID").String()
	vaultSecretId      = a.Flag("vault.secret-id", "Vault Secret ID for AppRole").Default("").Envar("VAULT_SECRET_ID").String()
	vaultCACert        = a.Flag("vault.ca-cert", "PEM file with the CA that signed the vault certificate").Default("").Envar("VAULT_CACERT").String()

	creds = credentials.NewStore(credentials.Credential{})
	_     = credentialsFlag()

	versionCmd = a.Command("version", "print build information")

	vault *fishy_vault.Vault
	wg    = sync.WaitGroup{}
)

func credentialsFlag() bool {
	credentials.CredentialProf(a.Flag("credentials.profiles",
		`profile(s) with all necessary parameters to obtain BMC credential from secrets backend, i.e.
  --credentials.profiles="
    profiles:
      - name: profile1
        mountPath: "kv2"
        path: "path/to/secret"
        userField: "user"
        passwordField: "password"
      ...
  "
--credentials.profiles='{"profiles":[{"name":"profile1","mountPath":"kv2","path":"path/to/secret","userField":"user","passwordField":"password"},...]}'`).
		Envar("CREDENTIALS_PROFILES"), creds)
	return true
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	ctx := context.Background()
	doneRenew := make(chan bool, 1)
	tokenLifecycle := make(chan bool, 1)

	a.HelpFlag.Short('h')
	commands := operationCommands(a)
	serve := serveCommand(a)

	cmd, err := a.Parse(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error parsing argument flags - %s\n", err.Error())
		return 2
	}

	if cmd == versionCmd.FullCommand() {
		if err := buildinfo.Print(stdout); err != nil {
			return 1
		}
		return 0
	}

	c, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 2
	}
	config.NewConfig(&c)

	if err := initLogger(cmd == serve.cmd.FullCommand()); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 2
	}
	log := zap.L()
	defer logger.Flush()

	creds.SetStatic(credentials.Credential{User: c.User, Pass: c.Pass})

	// configure vault client if vaultRoleId & vaultSecretId are set
	if *vaultRoleId != "" && *vaultSecretId != "" {
		var caCert []byte
		if *vaultCACert != "" {
			if caCert, err = os.ReadFile(*vaultCACert); err != nil {
				log.Error("unable to read vault CA certificate", zap.Error(err), zap.String("vault_ca_cert", *vaultCACert))
				return 2
			}
		}
		vault, err = fishy_vault.NewVaultAppRoleClient(
			ctx,
			fishy_vault.Parameters{
				Address:         *vaultAddr,
				ApproleRoleID:   *vaultRoleId,
				ApproleSecretID: *vaultSecretId,
				CACertBytes:     caCert,
			},
		)
		if err != nil {
			log.Error("failed initializing vault client", zap.Error(err),
				zap.String("vault_address", *vaultAddr),
				zap.String("vault_role_id", *vaultRoleId))
		} else {
			// we add this here so we can update credentials once we detect they are rotated
			creds.Vault = vault

			// start go routine to continuously renew vault token
			wg.Add(1)
			go vault.RenewToken(ctx, doneRenew, tokenLifecycle, &wg)
		}
	}
	defer func() {
		if vault == nil {
			return
		}
		if vault.IsLoggedIn() {
			// send signal to stop token watcher if we were able to successfully login
			tokenLifecycle <- true
		}
		doneRenew <- true
		wg.Wait()
	}()

	d := &operations.Dispatcher{
		Config:      c.Redfish,
		Creds:       creds,
		Concurrency: c.Concurrency,
	}
	opts := operations.Options{Poll: c.PollOptions(), DownloadDir: c.DownloadDir}

	if cmd == serve.cmd.FullCommand() {
		return serve.run(ctx, d, opts)
	}

	for _, oc := range commands {
		if cmd == oc.cmd.FullCommand() {
			if vault != nil {
				waitForVault(vault, c.BMCTimeout)
			}
			return oc.run(ctx, d, opts, stdout)
		}
	}

	log.Error("unknown command", zap.String("command", cmd))
	return 2
}

// loadConfig layers the config file and then the flags given over the
// built in defaults.
func loadConfig() (config.Config, error) {
	c := config.Defaults()
	if *configFile != "" {
		var err error
		if c, err = config.Load(*configFile, c); err != nil {
			return c, err
		}
	}

	if *username != "" {
		c.User = *username
	}
	if *password != "" {
		c.Pass = *password
	}
	if *bmcScheme != "" {
		c.BMCScheme = *bmcScheme
	}
	if *bmcTimeout > 0 {
		c.BMCTimeout = *bmcTimeout
	}
	if *insecureSkipVerify {
		c.InsecureSkipVerify = true
	}
	if *retryMax >= 0 {
		c.RetryMax = *retryMax
	}
	if *concurrency > 0 {
		c.Concurrency = *concurrency
	}
	if *pollInterval > 0 {
		c.PollInterval = *pollInterval
	}
	if *pollTimeout > 0 {
		c.PollTimeout = *pollTimeout
	}
	if *downloadDir != "" {
		c.DownloadDir = *downloadDir
	}
	return c, nil
}

// initLogger writes the console log to stdout for the agent and to stderr
// for one shot commands, which print their results on stdout.
func initLogger(agent bool) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = ""
	}

	// validate logFilePath exists and is a directory
	if *logMethod == logger.MethodFile {
		fd, err := os.Stat(*logFilePath)
		if err != nil {
			return err
		}
		if !fd.IsDir() {
			return fmt.Errorf("%s is not a directory", *logFilePath)
		}
	}

	logfileMaxSize, err := strconv.Atoi(*logFileMaxSize)
	if err != nil {
		return fmt.Errorf("error converting arg --log.file-max-size to int - %s", err.Error())
	}

	logfileMaxBackups, err := strconv.Atoi(*logFileMaxBackups)
	if err != nil {
		return fmt.Errorf("error converting arg --log.file-max-backups to int - %s", err.Error())
	}

	logfileMaxAge, err := strconv.Atoi(*logFileMaxAge)
	if err != nil {
		return fmt.Errorf("error converting arg --log.file-max-age to int - %s", err.Error())
	}

	logConfig := logger.LoggerConfig{
		LogLevel:  *logLevel,
		LogMethod: *logMethod,
		LogFile: logger.LogFile{
			Path:       *logFilePath,
			MaxSize:    logfileMaxSize,
			MaxBackups: logfileMaxBackups,
			MaxAge:     logfileMaxAge,
		},
		VectorEndpoint: *vectorEndpoint,
	}
	if !agent {
		logConfig.Output = os.Stderr
	}

	if err := logger.Initialize(app, hostname, logConfig); err != nil {
		return fmt.Errorf("error initializing logger - log_method=%s vector_endpoint=%s log_file_path=%s log_file_max_size=%d log_file_max_backups=%d log_file_max_age=%d - err=%s",
			*logMethod, *vectorEndpoint, *logFilePath, logfileMaxSize, logfileMaxBackups, logfileMaxAge, err.Error())
	}

	log := zap.L()
	switch *logMethod {
	case logger.MethodVector:
		log.Info("successfully initialized logger", zap.String("log_method", *logMethod),
			zap.String("vector_endpoint", *vectorEndpoint))
	case logger.MethodFile:
		log.Info("successfully initialized logger", zap.String("log_method", *logMethod),
			zap.String("log_file_path", *logFilePath),
			zap.Int("log_file_max_size", logfileMaxSize),
			zap.Int("log_file_max_backups", logfileMaxBackups),
			zap.Int("log_file_max_age", logfileMaxAge))
	}
	return nil
}

// waitForVault gives the first approle login up to timeout, one shot
// commands resolve credentials right away.
func waitForVault(v *fishy_vault.Vault, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for !v.IsLoggedIn() && time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}
	if !v.IsLoggedIn() {
		zap.L().Warn("not logged in to vault, credential profiles will fail", zap.String("vault_address", *vaultAddr))
	}
}
