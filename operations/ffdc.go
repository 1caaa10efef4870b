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
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/comcast/fishyctl/oem"
	"github.com/comcast/fishyctl/redfish"
	"go.uber.org/zap"
)

const dataCollectionProcessorDump = "ProcessorDump"

// ExportFFDC collects first failure data capture from every manager. With an
// ExportURI the BMC pushes the archive itself, otherwise the archive is
// downloaded into DownloadDir.
type ExportFFDC struct {
	ExportURI string `json:"export_uri"`
	Username  string `json:"sftp_user"`
	Password  string `json:"sftp_password"`

	Poll        redfish.PollOptions `json:"-"`
	DownloadDir string              `json:"-"`
}

func (f *ExportFFDC) Name() string { return NameExportFFDC }

func (f *ExportFFDC) Validate() error {
	if f.ExportURI != "" {
		u, err := url.Parse(f.ExportURI)
		if err != nil {
			return fmt.Errorf("%w: bad export uri - %v", redfish.ErrInvalidArgument, err)
		}
		switch u.Scheme {
		case "tftp":
		case "sftp":
			if f.Username == "" || f.Password == "" {
				return fmt.Errorf("%w: sftp export needs a username and password", redfish.ErrInvalidArgument)
			}
		default:
			return fmt.Errorf("%w: export uri must be sftp://... or tftp://...", redfish.ErrInvalidArgument)
		}
	}
	if err := f.Poll.Validate(); err != nil {
		return err
	}
	if f.DownloadDir == "" {
		f.DownloadDir = "."
	}
	if fi, err := os.Stat(f.DownloadDir); err != nil || !fi.IsDir() {
		return fmt.Errorf("%w: download directory %s is not usable", redfish.ErrInvalidArgument, f.DownloadDir)
	}
	return nil
}

func (f *ExportFFDC) body() map[string]interface{} {
	b := map[string]interface{}{
		"InitializationNeeded": true,
		"DataCollectionType":   dataCollectionProcessorDump,
	}
	if f.ExportURI != "" {
		b["ExportURI"] = f.ExportURI
		if strings.HasPrefix(f.ExportURI, "sftp:") {
			b["Username"] = f.Username
			b["Password"] = f.Password
		}
	}
	return b
}

func (f *ExportFFDC) Execute(ctx context.Context, s *redfish.Session) (redfish.Result, error) {
	managers, err := managerURLs(ctx, s)
	if err != nil {
		return redfish.Result{}, err
	}

	var saved []string
	for _, m := range managers {
		svc, err := s.ResolvePath(ctx, m, "Oem.Lenovo.ServiceData")
		if err != nil {
			return redfish.Result{}, err
		}
		target, err := svc.Target(oem.ActionExportFFDCData)
		if err != nil {
			return redfish.Result{}, err
		}

		zap.L().Info("collecting ffdc data, this may take a few minutes", zap.String("manager", m))
		task, err := s.RunTask(ctx, target, f.body(), f.Poll)
		if err != nil {
			return redfish.Result{}, err
		}

		var done oem.FFDCTask
		if err := task.Resource.Decode(&done); err != nil {
			return redfish.Result{}, err
		}
		p := done.DownloadPath()
		if p == "" {
			saved = append(saved, f.ExportURI)
			continue
		}

		file, err := f.download(ctx, s, p)
		if err != nil {
			return redfish.Result{}, err
		}
		saved = append(saved, file)
	}

	return redfish.OKEntries(fmt.Sprintf("The FFDC data is saved as %s", strings.Join(saved, ", ")), saved), nil
}

// download fetches the archive over a fresh session, the task session's
// token is never reused for the transfer.
func (f *ExportFFDC) download(ctx context.Context, s *redfish.Session, p string) (string, error) {
	dl, err := s.Reopen(ctx)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := dl.Close(context.WithoutCancel(ctx)); err != nil {
			zap.L().Warn("unable to close download session", zap.String("session", dl.Location()), zap.Error(err))
		}
	}()

	name := filepath.Join(f.DownloadDir, archiveName(s.BaseURL(), p))
	out, err := os.Create(name)
	if err != nil {
		return "", fmt.Errorf("error creating %s - %w", name, err)
	}
	n, err := dl.Download(ctx, p, out)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("error writing %s - %w", name, cerr)
	}
	if err != nil {
		os.Remove(name)
		return "", err
	}

	zap.L().Info("ffdc data downloaded", zap.String("file", name), zap.Int64("bytes", n))
	return name, nil
}

var unsafeFileChars = strings.NewReplacer(":", "_", "[", "", "]", "", "/", "_")

// archiveName prefixes the archive with the BMC host so archives from
// several targets sharing a download directory never collide.
func archiveName(baseURL, p string) string {
	host := baseURL
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return unsafeFileChars.Replace(host) + "_" + path.Base(p)
}
