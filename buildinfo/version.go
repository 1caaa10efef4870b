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

package buildinfo

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"text/tabwriter"
)

// Unknown is reported for values not stamped at link time
const Unknown = "unknown"

// set with -ldflags "-X github.com/comcast/fishyctl/buildinfo.gitVersion=..."
var (
	gitVersion  = Unknown
	gitRevision = Unknown
	date        = Unknown

	Info BuildInfo
)

// BuildInfo describes the running binary, served on /info
type BuildInfo struct {
	Arch         string `json:"arch"`
	Compiler     string `json:"compiler"`
	Date         string `json:"build_date"`
	GitRevision  string `json:"revision"`
	GitVersion   string `json:"version"`
	GoVersion    string `json:"go_version"`
	OS           string `json:"os"`
	RaceDetector bool   `json:"race_detector"`
}

func init() {
	Info = collect(gitVersion, gitRevision, date)
}

// collect fills the values not stamped at link time from the module and vcs
// data the go command embeds, as for binaries built with go install.
func collect(version, revision, built string) BuildInfo {
	bi := BuildInfo{
		Arch:         runtime.GOARCH,
		Compiler:     runtime.Compiler,
		Date:         built,
		GitRevision:  revision,
		GitVersion:   version,
		GoVersion:    runtime.Version(),
		OS:           runtime.GOOS,
		RaceDetector: raceEnabled,
	}

	mod, ok := debug.ReadBuildInfo()
	if !ok {
		return bi
	}
	if bi.GitVersion == Unknown && mod.Main.Version != "" && mod.Main.Version != "(devel)" {
		bi.GitVersion = mod.Main.Version
	}
	for _, s := range mod.Settings {
		switch {
		case s.Key == "vcs.revision" && bi.GitRevision == Unknown:
			bi.GitRevision = s.Value
		case s.Key == "vcs.time" && bi.Date == Unknown:
			bi.Date = s.Value
		}
	}
	return bi
}

// Print writes Info as an aligned table
func Print(dest io.Writer) error {
	w := tabwriter.NewWriter(dest, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Build Date:\t%q\n", Info.Date)
	fmt.Fprintf(w, "Go ARCH:\t%q\n", Info.Arch)
	fmt.Fprintf(w, "Go Compiler:\t%q\n", Info.Compiler)
	fmt.Fprintf(w, "Go OS:\t%q\n", Info.OS)
	fmt.Fprintf(w, "Go Version:\t%q\n", Info.GoVersion)
	fmt.Fprintf(w, "Revision:\t%q\n", Info.GitRevision)
	fmt.Fprintf(w, "Race Detector:\t%v\n", Info.RaceDetector)
	fmt.Fprintf(w, "Version:\t%q\n", Info.GitVersion)
	return w.Flush()
}

// JSON writes Info as one JSON object
func JSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	return enc.Encode(Info)
}
