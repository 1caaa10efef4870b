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

import "github.com/comcast/fishyctl/buildinfo"

type indexAppData struct {
	Info       buildinfo.BuildInfo
	Operations []string
}

const indexTmpl string = `<html>
  <head>
    <title>fishyctl agent</title>
    <style>
      .links, .build-info {
        display: flex;
      }
      h3, p {
        padding-right: 1em;
      }
      code {
        background: #eee;
        padding: 2px 4px;
      }
    </style>
  </head>
  <body>
    <h1>fishyctl agent</h1>
    <div class="build-info">
      <p><b>build date:</b> {{ .Info.Date }}</p>
      <p><b>revision:</b> {{ .Info.GitRevision }}</p>
      <p><b>version:</b> {{ .Info.GitVersion }}</p>
    </div>
    <div class="links">
      <h3><a href="info">Info</a></h3>
      <h3><a href="metrics">Metrics</a></h3>
      <h3><a href="verbosity">Verbosity</a></h3>
    </div>
    <h2>Operations</h2>
    <ul>
    {{- range .Operations }}
      <li><code>POST /operations/{{ . }}</code></li>
    {{- end }}
    </ul>
    <p>body: <code>{"target": {"address": "10.0.0.5", "profile": "xcc"}, "params": {...}}</code>
      or <code>{"targets": [...], "params": {...}}</code></p>
  </body>
</html>
`
