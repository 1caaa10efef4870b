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
	"html/template"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/comcast/fishyctl/buildinfo"
	"github.com/comcast/fishyctl/http/handlers"
	"github.com/comcast/fishyctl/logger"
	"github.com/comcast/fishyctl/middleware/logging"
	"github.com/comcast/fishyctl/middleware/muxprom"
	"github.com/comcast/fishyctl/operations"
	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/alecthomas/kingpin.v2"
)

type serveCmd struct {
	cmd  *kingpin.CmdClause
	port *string
}

func serveCommand(app *kingpin.Application) *serveCmd {
	c := &serveCmd{cmd: app.Command("serve", "run as an agent taking operations over HTTP")}
	c.port = c.cmd.Flag("port", "agent port").Default("10023").Envar("AGENT_PORT").String()
	return c
}

// newMux builds the agent routes
func newMux(d *operations.Dispatcher, opts operations.Options) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := buildinfo.JSON(w); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /operations", handlers.OperationsIndex)
	mux.HandleFunc("POST /operations/{op}", handlers.OperationHandler(&handlers.OperationConfig{
		Dispatcher: d,
		Options:    opts,
	}))

	tmplIndex := template.Must(template.New("index").Parse(indexTmpl))
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		err := tmplIndex.Execute(w, indexAppData{Info: buildinfo.Info, Operations: operations.Names()})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	mux.HandleFunc("GET /verbosity", logger.Verbosity)
	mux.HandleFunc("PUT /verbosity", logger.SetVerbosity)

	return mux
}

func (c *serveCmd) run(ctx context.Context, d *operations.Dispatcher, opts operations.Options) int {
	log := zap.L()
	var wg sync.WaitGroup

	instrumentation := muxprom.NewDefaultInstrumentation()
	wrappedmux := logging.LoggingHandler(instrumentation.Middleware(newMux(d, opts)))

	srv := &http.Server{
		Addr:    ":" + *c.port,
		Handler: wrappedmux,
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	exit := 0
	listener, err := net.Listen("tcp4", ":"+*c.port)
	if err != nil {
		log.Error("starting "+app+" agent failed", zap.Error(err))
		return 1
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("http server received an error", zap.Error(err))
			exit = 1
			signals <- syscall.SIGTERM
		}
	}()

	log.Info("started "+app+" agent", zap.String("port", *c.port))

	s := <-signals
	log.Info(s.String() + " signal caught, stopping app")
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("http server shutdown failed", zap.Error(err))
	}

	wg.Wait()
	return exit
}
