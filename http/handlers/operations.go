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

package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/comcast/fishyctl/middleware/logging"
	"github.com/comcast/fishyctl/operations"
	"github.com/comcast/fishyctl/redfish"
	"go.uber.org/zap"
)

// restore-config backups travel inline, leave room for them
const maxBodyBytes = 16 << 20

// OperationConfig holds configuration for the operation handler
type OperationConfig struct {
	Dispatcher *operations.Dispatcher
	Options    operations.Options
}

// OperationRequest is the body of POST /operations/{op}. Exactly one of
// Target and Targets is set.
type OperationRequest struct {
	Target  *operations.Target  `json:"target,omitempty"`
	Targets []operations.Target `json:"targets,omitempty"`
	Params  json.RawMessage     `json:"params,omitempty"`
}

// OperationHandler handles POST /operations/{op} requests. A single target
// gets its Result back, a target list gets one {target, result} per target.
// Operation failures are reported in the results with a 200, only a request
// that cannot run at all gets an error status.
func OperationHandler(cfg *OperationConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := zap.L().With(zap.String("trace_id", logging.TraceID(ctx)))
		name := r.PathValue("op")

		var req OperationRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err := dec.Decode(&req); err != nil {
			log.Error("unable to decode operation request", zap.String("operation", name), zap.Error(err))
			writeResult(w, http.StatusBadRequest, redfish.Fail(fmt.Errorf("%w: bad request body - %v", redfish.ErrInvalidArgument, err)))
			return
		}

		targets := req.Targets
		if req.Target != nil {
			if len(targets) > 0 {
				writeResult(w, http.StatusBadRequest, redfish.Fail(fmt.Errorf("%w: 'target' and 'targets' are exclusive", redfish.ErrInvalidArgument)))
				return
			}
			targets = []operations.Target{*req.Target}
		}

		newOp := func() (operations.Operation, error) {
			op, err := operations.New(name, cfg.Options)
			if err != nil {
				return nil, err
			}
			if len(req.Params) > 0 {
				pd := json.NewDecoder(bytes.NewReader(req.Params))
				pd.DisallowUnknownFields()
				if err := pd.Decode(op); err != nil {
					return nil, fmt.Errorf("%w: bad params for %s - %v", redfish.ErrInvalidArgument, name, err)
				}
			}
			return op, nil
		}

		// reject bad input once instead of once per target
		op, err := newOp()
		if err == nil {
			err = op.Validate()
		}
		if err != nil {
			log.Error("invalid operation request", zap.String("operation", name), zap.Error(err))
			writeResult(w, http.StatusBadRequest, redfish.Fail(err))
			return
		}

		log.Info("started operation", zap.String("operation", name), zap.Int("targets", len(targets)))
		tasks, err := cfg.Dispatcher.Dispatch(ctx, newOp, targets)
		if err != nil {
			writeResult(w, http.StatusBadRequest, redfish.Fail(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		if req.Target != nil {
			err = enc.Encode(tasks[0].Result)
		} else {
			err = enc.Encode(tasks)
		}
		if err != nil {
			log.Error("unable to write operation response", zap.String("operation", name), zap.Error(err))
		}
	}
}

// OperationsIndex handles GET /operations and lists the operation names
func OperationsIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string][]string{"operations": operations.Names()})
}

func writeResult(w http.ResponseWriter, status int, res redfish.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(res)
}
