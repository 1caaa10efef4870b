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

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "fishyctl"

	labelOperation = "operation"
	labelResult    = "result"
	labelMethod    = "method"
	labelCode      = "code"

	resultSuccess = "success"
)

// Metrics holds the collectors for BMC operations and the Redfish calls they make
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
}

// Default is registered with the prometheus default registerer and served on /metrics
var Default = New(prometheus.DefaultRegisterer)

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Number of BMC operations run, by outcome. result is success or the error kind",
		}, []string{labelOperation, labelResult}),

		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Histogram of BMC operation duration, login to logout",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{labelOperation}),

		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redfish",
			Name:      "requests_total",
			Help:      "Number of redfish api calls made. code is 0 when no response was received",
		}, []string{labelMethod, labelCode}),

		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "redfish",
			Name:      "request_duration_seconds",
			Help:      "Histogram of redfish api call duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{labelMethod}),
	}

	reg.MustRegister(
		m.operationsTotal,
		m.operationDuration,
		m.requestsTotal,
		m.requestDuration,
	)
	return m
}

// ObserveOperation records one finished operation. An empty kind means it succeeded.
func (m *Metrics) ObserveOperation(operation, kind string, elapsed time.Duration) {
	result := kind
	if result == "" {
		result = resultSuccess
	}
	m.operationsTotal.WithLabelValues(operation, result).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveRequest records one redfish api call.
func (m *Metrics) ObserveRequest(method string, status int, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}
