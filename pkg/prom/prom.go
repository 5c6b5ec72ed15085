package prom

import (
	"sync"
	"time"

	xhttp "github.com/nimasrn/debt-ledger/pkg/http"
	"github.com/nimasrn/debt-ledger/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const (
	SystemLedger    = "ledger"
	SystemProcessor = "processor"
)

const (
	MetricDebtsRegistered    = "debts_registered_total"
	MetricPaymentsRegistered = "payments_registered_total"
	MetricStatusOverrides    = "status_overrides_total"
	MetricOperationErrors    = "operation_errors_total"
	MetricOperationDuration  = "operation_duration_seconds"
	MetricEventsProcessed    = "events_processed_total"
	MetricStreamPending      = "stream_pending_messages"
)

var lockCreateMetricLock = &sync.Mutex{}
var namespace = "none"

var MetricSystemEnabled = false

// Registerer receives every metric created by this package.
var Registerer prometheus.Registerer = prometheus.DefaultRegisterer

var MetricCollectionCounters = make(map[string]prometheus.Counter)
var MetricCollectionCounterVec = make(map[string]*prometheus.CounterVec)
var MetricCollectionGaugeVec = make(map[string]*prometheus.GaugeVec)
var MetricCollectionHistogramVec = make(map[string]*prometheus.HistogramVec)

var defaultLabels prometheus.Labels

func Create(host string, env string, nameSpace string) error {
	defaultLabels = make(prometheus.Labels)
	defaultLabels["env"] = env
	defaultLabels["instance"] = host
	namespace = nameSpace
	MetricSystemEnabled = true

	var err error
	hasError := func(e error) {
		if err == nil && e != nil {
			err = e
		}
	}

	hasError(createCounter(SystemLedger, MetricDebtsRegistered))
	hasError(createCounterVec(SystemLedger, MetricPaymentsRegistered, []string{"payment_type", "status"}))
	hasError(createCounterVec(SystemLedger, MetricStatusOverrides, []string{"status"}))
	hasError(createCounterVec(SystemLedger, MetricOperationErrors, []string{"operation"}))
	hasError(createHistogramVec(SystemLedger, MetricOperationDuration, []string{"operation"}))
	hasError(createCounterVec(SystemProcessor, MetricEventsProcessed, []string{"topic", "result"}))
	hasError(createGaugeVec(SystemProcessor, MetricStreamPending, []string{"stream"}))

	return err
}

func ListenAndServer(port string, url string) {
	hh := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	s := xhttp.CreateServer()
	s.GET(url, hh)
	logger.Info("[metrics-server] listening...", "url", url)
	if err := s.ListenAndServe(port); err != nil {
		logger.Panic("[metrics-server] http listen error", "error", err)
	}
}

func createCounter(subsystem, name string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	MetricCollectionCounters[subsystem+name] = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		ConstLabels: defaultLabels,
	})
	return Registerer.Register(MetricCollectionCounters[subsystem+name])
}

func createCounterVec(subsystem, name string, labels []string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	MetricCollectionCounterVec[subsystem+name] = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		ConstLabels: defaultLabels,
	}, labels)
	return Registerer.Register(MetricCollectionCounterVec[subsystem+name])
}

func createHistogramVec(subsystem, name string, labels []string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	MetricCollectionHistogramVec[subsystem+name] = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		ConstLabels: defaultLabels,
	}, labels)
	return Registerer.Register(MetricCollectionHistogramVec[subsystem+name])
}

func createGaugeVec(subsystem, name string, labels []string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()

	MetricCollectionGaugeVec[subsystem+name] = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		ConstLabels: defaultLabels,
	}, labels)
	return Registerer.Register(MetricCollectionGaugeVec[subsystem+name])
}

func IncCounter(subsystem, name string) {
	AddCounter(subsystem, name, 1)
}

func AddCounter(subsystem, name string, number float64) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionCounters[subsystem+name]; ok {
		v.Add(number)
		return
	}
	logger.Warn("[metrics-server] counter not found", "subsystem", subsystem, "name", name)
}

func SetGaugeVec(subsystem, name string, num float64, labelValues ...string) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionGaugeVec[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Set(num)
		return
	}
	logger.Warn("[metrics-server] gauge not found", "subsystem", subsystem, "name", name)
}

func AddCounterVec(subsystem, name string, num float64, labelValues ...string) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionCounterVec[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Add(num)
		return
	}
	logger.Warn("[metrics-server] counter vec not found", "subsystem", subsystem, "name", name)
}

func IncCounterVec(subsystem, name string, labelValues ...string) {
	AddCounterVec(subsystem, name, 1, labelValues...)
}

func AddHistogramVec(subsystem, name string, number float64, labelValues ...string) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionHistogramVec[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Observe(number)
		return
	}
	logger.Warn("[metrics-server] histogram vec not found", "subsystem", subsystem, "name", name)
}

// ObserveLedgerOperation records the latency of a ledger operation and counts
// it as failed when err is non-nil.
func ObserveLedgerOperation(operation string, started time.Time, err error) {
	AddHistogramVec(SystemLedger, MetricOperationDuration, time.Since(started).Seconds(), operation)
	if err != nil {
		IncCounterVec(SystemLedger, MetricOperationErrors, operation)
	}
}

func IncDebtRegistered() {
	IncCounter(SystemLedger, MetricDebtsRegistered)
}

func IncPaymentRegistered(paymentType, status string) {
	IncCounterVec(SystemLedger, MetricPaymentsRegistered, paymentType, status)
}

func IncStatusOverride(status string) {
	IncCounterVec(SystemLedger, MetricStatusOverrides, status)
}

func IncEventProcessed(topic, result string) {
	IncCounterVec(SystemProcessor, MetricEventsProcessed, topic, result)
}

// SetStreamPending reports how many delivered but unacked messages a stream
// holds.
func SetStreamPending(stream string, pending int64) {
	SetGaugeVec(SystemProcessor, MetricStreamPending, float64(pending), stream)
}
