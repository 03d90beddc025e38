// Package metrics holds the Prometheus counters of the boot flow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry collects every bootstd metric. It is separate from the default
// registry so a dump holds only boot flow data.
var Registry = prometheus.NewRegistry()

var (
	storageDevicesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bootstd_storage_devices_total",
			Help: "Block devices returned by the storage enumerator, by class.",
		},
		[]string{"class"},
	)
	bootdevsBoundTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bootstd_bootdevs_bound_total",
			Help: "Bootdevs bound by hunters, by uclass.",
		},
		[]string{"uclass"},
	)
	bootflowCandidatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bootstd_bootflow_candidates_total",
			Help: "Bootflow candidates examined by the iterator, by bootmeth and result.",
		},
		[]string{"method", "result"},
	)
	bootAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bootstd_boot_attempts_total",
			Help: "Boot attempts, by bootmeth and result.",
		},
		[]string{"method", "result"},
	)
	abSelectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bootstd_ab_selections_total",
			Help: "A/B slot selections, by chosen slot.",
		},
		[]string{"slot"},
	)
	abResetsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bootstd_ab_control_resets_total",
			Help: "Control blocks reset to the default record after a CRC mismatch.",
		},
	)
)

func init() {
	Registry.MustRegister(storageDevicesTotal)
	Registry.MustRegister(bootdevsBoundTotal)
	Registry.MustRegister(bootflowCandidatesTotal)
	Registry.MustRegister(bootAttemptsTotal)
	Registry.MustRegister(abSelectionsTotal)
	Registry.MustRegister(abResetsTotal)
}

// Result labels
const (
	ResultOK   = "ok"
	ResultFail = "fail"
)

func result(err error) string {
	if err != nil {
		return ResultFail
	}
	return ResultOK
}

func IncStorageDevice(class string) { storageDevicesTotal.WithLabelValues(class).Inc() }
func IncBootdevBound(uclass string) { bootdevsBoundTotal.WithLabelValues(uclass).Inc() }
func IncABSelection(slot string)    { abSelectionsTotal.WithLabelValues(slot).Inc() }
func IncABReset()                   { abResetsTotal.Inc() }

func IncCandidate(method string, err error) {
	bootflowCandidatesTotal.WithLabelValues(method, result(err)).Inc()
}

func IncBootAttempt(method string, err error) {
	bootAttemptsTotal.WithLabelValues(method, result(err)).Inc()
}

// WriteTextfile dumps the registry in the text exposition format, for the
// node exporter textfile collector
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
