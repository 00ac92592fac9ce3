package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	browseTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediabrowse_browse_total",
		Help: "Browse requests by media source domain and outcome",
	}, []string{"domain", "outcome"}) // outcome=success|failure

	resolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediabrowse_resolve_total",
		Help: "Resolve requests by media source domain and outcome",
	}, []string{"domain", "outcome"})

	dlnaConnectTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediabrowse_dlna_connect_total",
		Help: "Connection attempts to DLNA media servers by outcome",
	}, []string{"outcome"})

	dlnaDisconnectTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediabrowse_dlna_disconnect_total",
		Help: "Disconnections from DLNA media servers",
	})

	dlnaSources = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediabrowse_dlna_sources",
		Help: "Registered DLNA media server sources",
	})

	ssdpNotifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediabrowse_ssdp_notifications_total",
		Help: "SSDP notifications received by change type",
	}, []string{"change"}) // change=alive|byebye|update
)

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func domainLabel(domain string) string {
	if domain == "" {
		return "root"
	}
	return domain
}

func ObserveBrowse(domain string, err error) {
	browseTotal.WithLabelValues(domainLabel(domain), outcome(err)).Inc()
}

func ObserveResolve(domain string, err error) {
	resolveTotal.WithLabelValues(domainLabel(domain), outcome(err)).Inc()
}

func ObserveDLNAConnect(err error) {
	dlnaConnectTotal.WithLabelValues(outcome(err)).Inc()
}

func IncDLNADisconnect() {
	dlnaDisconnectTotal.Inc()
}

func SetDLNASources(n int) {
	dlnaSources.Set(float64(n))
}

func IncSSDPNotification(change string) {
	ssdpNotifications.WithLabelValues(change).Inc()
}
