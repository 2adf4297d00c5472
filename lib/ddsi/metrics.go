package ddsi

import (
	"github.com/VictoriaMetrics/metrics"
)

// --------------------------------------------------------------------------
// Registry metrics
// --------------------------------------------------------------------------

// registryMetrics groups the counters of one registry in their own metrics.Set,
// so several registries can live in one process.
type registryMetrics struct {
	set *metrics.Set

	created     *metrics.Counter
	freed       *metrics.Counter
	registered  *metrics.Counter
	destroyed   *metrics.Counter
	payloadSize *metrics.Histogram
}

func newRegistryMetrics(prefix string, r *Registry) *registryMetrics {
	set := metrics.NewSet()
	m := &registryMetrics{
		set:         set,
		created:     set.NewCounter(prefix + "_serdata_created_total"),
		freed:       set.NewCounter(prefix + "_serdata_freed_total"),
		registered:  set.NewCounter(prefix + "_sertypes_registered_total"),
		destroyed:   set.NewCounter(prefix + "_sertypes_destroyed_total"),
		payloadSize: set.NewHistogram(prefix + "_serdata_payload_bytes"),
	}
	set.NewGauge(prefix+"_serdata_live", func() float64 {
		return float64(m.liveSerdata())
	})
	set.NewGauge(prefix+"_sertypes_live", func() float64 {
		return float64(r.byID.Size())
	})
	return m
}

func (m *registryMetrics) serdataCreated(size int) {
	m.created.Inc()
	m.payloadSize.Update(float64(size))
}

func (m *registryMetrics) serdataFreed() {
	m.freed.Inc()
}

func (m *registryMetrics) typeRegistered() {
	m.registered.Inc()
}

func (m *registryMetrics) typeDestroyed() {
	m.destroyed.Inc()
}

// liveSerdata is created minus freed, freed is read first so the result never underflows
func (m *registryMetrics) liveSerdata() uint64 {
	freed := m.freed.Get()
	created := m.created.Get()
	if created < freed {
		return 0
	}
	return created - freed
}
