package zedb

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type TypeStats struct {
	Records      int
	IndexEntries int

	// Indexes maps each index key to its number of entries.
	Indexes map[string]int

	// Sequences maps each auto-generated field to the last issued value.
	Sequences map[string]int64
}

// Stats counts records, index entries and sequence values of et. It reads
// the store piecemeal, so figures may be inconsistent under concurrent writes.
func (db *DB) Stats(ctx context.Context, et *EntityType) (TypeStats, error) {
	result := TypeStats{
		Indexes:   make(map[string]int),
		Sequences: make(map[string]int64),
	}
	keys, err := db.store.Keys(ctx, recordKeyPrefix(et))
	if err != nil {
		return result, err
	}
	result.Records = len(keys)

	for _, key := range indexKeys(et) {
		members, err := db.store.ZRange(ctx, key, 0, -1, false)
		if err != nil {
			return result, err
		}
		result.Indexes[key] = len(members)
		result.IndexEntries += len(members)
	}

	for _, f := range et.auto {
		s, found, err := db.store.Get(ctx, autoKey(et, f.name))
		if err != nil {
			return result, err
		}
		if !found {
			continue
		}
		n, err := parseInt(s)
		if err != nil {
			return result, entityErrf(et, autoKey(et, f.name), err, "decoding sequence")
		}
		result.Sequences[f.name] = n
	}
	return result, nil
}

const metricsNamespace = "zedb"

// Metrics holds the Prometheus collectors updated by DB operations. A nil
// *Metrics disables collection.
type Metrics struct {
	Saves               *prometheus.CounterVec
	Loads               *prometheus.CounterVec
	Deletes             *prometheus.CounterVec
	IndexEntriesAdded   *prometheus.CounterVec
	IndexEntriesRemoved *prometheus.CounterVec
	IndexScans          *prometheus.CounterVec
	QueryDuration       *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg, unless reg
// is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "saves_total",
			Help:      "Entity saves by outcome (saved, noop).",
		}, []string{"type", "result"}),
		Loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "loads_total",
			Help:      "Primary record loads by outcome (hit, miss).",
		}, []string{"type", "result"}),
		Deletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "deletes_total",
		}, []string{"type"}),
		IndexEntriesAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "index",
			Name:      "entries_added_total",
		}, []string{"type"}),
		IndexEntriesRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "index",
			Name:      "entries_removed_total",
		}, []string{"type"}),
		IndexScans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "index",
			Name:      "scans_total",
			Help:      "Sorted-set range scans issued by queries.",
		}, []string{"type", "index"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "query",
			Name:      "resolve_seconds",
			Help:      "Time spent resolving query identifiers.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"type"}),
	}
	if reg != nil {
		reg.MustRegister(m.Saves, m.Loads, m.Deletes, m.IndexEntriesAdded, m.IndexEntriesRemoved, m.IndexScans, m.QueryDuration)
	}
	return m
}

func (m *Metrics) saved(et *EntityType, noop bool, st indexStats) {
	if m == nil {
		return
	}
	if noop {
		m.Saves.WithLabelValues(et.name, "noop").Inc()
		return
	}
	m.Saves.WithLabelValues(et.name, "saved").Inc()
	m.indexChanged(et, st)
}

func (m *Metrics) deleted(et *EntityType, st indexStats) {
	if m == nil {
		return
	}
	m.Deletes.WithLabelValues(et.name).Inc()
	m.indexChanged(et, st)
}

func (m *Metrics) indexChanged(et *EntityType, st indexStats) {
	if st.added > 0 {
		m.IndexEntriesAdded.WithLabelValues(et.name).Add(float64(st.added))
	}
	if st.removed > 0 {
		m.IndexEntriesRemoved.WithLabelValues(et.name).Add(float64(st.removed))
	}
}

func (m *Metrics) loaded(et *EntityType, found bool) {
	if m == nil {
		return
	}
	if found {
		m.Loads.WithLabelValues(et.name, "hit").Inc()
	} else {
		m.Loads.WithLabelValues(et.name, "miss").Inc()
	}
}

func (m *Metrics) scanned(et *EntityType, index string) {
	if m == nil {
		return
	}
	m.IndexScans.WithLabelValues(et.name, index).Inc()
}

func (m *Metrics) queried(et *EntityType, start time.Time) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(et.name).Observe(time.Since(start).Seconds())
}
