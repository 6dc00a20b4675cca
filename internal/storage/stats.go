package storage

import (
	"context"

	"github.com/yndnr/lockbox-go/internal/storage/box"
	"github.com/yndnr/lockbox-go/internal/telemetry/metric"
)

// Stats describes the engine's current contents.
type Stats struct {
	State         State  `json:"-"`
	StateName     string `json:"state"`
	Version       int    `json:"version"`
	TargetVersion int    `json:"target_version"`
	Entries       int    `json:"entries"`
	Backups       int    `json:"backups"`
	LSMBytes      int64  `json:"lsm_bytes"`
	ValueLogBytes int64  `json:"value_log_bytes"`
}

type badgerStatser interface {
	Stats() box.BadgerStats
}

// Stats counts entries and backups. Disk sizes are reported for Badger
// boxes only.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	const op = "stats"

	if err := e.ready(ctx, op); err != nil {
		return Stats{}, err
	}

	st := Stats{
		State:         e.State(),
		StateName:     e.State().String(),
		Version:       e.version,
		TargetVersion: e.target,
	}

	keys, err := e.keysOf(ctx, op)
	if err != nil {
		return Stats{}, err
	}
	st.Entries = len(keys)

	if st.Backups, err = e.countBackups(ctx); err != nil {
		return Stats{}, e.fail(KindIO, op, "", err)
	}

	for _, b := range []box.Box{e.primary, e.backups} {
		if bs, ok := b.(badgerStatser); ok {
			s := bs.Stats()
			st.LSMBytes += s.LSMSize
			st.ValueLogBytes += s.ValueLogSize
		}
	}
	return st, nil
}

// Collector exposes Stats as Prometheus gauges. It reports nothing while
// the engine is not ready.
func (e *Engine) Collector() *metric.Collector {
	return metric.NewCollector(func() (metric.Sample, error) {
		st, err := e.Stats(context.Background())
		if err != nil {
			return metric.Sample{}, err
		}
		return metric.Sample{
			Entries:       st.Entries,
			Backups:       st.Backups,
			LSMBytes:      st.LSMBytes,
			ValueLogBytes: st.ValueLogBytes,
		}, nil
	})
}
