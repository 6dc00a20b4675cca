package command

import (
	"context"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/lockbox-go/internal/infra/buildinfo"
)

// StatusCommand shows the store's location, schema and key state.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show store status",
		Action: runStatus,
	}
}

type statusView struct {
	DataDir       string `json:"data_dir"`
	InMemory      bool   `json:"in_memory" table:"wide"`
	State         string `json:"state"`
	Version       int    `json:"version"`
	TargetVersion int    `json:"target_version"`
	LatestVersion int    `json:"latest_version" table:"wide"`
	KeyVersion    int    `json:"key_version"`
	Fingerprint   string `json:"key_fingerprint"`
	VaultDir      string `json:"vault_dir" table:"wide"`
	VaultSealed   bool   `json:"vault_sealed"`
	Entries       int    `json:"entries"`
	Backups       int    `json:"backups"`
	LSMBytes      int64  `json:"lsm_bytes" table:"bytes"`
	ValueLogBytes int64  `json:"value_log_bytes" table:"bytes"`
}

func runStatus(c *cli.Context) error {
	return withSession(c, func(ctx context.Context, s *session) error {
		st, err := s.engine.Stats(ctx)
		if err != nil {
			return err
		}

		view := statusView{
			DataDir:       s.location(),
			InMemory:      s.cfg.Storage.InMemory,
			State:         st.StateName,
			Version:       st.Version,
			TargetVersion: st.TargetVersion,
			LatestVersion: Migrations().Latest(),
			KeyVersion:    s.keys.KeyVersion(),
			Fingerprint:   s.keys.Fingerprint(),
			VaultDir:      s.cfg.VaultDir(),
			Entries:       st.Entries,
			Backups:       st.Backups,
			LSMBytes:      st.LSMBytes,
			ValueLogBytes: st.ValueLogBytes,
		}
		if v, ok := s.vault.(interface{ Sealed() bool }); ok {
			view.VaultSealed = v.Sealed()
		}
		return s.print(view)
	})
}

// StatsCommand prints the storage metrics gathered during this run plus the
// engine's content gauges.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Show storage metrics",
		Action: runStats,
	}
}

type metricRow struct {
	Name   string  `json:"name"`
	Labels string  `json:"labels,omitempty"`
	Value  float64 `json:"value"`
}

func runStats(c *cli.Context) error {
	return withSession(c, func(ctx context.Context, s *session) error {
		if err := s.registry.Register(s.engine.Collector()); err != nil {
			return err
		}
		families, err := s.registry.Gather()
		if err != nil {
			return err
		}

		var rows []metricRow
		for _, mf := range families {
			for _, m := range mf.GetMetric() {
				var pairs []string
				for _, lp := range m.GetLabel() {
					pairs = append(pairs, lp.GetName()+"="+lp.GetValue())
				}
				sort.Strings(pairs)
				labels := strings.Join(pairs, ",")

				switch {
				case m.GetCounter() != nil:
					rows = append(rows, metricRow{mf.GetName(), labels, m.GetCounter().GetValue()})
				case m.GetGauge() != nil:
					rows = append(rows, metricRow{mf.GetName(), labels, m.GetGauge().GetValue()})
				case m.GetHistogram() != nil:
					h := m.GetHistogram()
					rows = append(rows,
						metricRow{mf.GetName() + "_count", labels, float64(h.GetSampleCount())},
						metricRow{mf.GetName() + "_sum", labels, h.GetSampleSum()},
					)
				}
			}
		}
		return s.print(rows)
	})
}

// VersionCommand prints build information.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show build information",
		Action: func(c *cli.Context) error {
			return ParseGlobalFlags(c).Formatter().Format(stdout(c), buildinfo.Get())
		},
	}
}

// location describes where the store lives.
func (s *session) location() string {
	if s.cfg.Storage.InMemory {
		return "memory"
	}
	return s.cfg.Storage.DataDir
}
