// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/lockelide/elide/elidectl/config"
	"github.com/lockelide/elide/pkg/elide"
	"github.com/lockelide/elide/pkg/prometheus"
)

// statsJSON is the JSON form of elide.Stats.
type statsJSON struct {
	Starts           uint64            `json:"starts"`
	Commits          uint64            `json:"commits"`
	Aborts           uint64            `json:"aborts"`
	LockAcquisitions uint64            `json:"lock_acquisitions"`
	AbortsByReason   map[string]uint64 `json:"aborts_by_reason"`
}

func newStatsJSON(s *elide.Stats) statsJSON {
	j := statsJSON{
		Starts:           s.Starts(),
		Commits:          s.Commits(),
		Aborts:           s.Aborts(),
		LockAcquisitions: s.LockAcquisitions(),
		AbortsByReason:   make(map[string]uint64, elide.NumReasons),
	}
	for r := elide.Reason(0); r < elide.NumReasons; r++ {
		j.AbortsByReason[r.String()] = s.AbortsByReason(r)
	}
	return j
}

// report is the JSON output of the run command.
type report struct {
	Mode    string      `json:"mode"`
	Total   statsJSON   `json:"total"`
	Workers []statsJSON `json:"workers"`
}

// writeStats aggregates per-worker statistics and writes them to w.
func writeStats(w io.Writer, format config.Format, mode config.Mode, workers []elide.Stats) error {
	total := elide.Aggregate(workers)
	switch format {
	case config.FormatJSON:
		r := report{Mode: mode.String(), Total: newStatsJSON(&total)}
		for i := range workers {
			r.Workers = append(r.Workers, newStatsJSON(&workers[i]))
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(&r)

	case config.FormatPrometheus:
		families := prometheus.Families(&total, prometheus.ExportOptions{
			Labels: map[string]string{"mode": mode.String()},
		})
		if err := prometheus.NewVerifier().Verify(families); err != nil {
			return fmt.Errorf("invalid metrics: %w", err)
		}
		_, err := prometheus.Write(w, families)
		return err

	default:
		if _, err := fmt.Fprintf(w, "Mode: %s, workers: %d\n", mode, len(workers)); err != nil {
			return err
		}
		_, err := total.WriteTo(w)
		return err
	}
}
