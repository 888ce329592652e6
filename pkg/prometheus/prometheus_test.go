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

package prometheus

import (
	"bytes"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/lockelide/elide/pkg/elide"
	"github.com/lockelide/elide/pkg/htm"
)

// runStats produces stats from a real guard run: one conflict abort, one
// capacity abort, then a fallback.
func runStats(t *testing.T) elide.Stats {
	t.Helper()
	var (
		mu    elide.FallbackLock
		stats elide.Stats
	)
	e := htm.NewEmulator(htm.AbortConflict|htm.AbortRetry, htm.AbortCapacity)
	elide.Do(elide.Options{MaxRetries: 2, Lock: &mu, Stats: &stats, HTM: e}, func(*elide.Guard) {})
	return stats
}

func TestWriteParses(t *testing.T) {
	stats := runStats(t)
	var buf bytes.Buffer
	n, err := WriteStats(&buf, &stats, ExportOptions{Labels: map[string]string{"mode": "emulated"}})
	if err != nil {
		t.Fatalf("WriteStats failed: %v", err)
	}
	if n != buf.Len() {
		t.Errorf("WriteStats returned %d bytes, buffer has %d", n, buf.Len())
	}

	parsed, err := (&expfmt.TextParser{}).TextToMetricFamilies(&buf)
	if err != nil {
		t.Fatalf("cannot parse output: %v", err)
	}

	for _, tc := range []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{DefaultPrefix + StartsName, map[string]string{"mode": "emulated"}, 2},
		{DefaultPrefix + CommitsName, map[string]string{"mode": "emulated"}, 0},
		{DefaultPrefix + LockAcquisitionsName, map[string]string{"mode": "emulated"}, 1},
		{DefaultPrefix + AbortsName, map[string]string{"mode": "emulated", ReasonLabel: "conflict"}, 1},
		{DefaultPrefix + AbortsName, map[string]string{"mode": "emulated", ReasonLabel: "capacity"}, 1},
		{DefaultPrefix + AbortsName, map[string]string{"mode": "emulated", ReasonLabel: "lock_taken"}, 0},
	} {
		got, err := lookup(parsed, tc.name, tc.labels)
		if err != nil {
			t.Errorf("%s%v: %v", tc.name, tc.labels, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s%v got %v want %v", tc.name, tc.labels, got, tc.want)
		}
	}
}

func lookup(parsed map[string]*dto.MetricFamily, name string, want map[string]string) (float64, error) {
	f, ok := parsed[name]
	if !ok {
		return 0, errNotFound(name)
	}
	for _, m := range f.GetMetric() {
		if len(m.GetLabel()) != len(want) {
			continue
		}
		match := true
		for _, l := range m.GetLabel() {
			if want[l.GetName()] != l.GetValue() {
				match = false
				break
			}
		}
		if match {
			return m.GetCounter().GetValue(), nil
		}
	}
	return 0, errNotFound(name)
}

type errNotFound string

func (e errNotFound) Error() string { return "no matching data point for " + string(e) }

func TestPrefix(t *testing.T) {
	var stats elide.Stats
	for _, f := range Families(&stats, ExportOptions{Prefix: "bench_"}) {
		if !strings.HasPrefix(f.GetName(), "bench_") {
			t.Errorf("family %q does not carry prefix", f.GetName())
		}
	}
}

func TestVerifier(t *testing.T) {
	v := NewVerifier()
	stats := runStats(t)
	if err := v.Verify(Families(&stats, ExportOptions{})); err != nil {
		t.Fatalf("Verify of first snapshot failed: %v", err)
	}
	more := elide.Merge(stats, stats)
	if err := v.Verify(Families(&more, ExportOptions{})); err != nil {
		t.Fatalf("Verify of growing snapshot failed: %v", err)
	}
	var zero elide.Stats
	if err := v.Verify(Families(&zero, ExportOptions{})); err == nil {
		t.Fatalf("Verify accepted counters going backwards")
	}
}

func TestVerifierRejects(t *testing.T) {
	for _, tc := range []struct {
		name string
		fams []*dto.MetricFamily
	}{
		{
			name: "uppercase name",
			fams: []*dto.MetricFamily{family("Elide_starts", "", counter(nil, 1))},
		},
		{
			name: "bad label",
			fams: []*dto.MetricFamily{family("elide_starts", "", counter(
				[]*dto.LabelPair{{Name: proto.String("Bad-Label"), Value: proto.String("x")}}, 1))},
		},
		{
			name: "duplicate point",
			fams: []*dto.MetricFamily{family("elide_starts", "", counter(nil, 1), counter(nil, 2))},
		},
		{
			name: "gauge",
			fams: []*dto.MetricFamily{{
				Name:   proto.String("elide_starts"),
				Type:   dto.MetricType_GAUGE.Enum(),
				Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(1)}}},
			}},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if err := NewVerifier().Verify(tc.fams); err == nil {
				t.Errorf("Verify accepted %s", tc.name)
			}
		})
	}
}
