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

// Package prometheus exports elision statistics in the Prometheus text
// exposition format, documented at:
// https://prometheus.io/docs/instrumenting/exposition_formats/
package prometheus

import (
	"io"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/lockelide/elide/pkg/elide"
)

// DefaultPrefix is prepended to every metric name when ExportOptions does
// not name a prefix.
const DefaultPrefix = "elide_"

// Metric names, without prefix.
const (
	StartsName           = "transaction_starts_total"
	CommitsName          = "transaction_commits_total"
	AbortsName           = "transaction_aborts_total"
	LockAcquisitionsName = "lock_acquisitions_total"

	// ReasonLabel is the label carrying the abort reason on AbortsName.
	ReasonLabel = "reason"
)

// ExportOptions controls how statistics are exported.
type ExportOptions struct {
	// Prefix is prepended to metric names. Empty means DefaultPrefix.
	Prefix string

	// Labels are attached to every data point, e.g. the run mode.
	Labels map[string]string
}

func (o ExportOptions) prefix() string {
	if o.Prefix == "" {
		return DefaultPrefix
	}
	return o.Prefix
}

// labelPairs returns the constant labels plus extra, sorted by name.
func (o ExportOptions) labelPairs(extra ...string) []*dto.LabelPair {
	pairs := make([]*dto.LabelPair, 0, len(o.Labels)+len(extra)/2)
	for k, v := range o.Labels {
		pairs = append(pairs, &dto.LabelPair{Name: proto.String(k), Value: proto.String(v)})
	}
	for i := 0; i+1 < len(extra); i += 2 {
		pairs = append(pairs, &dto.LabelPair{Name: proto.String(extra[i]), Value: proto.String(extra[i+1])})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].GetName() < pairs[j].GetName() })
	return pairs
}

func counter(labels []*dto.LabelPair, v uint64) *dto.Metric {
	return &dto.Metric{
		Label:   labels,
		Counter: &dto.Counter{Value: proto.Float64(float64(v))},
	}
}

func family(name, help string, metrics ...*dto.Metric) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: metrics,
	}
}

// Families converts s into metric families, one per counter. Aborts are
// broken down by reason using ReasonLabel.
func Families(s *elide.Stats, opts ExportOptions) []*dto.MetricFamily {
	p := opts.prefix()
	aborts := make([]*dto.Metric, 0, elide.NumReasons)
	for r := elide.Reason(0); r < elide.NumReasons; r++ {
		aborts = append(aborts, counter(opts.labelPairs(ReasonLabel, r.String()), s.AbortsByReason(r)))
	}
	return []*dto.MetricFamily{
		family(p+StartsName, "Transactional attempts that were resolved.", counter(opts.labelPairs(), s.Starts())),
		family(p+CommitsName, "Critical sections that committed speculatively.", counter(opts.labelPairs(), s.Commits())),
		family(p+AbortsName, "Transactional attempts that aborted, by reason.", aborts...),
		family(p+LockAcquisitionsName, "Critical sections that ran under the fallback lock.", counter(opts.labelPairs(), s.LockAcquisitions())),
	}
}

// Write writes families to w in text format. It returns the number of
// bytes written.
func Write(w io.Writer, families []*dto.MetricFamily) (int, error) {
	total := 0
	for _, f := range families {
		n, err := expfmt.MetricFamilyToText(w, f)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteStats is shorthand for Write(w, Families(s, opts)).
func WriteStats(w io.Writer, s *elide.Stats, opts ExportOptions) (int, error) {
	return Write(w, Families(s, opts))
}
