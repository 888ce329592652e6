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
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	dto "github.com/prometheus/client_model/go"

	"github.com/lockelide/elide/pkg/sync"
)

// Verifier checks successive snapshots of metric families for
// well-formedness: valid names, no duplicate data points, and counters
// that never decrease between snapshots.
type Verifier struct {
	mu sync.Mutex

	// lastCounterValue maps metric name and label set to the last seen
	// counter value. Protected by mu.
	lastCounterValue map[string]float64
}

// NewVerifier returns a Verifier with no history.
func NewVerifier() *Verifier {
	return &Verifier{lastCounterValue: make(map[string]float64)}
}

// checkName verifies that name is a lowercase Prometheus metric name.
func checkName(name string) error {
	if name == "" {
		return errors.New("metric has no name")
	}
	if !unicode.IsLower(rune(name[0])) {
		return fmt.Errorf("invalid initial character in prometheus metric name: %q", name)
	}
	for _, r := range name {
		if !unicode.IsLower(r) && !unicode.IsDigit(r) && r != '_' {
			return fmt.Errorf("invalid character %c in prometheus metric name %q", r, name)
		}
	}
	return nil
}

// pointKey identifies a data point by metric name and sorted labels.
func pointKey(name string, labels []*dto.LabelPair) string {
	kv := make([]string, 0, len(labels))
	for _, l := range labels {
		kv = append(kv, l.GetName()+"="+l.GetValue())
	}
	sort.Strings(kv)
	return name + "{" + strings.Join(kv, ",") + "}"
}

// Verify checks families and records their counter values for the next
// call.
func (v *Verifier) Verify(families []*dto.MetricFamily) error {
	seen := make(map[string]float64)
	for _, f := range families {
		name := f.GetName()
		if err := checkName(name); err != nil {
			return err
		}
		if f.GetType() != dto.MetricType_COUNTER {
			return fmt.Errorf("metric %q has unsupported type %v", name, f.GetType())
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if err := checkName(l.GetName()); err != nil {
					return fmt.Errorf("metric %q: label: %w", name, err)
				}
			}
			key := pointKey(name, m.GetLabel())
			if _, dup := seen[key]; dup {
				return fmt.Errorf("duplicate data point %s", key)
			}
			val := m.GetCounter().GetValue()
			if val < 0 {
				return fmt.Errorf("counter %s is negative: %v", key, val)
			}
			seen[key] = val
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for key, val := range seen {
		if last, ok := v.lastCounterValue[key]; ok && val < last {
			return fmt.Errorf("counter %s went backwards from %v to %v", key, last, val)
		}
	}
	for key, val := range seen {
		v.lastCounterValue[key] = val
	}
	return nil
}
