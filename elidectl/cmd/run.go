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
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/lockelide/elide/elidectl/config"
	"github.com/lockelide/elide/pkg/cleanup"
	"github.com/lockelide/elide/pkg/elide"
	"github.com/lockelide/elide/pkg/htm"
	"github.com/lockelide/elide/pkg/log"
)

// Run implements subcommands.Command for the "run" command.
type Run struct{}

// Name implements subcommands.Command.Name.
func (*Run) Name() string {
	return "run"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Run) Synopsis() string {
	return "run the slot-increment workload under elided locks and print statistics"
}

// Usage implements subcommands.Command.Usage.
func (*Run) Usage() string {
	return `run [flags]

Starts --threads workers for each of --repetitions rounds. In every round
each worker runs one critical section that busy-works --work iterations and
then increments every slot of a shared array. After each round every slot
must equal the number of workers. Statistics of all workers are aggregated
and printed in --format.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Run) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Run) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	w := &workload{
		threads:     conf.Threads,
		repetitions: conf.Repetitions,
		work:        conf.Work,
		maxRetries:  conf.MaxRetries,
		pinCPUs:     conf.PinCPUs,
		htm:         capability(conf.Mode),
	}
	stats, err := w.run(ctx)
	if err != nil {
		return Errorf("run failed: %v", err)
	}
	if err := writeStats(os.Stdout, conf.Format, conf.Mode, stats); err != nil {
		return Errorf("writing statistics: %v", err)
	}
	return subcommands.ExitSuccess
}

// workload is the slot-increment scenario.
type workload struct {
	threads     int
	repetitions int
	work        int
	maxRetries  int
	pinCPUs     bool
	htm         htm.Capability

	mu    elide.FallbackLock
	slots []int

	// inside is set while a worker is in its critical section.
	inside bool

	// sink keeps the busy-work loop from being optimized away.
	sink int
}

// run executes all repetitions and returns the statistics of each worker.
// It fails on the first round that loses an update.
func (w *workload) run(ctx context.Context) ([]elide.Stats, error) {
	var cpus []int
	if w.pinCPUs {
		var err error
		if cpus, err = allowedCPUs(); err != nil {
			return nil, err
		}
	}

	stats := make([]elide.Stats, w.threads)
	w.slots = make([]int, w.threads)
	for rep := 0; rep < w.repetitions; rep++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		clear(w.slots)

		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < w.threads; i++ {
			i := i
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				cpu := -1
				if len(cpus) > 0 {
					cpu = cpus[i%len(cpus)]
				}
				return w.worker(i, cpu, &stats[i])
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("repetition %d: %w", rep, err)
		}
		for k, n := range w.slots {
			if n != w.threads {
				return nil, fmt.Errorf("repetition %d: synchronization error, slot %d got %d want %d", rep, k, n, w.threads)
			}
		}
	}
	return stats, nil
}

// worker runs one critical section, pinned to cpu if cpu >= 0.
func (w *workload) worker(id, cpu int, stats *elide.Stats) error {
	if cpu >= 0 {
		cu, err := pinThread(cpu)
		if err != nil {
			return fmt.Errorf("pinning worker %d to CPU %d: %w", id, cpu, err)
		}
		defer cu.Clean()
		log.Debugf("Worker %d on thread %d pinned to CPU %d", id, unix.Gettid(), cpu)
	}

	overlapped := false
	elide.Do(elide.Options{MaxRetries: w.maxRetries, Lock: &w.mu, Stats: stats, HTM: w.htm}, func(*elide.Guard) {
		if w.inside {
			overlapped = true
		}
		w.inside = true
		x := 0
		for k := 0; k < w.work; k++ {
			x += k
		}
		w.sink = x
		for k := range w.slots {
			w.slots[k]++
		}
		w.inside = false
	})
	if overlapped {
		return fmt.Errorf("worker %d entered an occupied critical section", id)
	}
	return nil
}

// pinThread wires the calling goroutine to its thread and restricts that
// thread to cpu. The returned Cleanup restores the thread's previous
// affinity and only then unwires it, so no pinned thread returns to the
// runtime's pool. If the restore fails the thread stays wired and exits
// together with its goroutine.
func pinThread(cpu int) (cleanup.Cleanup, error) {
	runtime.LockOSThread()
	var orig unix.CPUSet
	if err := unix.SchedGetaffinity(0, &orig); err != nil {
		runtime.UnlockOSThread()
		return cleanup.Cleanup{}, fmt.Errorf("reading thread affinity: %w", err)
	}
	var set unix.CPUSet
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		runtime.UnlockOSThread()
		return cleanup.Cleanup{}, err
	}
	return cleanup.Make(func() {
		if err := unix.SchedSetaffinity(0, &orig); err != nil {
			log.Warningf("Restoring affinity of thread %d: %v", unix.Gettid(), err)
			return
		}
		runtime.UnlockOSThread()
	}), nil
}

// allowedCPUs returns the CPUs this process may run on.
func allowedCPUs() ([]int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, fmt.Errorf("reading CPU affinity: %w", err)
	}
	var cpus []int
	for cpu := 0; len(cpus) < set.Count(); cpu++ {
		if set.IsSet(cpu) {
			cpus = append(cpus, cpu)
		}
	}
	return cpus, nil
}
