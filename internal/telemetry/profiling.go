package telemetry

import (
	"fmt"
	"runtime"

	"github.com/grafana/pyroscope-go"
)

// profileSpec maps a configured profile name to the Pyroscope type and any
// runtime sampling it needs switched on.
type profileSpec struct {
	kind   pyroscope.ProfileType
	enable func()
}

func mutexSampling() { runtime.SetMutexProfileFraction(5) }
func blockSampling() { runtime.SetBlockProfileRate(5) }

var profileSpecs = map[string]profileSpec{
	"cpu":            {kind: pyroscope.ProfileCPU},
	"alloc_objects":  {kind: pyroscope.ProfileAllocObjects},
	"alloc_space":    {kind: pyroscope.ProfileAllocSpace},
	"inuse_objects":  {kind: pyroscope.ProfileInuseObjects},
	"inuse_space":    {kind: pyroscope.ProfileInuseSpace},
	"goroutines":     {kind: pyroscope.ProfileGoroutines},
	"mutex_count":    {kind: pyroscope.ProfileMutexCount, enable: mutexSampling},
	"mutex_duration": {kind: pyroscope.ProfileMutexDuration, enable: mutexSampling},
	"block_count":    {kind: pyroscope.ProfileBlockCount, enable: blockSampling},
	"block_duration": {kind: pyroscope.ProfileBlockDuration, enable: blockSampling},
}

func parseProfileType(name string) (pyroscope.ProfileType, error) {
	spec, ok := profileSpecs[name]
	if !ok {
		return "", fmt.Errorf("unknown profile type: %s", name)
	}
	return spec.kind, nil
}

// InitProfiling starts Pyroscope continuous profiling. The returned function
// stops the profiler. Lock contention profiles (mutex_*, block_*) are the
// useful ones for diagnosing byte-range lock and oplock break stalls.
func InitProfiling(cfg ProfilingConfig) (func() error, error) {
	if !cfg.Enabled {
		return func() error { return nil }, nil
	}

	kinds := make([]pyroscope.ProfileType, 0, len(cfg.ProfileTypes))
	for _, name := range cfg.ProfileTypes {
		kind, err := parseProfileType(name)
		if err != nil {
			return nil, fmt.Errorf("invalid profile type %q: %w", name, err)
		}
		kinds = append(kinds, kind)
	}
	for _, name := range cfg.ProfileTypes {
		if enable := profileSpecs[name].enable; enable != nil {
			enable()
		}
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ServiceName,
		ServerAddress:   cfg.Endpoint,
		Tags:            map[string]string{"version": cfg.ServiceVersion},
		ProfileTypes:    kinds,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Pyroscope profiler: %w", err)
	}
	return profiler.Stop, nil
}
