package config

import (
	"time"
)

// Interface is a named data-collection source. The set is closed: the
// eleven interfaces below are the only ones marple knows how to attach.
type Interface string

const (
	CPUSched     Interface = "cpusched"
	DiskLatency  Interface = "disklat"
	MallocStacks Interface = "mallocstacks"
	MemLeak      Interface = "memleak"
	MemTime      Interface = "memtime"
	CallStack    Interface = "callstack"
	IPC          Interface = "ipc"
	MemEvents    Interface = "memevents"
	DiskBlockRQ  Interface = "diskblockrq"
	PerfMalloc   Interface = "perf_malloc"
	Lib          Interface = "lib"
)

// Mode is a named visualization strategy for collected data.
type Mode string

const (
	Flamegraph Mode = "flamegraph"
	Treemap    Mode = "treemap"
	G2         Mode = "g2"
	Heatmap    Mode = "heatmap"
	Stackplot  Mode = "stackplot"
	TCPPlot    Mode = "tcpplot"
)

// Interfaces enumerates the known collector interfaces in presentation
// order.
func Interfaces() []Interface {
	return []Interface{
		CPUSched,
		DiskLatency,
		MallocStacks,
		MemLeak,
		MemTime,
		CallStack,
		IPC,
		MemEvents,
		DiskBlockRQ,
		PerfMalloc,
		Lib,
	}
}

// Modes enumerates the known display modes.
func Modes() []Mode {
	return []Mode{Flamegraph, Treemap, G2, Heatmap, Stackplot, TCPPlot}
}

func KnownInterface(name string) bool {
	for _, i := range Interfaces() {
		if Interface(name) == i {
			return true
		}
	}

	return false
}

func KnownMode(name string) bool {
	for _, m := range Modes() {
		if Mode(name) == m {
			return true
		}
	}

	return false
}

// General holds the run-wide collection options from the [General]
// section.
type General struct {
	Blocking  bool
	Time      time.Duration
	Frequency float64
	Scope     Scope
	Warnings  bool
}

// HeatmapParams tunes the heatmap renderer.
type HeatmapParams struct {
	FigureSize float64
	Scale      float64
	YRes       float64
	Normalised bool
}

// G2Params selects the track dimension for the g2 viewer.
type G2Params struct {
	Track string
}

const (
	TrackPid = "pid"
	TrackCpu = "cpu"
)

// StackplotParams limits the stackplot to the top N labels.
type StackplotParams struct {
	Top int
}

// TreemapParams bounds the treemap hierarchy depth.
type TreemapParams struct {
	Depth int
}

// FlamegraphParams selects the flamegraph palette.
type FlamegraphParams struct {
	Coloring string
}

// Config is the resolved, immutable process configuration. It is built
// once by Load and passed by pointer; nothing mutates it afterwards.
type Config struct {
	General General

	// Display maps each interface to its default display mode.
	Display map[Interface]Mode

	// Aliases bundle several interfaces under one name.
	Aliases map[string][]Interface

	Heatmap    HeatmapParams
	G2         G2Params
	Stackplot  StackplotParams
	Treemap    TreemapParams
	Flamegraph FlamegraphParams
}

// DefaultMode returns the configured display mode for an interface.
func (c *Config) DefaultMode(iface Interface) (Mode, bool) {
	m, ok := c.Display[iface]
	return m, ok
}

// ResolveAlias expands an alias into its interface list.
func (c *Config) ResolveAlias(name string) ([]Interface, bool) {
	ifaces, ok := c.Aliases[name]
	return ifaces, ok
}
