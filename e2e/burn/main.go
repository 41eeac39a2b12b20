// burn is the end-to-end test workload. It spins the CPU, churns the
// allocator and writes temp files, so every collection interface has
// something to observe.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

func main() {
	duration := flag.Duration("duration", 10*time.Second, "how long to burn")
	flag.Parse()

	deadline := time.Now().Add(*duration)

	go churnAllocator(deadline)
	go churnDisk(deadline)

	spin(deadline)
}

// spin keeps one core busy with work the compiler cannot remove.
func spin(deadline time.Time) {
	x := 1.0
	for time.Now().Before(deadline) {
		for i := 0; i < 1_000_000; i++ {
			x = math.Sqrt(x + float64(i))
		}
	}
	fmt.Fprintln(os.Stderr, "spin result:", x)
}

// churnAllocator grows and drops buffers to produce malloc and page
// allocation traffic, holding a window of them live so some survive a
// GC cycle.
func churnAllocator(deadline time.Time) {
	var window [][]byte
	for time.Now().Before(deadline) {
		window = append(window, make([]byte, 1<<20))
		if len(window) > 32 {
			window = window[1:]
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// churnDisk produces block layer traffic with small synced writes.
func churnDisk(deadline time.Time) {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("burn-%d.tmp", os.Getpid()))
	defer os.Remove(path)

	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "create:", err)
		return
	}
	defer f.Close()

	block := make([]byte, 64<<10)
	for time.Now().Before(deadline) {
		if _, err := f.Write(block); err != nil {
			return
		}
		f.Sync()
		time.Sleep(50 * time.Millisecond)
	}
}
