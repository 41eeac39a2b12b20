package output

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"
)

// PrintRight rewrites the current terminal line with text aligned to
// the right edge.
func PrintRight(text string) {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		width = 80
	}

	padding := width - len(text)
	if padding < 0 {
		padding = 0
	}

	fmt.Printf("\r%s%s", spaces(padding), text)
}

func spaces(n int) string {
	return fmt.Sprintf("%*s", n, "")
}

func ProgressBar(percent int, width int) string {
	if percent > 100 {
		percent = 100
	}
	filled := (percent * width) / 100

	return fmt.Sprintf("%s%s",
		strings.Repeat("█", filled),
		strings.Repeat(" ", width-filled),
	)
}

// StatusBar repaints with printF at the refresh rate until the context
// ends.
func StatusBar(ctx context.Context, refreshRate time.Duration, printF func()) {
	ticker := time.NewTicker(refreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			printF()
		case <-ctx.Done():
			return
		}
	}
}

// PrettyCollectStatus renders the one-line collection status: how far
// the run window has progressed, how many sources are armed, and how
// records are flowing.
func PrettyCollectStatus(elapsed, total time.Duration, interfaces, buffered, failures int) string {
	percent := 0
	if total > 0 {
		percent = int(elapsed * 100 / total)
	}

	return fmt.Sprintf("\r%-60s %-18s %-18s %s",
		fmt.Sprintf("Collecting: [%s] %3d%%", ProgressBar(percent, 40), percent),
		fmt.Sprintf("Interfaces: %d", interfaces),
		fmt.Sprintf("Records: %d", buffered),
		fmt.Sprintf("Failures: %d", failures),
	)
}
