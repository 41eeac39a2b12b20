package collect

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

// libcCandidates covers where mainstream distributions install the C
// library.
var libcCandidates = []string{
	"/lib/x86_64-linux-gnu/libc.so.6",
	"/usr/lib/x86_64-linux-gnu/libc.so.6",
	"/lib/aarch64-linux-gnu/libc.so.6",
	"/usr/lib/aarch64-linux-gnu/libc.so.6",
	"/lib64/libc.so.6",
	"/usr/lib64/libc.so.6",
	"/lib/libc.so.6",
	"/usr/lib/libc.so.6",
}

func libcPath() (string, error) {
	for _, path := range libcCandidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", errors.Errorf("libc not found, tried %s", strings.Join(libcCandidates, ", "))
}
