package kernel

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var ErrNotSupported = errors.New("kernel too old for this interface")

// Release returns the running kernel release string (uname -r).
func Release() (string, error) {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return "", errors.Wrap(err, "error reading uname")
	}

	return string(uname.Release[:clen(uname.Release[:])]), nil
}

// Compare compares two kernel release strings on their numeric
// major.minor.patch prefix. It returns -1 when a is older than b,
// 0 when equal and 1 when newer. Suffixes past the third component
// (flavour, build tags) are ignored.
func Compare(a, b string) int {
	av := parseRelease(a)
	bv := parseRelease(b)
	for i := 0; i < 3; i++ {
		if av[i] != bv[i] {
			if av[i] < bv[i] {
				return -1
			}
			return 1
		}
	}

	return 0
}

// Check fails with ErrNotSupported when the running kernel is older
// than the required release.
func Check(required string) error {
	release, err := Release()
	if err != nil {
		return err
	}
	if Compare(release, required) < 0 {
		return errors.Wrapf(ErrNotSupported, "running %s, need %s", release, required)
	}

	return nil
}

// parseRelease splits a release string like "6.8.0-52-generic" into its
// first three numeric components.
func parseRelease(release string) [3]int {
	var out [3]int
	parts := strings.FieldsFunc(release, func(r rune) bool {
		return r == '.' || r == '-'
	})
	for i := 0; i < 3 && i < len(parts); i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			break
		}
		out[i] = n
	}

	return out
}

func clen(b []byte) int {
	for i := range b {
		if b[i] == 0 {
			return i
		}
	}

	return len(b)
}
