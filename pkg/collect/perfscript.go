package collect

import (
	"strconv"
	"strings"
)

// unknownFrame is the marker perf script prints for addresses it
// cannot symbolize.
const unknownFrame = "[unknown]"

// perfSample is one stack sample from perf script output. Addrs holds
// the raw instruction pointer of each frame, parallel to Stack.
type perfSample struct {
	Pid   int32
	Tid   int32
	Cpu   int32
	Ts    float64
	Stack []string
	Addrs []uint64
}

// parsePerfScript feeds every sample in a perf script stream to emit.
// The default output interleaves a header line per sample with an
// indented frame block:
//
//	comm 1234/1235 [002] 123456.789987: 250000 cycles:
//	        ffffffff8104f45a native_write_msr_safe ([kernel.kallsyms])
//	        ...
//
// A blank line ends the sample. Frames stay innermost first, the order
// perf prints them.
func parsePerfScript(lines <-chan string, emit func(perfSample)) {
	var current perfSample
	inSample := false

	flush := func() {
		if inSample {
			emit(current)
		}
		inSample = false
	}

	for line := range lines {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}

		if isIndented(line) {
			if addr, frame, ok := parsePerfFrame(line); ok && inSample {
				current.Stack = append(current.Stack, frame)
				current.Addrs = append(current.Addrs, addr)
			}
			continue
		}

		flush()
		if header, ok := parsePerfHeader(line); ok {
			current = header
			inSample = true
		}
	}
	flush()
}

func isIndented(line string) bool {
	return len(line) > 0 && (line[0] == ' ' || line[0] == '\t')
}

// parsePerfHeader walks the header fields from the left looking for
// the timestamp, since the leading comm may itself contain spaces.
func parsePerfHeader(line string) (perfSample, bool) {
	fields := strings.Fields(line)

	for i := 1; i < len(fields); i++ {
		ts, err := strconv.ParseFloat(strings.TrimSuffix(fields[i], ":"), 64)
		if err != nil || !strings.HasSuffix(fields[i], ":") || !strings.Contains(fields[i], ".") {
			continue
		}

		sample := perfSample{Pid: -1, Tid: -1, Cpu: -1, Ts: ts}

		// Walk back over "[cpu]" and "pid/tid" or "tid".
		j := i - 1
		if j >= 0 && strings.HasPrefix(fields[j], "[") {
			if cpu, err := strconv.ParseInt(strings.Trim(fields[j], "[]"), 10, 32); err == nil {
				sample.Cpu = int32(cpu)
			}
			j--
		}
		if j >= 1 {
			pid, tid, ok := parsePidTid(fields[j])
			if !ok {
				return perfSample{}, false
			}
			sample.Pid, sample.Tid = pid, tid
		}

		return sample, true
	}

	return perfSample{}, false
}

func parsePidTid(field string) (int32, int32, bool) {
	if pidStr, tidStr, found := strings.Cut(field, "/"); found {
		pid, err1 := strconv.ParseInt(pidStr, 10, 32)
		tid, err2 := strconv.ParseInt(tidStr, 10, 32)
		if err1 != nil || err2 != nil {
			return 0, 0, false
		}

		return int32(pid), int32(tid), true
	}

	tid, err := strconv.ParseInt(field, 10, 32)
	if err != nil {
		return 0, 0, false
	}

	return int32(tid), int32(tid), true
}

// parsePerfFrame reads "addr symbol (module)" keeping the symbol and
// the raw instruction pointer, so unknown frames can be retried
// against the target's own symbol table.
func parsePerfFrame(line string) (uint64, string, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, "", false
	}

	end := len(fields)
	if strings.HasPrefix(fields[end-1], "(") {
		end--
	}
	if end < 2 {
		return 0, "", false
	}

	addr, _ := strconv.ParseUint(fields[0], 16, 64)

	symbol := strings.Join(fields[1:end], " ")
	if idx := strings.LastIndexByte(symbol, '+'); idx > 0 {
		symbol = symbol[:idx]
	}

	return addr, symbol, true
}
