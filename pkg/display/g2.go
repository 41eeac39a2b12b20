package display

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/ensoft/marple/pkg/config"
	"github.com/ensoft/marple/pkg/stream"
)

// CPEL layout constants. Every multi-byte field is big-endian; the
// first header byte carries the endianness flag in its top bit (clear
// for big-endian) and the format version below it.
const (
	cpelVersion    = 1
	cpelStrtabName = "FileStrtab"

	cpelSectionStrings   = 1
	cpelSectionEventDefs = 3
	cpelSectionTrackDefs = 4
	cpelSectionEvents    = 5

	cpelTicksPerMicrosecond = 1000000

	// Width of the table name field opening every section body.
	cpelNameLen = 64
)

// G2 writes the CPEL event file the g2 viewer loads: a string table,
// event type and track definitions, and one timestamped event per
// record on the track named by its pid or cpu.
type G2 struct {
	params config.G2Params
}

func NewG2(params config.G2Params) *G2 {
	return &G2{params: params}
}

func (g *G2) Mode() config.Mode { return config.G2 }

func (g *G2) Ext() string { return "cpel" }

func (g *G2) Render(view *stream.Stream, w io.Writer) error {
	if view.Empty() {
		return errors.Wrap(ErrRender, "empty event stream")
	}

	out := bufio.NewWriter(w)
	if err := newCpelFile(g.params.Track, view).writeTo(out); err != nil {
		return err
	}

	return errors.Wrap(out.Flush(), "writing cpel file")
}

// cpelEvent is one event section entry with every field already
// resolved to a table index or string offset.
type cpelEvent struct {
	ts    int64
	track uint32
	code  uint32
	datum uint32
}

// cpelFile accumulates the interned strings, definition tables and
// events of one CPEL file before the sections are written linearly.
type cpelFile struct {
	strings []string
	offsets map[string]uint32
	strLen  uint32

	eventDefs []string
	eventIdx  map[string]uint32
	trackDefs []string
	trackIdx  map[string]uint32

	events []cpelEvent
}

func newCpelFile(track string, view *stream.Stream) *cpelFile {
	f := &cpelFile{
		offsets:  make(map[string]uint32),
		eventIdx: make(map[string]uint32),
		trackIdx: make(map[string]uint32),
	}

	// The table's own name opens the string table, followed by the
	// datum format every event definition shares.
	f.offsets[cpelStrtabName] = 0
	f.strings = append(f.strings, cpelStrtabName)
	f.strLen = uint32(len(cpelStrtabName))
	f.intern("%s")

	for _, rec := range view.Records {
		f.add(track, rec)
	}

	return f
}

// intern adds a string to the table and returns its offset. Entries
// after the first are NUL-separated, and offsets point past the
// separator.
func (f *cpelFile) intern(s string) uint32 {
	if off, ok := f.offsets[s]; ok {
		return off
	}

	off := f.strLen + 1
	f.offsets[s] = off
	f.strings = append(f.strings, s)
	f.strLen += uint32(len(s)) + 1

	return off
}

func (f *cpelFile) add(track string, rec stream.Record) {
	trackName := trackLabel(track, rec)
	typeName := rec.Label()
	if typeName == "" {
		typeName = string(rec.Kind)
	}
	datum := formatValue(rec.Value)

	f.intern(datum)
	f.intern(trackName)
	f.intern(typeName)

	code, ok := f.eventIdx[typeName]
	if !ok {
		code = uint32(len(f.eventDefs))
		f.eventIdx[typeName] = code
		f.eventDefs = append(f.eventDefs, typeName)
	}

	id, ok := f.trackIdx[trackName]
	if !ok {
		id = uint32(len(f.trackDefs))
		f.trackIdx[trackName] = id
		f.trackDefs = append(f.trackDefs, trackName)
	}

	ts := rec.Ts
	if ts < 0 {
		ts = 0
	}
	f.events = append(f.events, cpelEvent{
		ts:    ts,
		track: id,
		code:  code,
		datum: f.offsets[datum],
	})
}

// trackLabel names the track a record belongs to. The router has
// already verified the dimension is attributed.
func trackLabel(track string, rec stream.Record) string {
	if track == config.TrackCpu {
		return fmt.Sprintf("cpu %d", rec.Cpu)
	}

	return fmt.Sprintf("pid %d", rec.Pid)
}

func (f *cpelFile) writeTo(w io.Writer) error {
	cw := &cpelWriter{w: w}

	// File header: flag-and-version byte, one pad byte, section count,
	// write date in epoch seconds.
	cw.write(uint8(cpelVersion))
	cw.write(uint8(0))
	cw.write(uint16(4))
	cw.write(uint32(time.Now().Unix()))

	f.writeStrings(cw)
	f.writeEventDefs(cw)
	f.writeTrackDefs(cw)
	f.writeEvents(cw)

	return errors.Wrap(cw.err, "encoding cpel sections")
}

func (f *cpelFile) writeStrings(cw *cpelWriter) {
	table := make([]byte, 0, f.strLen+4)
	for i, s := range f.strings {
		if i > 0 {
			table = append(table, 0)
		}
		table = append(table, s...)
	}
	// Pad to a four byte boundary, always at least one byte.
	table = append(table, make([]byte, 4-len(table)%4)...)

	cw.write(int32(cpelSectionStrings))
	cw.write(int32(len(table)))
	cw.bytes(table)
}

func (f *cpelFile) writeEventDefs(cw *cpelWriter) {
	cw.write(int32(cpelSectionEventDefs))
	cw.write(int32(12*len(f.eventDefs) + cpelNameLen + 4))
	cw.bytes(sectionName())
	cw.write(uint32(len(f.eventDefs)))

	for code, name := range f.eventDefs {
		cw.write(uint32(code))
		cw.write(f.offsets[name])
		cw.write(f.offsets["%s"])
	}
}

func (f *cpelFile) writeTrackDefs(cw *cpelWriter) {
	cw.write(int32(cpelSectionTrackDefs))
	cw.write(int32(8*len(f.trackDefs) + cpelNameLen + 4))
	cw.bytes(sectionName())
	cw.write(uint32(len(f.trackDefs)))

	// The viewer wants tracks ordered by name, not id.
	names := append([]string(nil), f.trackDefs...)
	sort.Strings(names)
	for _, name := range names {
		cw.write(f.trackIdx[name])
		cw.write(f.offsets[name])
	}
}

func (f *cpelFile) writeEvents(cw *cpelWriter) {
	cw.write(int32(cpelSectionEvents))
	cw.write(int32(20*len(f.events) + cpelNameLen + 8))
	cw.bytes(sectionName())
	cw.write(uint32(len(f.events)))
	cw.write(uint32(cpelTicksPerMicrosecond))

	for _, ev := range f.events {
		cw.write(uint32(ev.ts >> 32))
		cw.write(uint32(ev.ts & 0xffffffff))
		cw.write(ev.track)
		cw.write(ev.code)
		cw.write(ev.datum)
	}
}

func sectionName() []byte {
	name := make([]byte, cpelNameLen)
	copy(name, cpelStrtabName)

	return name
}

// cpelWriter sequences big-endian writes, holding the first error so
// the section writers stay linear.
type cpelWriter struct {
	w   io.Writer
	err error
}

func (cw *cpelWriter) write(v any) {
	if cw.err != nil {
		return
	}
	cw.err = binary.Write(cw.w, binary.BigEndian, v)
}

func (cw *cpelWriter) bytes(b []byte) {
	if cw.err != nil {
		return
	}
	_, cw.err = cw.w.Write(b)
}
