package datafile

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/ensoft/marple/internal/settings"
	"github.com/ensoft/marple/pkg/stream"
)

// Version identifies the data file layout. Readers reject files
// written with a different layout rather than guessing at their shape.
const Version = 1

// header is the first line of every data file: the layout version and
// the run metadata.
type header struct {
	Version int         `json:"version"`
	Meta    stream.Meta `json:"meta"`
}

// Write streams the header line followed by one JSON record per line.
// The line-oriented layout keeps files greppable and lets readers
// stream without holding the whole run in memory.
func Write(w io.Writer, s *stream.Stream) error {
	out := bufio.NewWriter(w)

	enc := json.NewEncoder(out)
	if err := enc.Encode(header{Version: Version, Meta: s.Meta}); err != nil {
		return errors.Wrap(err, "encoding data file header")
	}
	for i := range s.Records {
		if err := enc.Encode(&s.Records[i]); err != nil {
			return errors.Wrapf(err, "encoding record %d", i)
		}
	}

	return errors.Wrap(out.Flush(), "flushing data file")
}

// Read rebuilds a stream from a data file.
func Read(r io.Reader) (*stream.Stream, error) {
	dec := json.NewDecoder(bufio.NewReader(r))

	var h header
	if err := dec.Decode(&h); err != nil {
		return nil, errors.Wrapf(ErrBadHeader, "%v", err)
	}
	if h.Version != Version {
		return nil, errors.Wrapf(ErrVersion, "file version %d, supported %d", h.Version, Version)
	}

	s := &stream.Stream{Meta: h.Meta}
	for {
		var rec stream.Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			return nil, errors.Wrapf(err, "decoding record %d", len(s.Records))
		}
		s.Records = append(s.Records, rec)
	}

	return s, nil
}

// Save writes the stream to path.
func Save(path string, s *stream.Stream) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}

	if err := Write(f, s); err != nil {
		f.Close()

		return err
	}

	return errors.Wrapf(f.Close(), "closing %s", path)
}

// Load reads the stream stored at path.
func Load(path string) (*stream.Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	s, err := Read(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}

	return s, nil
}

// UpdateLast points the well-known marker at the newest data file, so
// the display command can find it without arguments.
func UpdateLast(path string) error {
	return errors.Wrap(
		os.WriteFile(settings.LastFile, []byte(path+"\n"), 0o644),
		"writing last-run marker")
}

// Last returns the data file the marker points at.
func Last() (string, error) {
	data, err := os.ReadFile(settings.LastFile)
	if err != nil {
		return "", errors.Wrap(err, "no previous run recorded")
	}

	path := strings.TrimSpace(string(data))
	if path == "" {
		return "", errors.New("last-run marker is empty")
	}

	return path, nil
}
