package collect

import (
	"encoding/json"
	"io"
	"time"

	"github.com/ensoft/marple/pkg/config"
	"github.com/ensoft/marple/pkg/stream"
)

// ReportFileName is where the collect command drops the run report.
const ReportFileName = "marple-report.json"

// RunReport summarizes a collection run for scripting consumers.
type RunReport struct {
	Start      time.Time          `json:"start"`
	End        time.Time          `json:"end"`
	Interfaces []config.Interface `json:"interfaces"`
	Records    int                `json:"records"`
	Dropped    uint64             `json:"dropped"`
	Failures   []ReportFailure    `json:"failures,omitempty"`
	DataFile   string             `json:"data_file,omitempty"`
}

// ReportFailure is a Failure flattened for serialization.
type ReportFailure struct {
	Interface config.Interface `json:"interface"`
	Stage     string           `json:"stage"`
	Error     string           `json:"error"`
}

type RunReportOption func(*RunReport)

func NewRunReport(opts ...RunReportOption) *RunReport {
	report := new(RunReport)
	for _, opt := range opts {
		opt(report)
	}

	return report
}

func WithReportStream(s *stream.Stream) RunReportOption {
	return func(o *RunReport) {
		o.Start = s.Meta.Start
		o.End = s.Meta.End
		o.Interfaces = s.Meta.Interfaces
		o.Records = len(s.Records)
		o.Dropped = s.Meta.Dropped
	}
}

func WithReportFailures(failures []Failure) RunReportOption {
	return func(o *RunReport) {
		for _, f := range failures {
			o.Failures = append(o.Failures, ReportFailure{
				Interface: f.Interface,
				Stage:     f.Stage,
				Error:     f.Err.Error(),
			})
		}
	}
}

func WithReportDataFile(path string) RunReportOption {
	return func(o *RunReport) {
		o.DataFile = path
	}
}

func (r *RunReport) WriteReport(w io.Writer) error {
	encoder := json.NewEncoder(w)
	return encoder.Encode(r)
}
