package player

import "fmt"

// Code is the outcome of a control call. Zero is success.
type Code int

const (
	CodeSuccess      Code = 0
	CodeInvalidURL   Code = -1
	CodeNoRenderer   Code = -2
	CodeNoDownloader Code = -3
	CodeNoDecoder    Code = -4
	CodeNotPlaying   Code = -5
	CodeNotPausing   Code = -6
	CodeUnsupported  Code = -7
	CodeClosed       Code = -8
	CodeNotReady     Code = -9
)

var codeMessages = map[Code]string{
	CodeSuccess:      "Success",
	CodeInvalidURL:   "Invalid url",
	CodeNoRenderer:   "Render target not set",
	CodeNoDownloader: "Downloader not initialized",
	CodeNoDecoder:    "Decoder not initialized",
	CodeNotPlaying:   "Not playing",
	CodeNotPausing:   "Not pausing",
	CodeUnsupported:  "Unsupported on live source",
	CodeClosed:       "Controller closed",
	CodeNotReady:     "Decoder not ready",
}

// Result is returned by every control call.
type Result struct {
	Code    Code
	Message string
}

func result(c Code) Result {
	return Result{Code: c, Message: codeMessages[c]}
}

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r.Code == CodeSuccess }

func (r Result) String() string {
	return fmt.Sprintf("%d %s", int(r.Code), r.Message)
}

// ReportKind tags a session report.
type ReportKind int

const (
	ReportError ReportKind = iota
	ReportFinished
)

func (k ReportKind) String() string {
	if k == ReportFinished {
		return "finished"
	}
	return "error"
}

// FinishedCode is the code carried by a ReportFinished report.
const FinishedCode = 1

// Report is delivered to the OnReport callback of Play, at most once per
// session. Transport failures carry Code -1 and the HTTP status (0 when the
// request never got one). Engine failures carry the engine's result code.
type Report struct {
	Kind    ReportKind
	Code    int
	Status  int
	Message string
}

func finishedReport() Report {
	return Report{Kind: ReportFinished, Code: FinishedCode, Status: 0, Message: "Finished"}
}
