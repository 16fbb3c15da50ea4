// Package inspector reports the terminal environment a sketch would run
// in: which standard streams are interactive, the window size, the decoded
// line discipline of the input stream, and what raw entry would change.
// The report serves the info command in both table and JSON form.
package inspector

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/srg/termino/terminal"
)

// InspectOptions name the streams a report covers besides the input file.
type InspectOptions struct {
	// Stdout and Stderr are checked for interactivity alongside the input
	// stream. Nil selects the process's own.
	Stdout *os.File
	Stderr *os.File
}

// Report describes the terminal environment.
type Report struct {
	Streams  []StreamStatus `json:"streams"`
	Terminal *TerminalState `json:"terminal,omitempty"`
}

// StreamStatus reports whether one standard stream is a terminal device.
type StreamStatus struct {
	Name        string `json:"name"`
	Device      string `json:"device"`
	Interactive bool   `json:"interactive"`
}

// Window is the terminal's reported size in character cells.
type Window struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// TerminalState is the decoded line discipline of the input stream. The
// flag sections are ordered maps so JSON output keeps a stable field
// order run to run.
type TerminalState struct {
	Window   Window                                 `json:"window"`
	Input    *orderedmap.OrderedMap[string, bool]   `json:"input_flags"`
	Output   *orderedmap.OrderedMap[string, bool]   `json:"output_flags"`
	Control  *orderedmap.OrderedMap[string, bool]   `json:"control_flags"`
	Local    *orderedmap.OrderedMap[string, bool]   `json:"local_flags"`
	VMin     int                                    `json:"vmin"`
	VTime    int                                    `json:"vtime"`
	RawDelta *orderedmap.OrderedMap[string, string] `json:"raw_mode_changes"`
}

// Inspect examines f (os.Stdin when nil) and reports the interactivity of
// all three standard streams. When f is a terminal the report also carries
// its decoded attributes and the delta raw entry would apply; when it is
// not, Terminal stays nil and that is not an error.
func Inspect(f *os.File, opts *InspectOptions, logger *logrus.Logger) (*Report, error) {
	if f == nil {
		f = os.Stdin
	}
	if opts == nil {
		opts = &InspectOptions{}
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	if logger == nil {
		logger = logrus.New()
	}

	report := &Report{
		Streams: []StreamStatus{
			streamStatus("stdin", f),
			streamStatus("stdout", stdout),
			streamStatus("stderr", stderr),
		},
	}

	if !term.IsTerminal(int(f.Fd())) {
		logger.WithField("device", f.Name()).Debug("input is not a terminal, no attributes to report")
		return report, nil
	}

	cooked, err := terminal.Capture(f)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", f.Name(), err)
	}
	raw := terminal.RawConfig(cooked)

	state := &TerminalState{
		Input:    decodeFlags(uint64(cooked.Iflag), inputFlags),
		Output:   decodeFlags(uint64(cooked.Oflag), outputFlags),
		Control:  decodeFlags(uint64(cooked.Cflag), controlFlags),
		Local:    decodeFlags(uint64(cooked.Lflag), localFlags),
		VMin:     int(cooked.Cc[unix.VMIN]),
		VTime:    int(cooked.Cc[unix.VTIME]),
		RawDelta: rawDelta(cooked, raw),
	}

	if ws, err := unix.IoctlGetWinsize(int(f.Fd()), unix.TIOCGWINSZ); err != nil {
		logger.WithError(err).Warn("window size unavailable")
	} else {
		state.Window = Window{Rows: int(ws.Row), Cols: int(ws.Col)}
	}

	report.Terminal = state
	return report, nil
}

func streamStatus(name string, f *os.File) StreamStatus {
	return StreamStatus{
		Name:        name,
		Device:      f.Name(),
		Interactive: term.IsTerminal(int(f.Fd())),
	}
}

// flagBit names one termios bit. mask covers multi-bit fields (character
// size); zero means the bit is its own mask.
type flagBit struct {
	name string
	bit  uint64
	mask uint64
}

func (f flagBit) set(word uint64) bool {
	mask := f.mask
	if mask == 0 {
		mask = f.bit
	}
	return word&mask == f.bit
}

// The decoded subset: every flag the raw derivation touches plus the
// conventional line-discipline bits people actually check. All of these
// are POSIX names present on both linux and darwin.
var (
	inputFlags = []flagBit{
		{name: "IGNBRK", bit: unix.IGNBRK},
		{name: "BRKINT", bit: unix.BRKINT},
		{name: "IGNPAR", bit: unix.IGNPAR},
		{name: "PARMRK", bit: unix.PARMRK},
		{name: "INPCK", bit: unix.INPCK},
		{name: "ISTRIP", bit: unix.ISTRIP},
		{name: "INLCR", bit: unix.INLCR},
		{name: "IGNCR", bit: unix.IGNCR},
		{name: "ICRNL", bit: unix.ICRNL},
		{name: "IXON", bit: unix.IXON},
		{name: "IXANY", bit: unix.IXANY},
		{name: "IXOFF", bit: unix.IXOFF},
	}
	outputFlags = []flagBit{
		{name: "OPOST", bit: unix.OPOST},
		{name: "ONLCR", bit: unix.ONLCR},
		{name: "OCRNL", bit: unix.OCRNL},
		{name: "ONOCR", bit: unix.ONOCR},
		{name: "ONLRET", bit: unix.ONLRET},
	}
	controlFlags = []flagBit{
		{name: "CS8", bit: unix.CS8, mask: unix.CSIZE},
		{name: "CSTOPB", bit: unix.CSTOPB},
		{name: "CREAD", bit: unix.CREAD},
		{name: "PARENB", bit: unix.PARENB},
		{name: "PARODD", bit: unix.PARODD},
		{name: "HUPCL", bit: unix.HUPCL},
		{name: "CLOCAL", bit: unix.CLOCAL},
	}
	localFlags = []flagBit{
		{name: "ISIG", bit: unix.ISIG},
		{name: "ICANON", bit: unix.ICANON},
		{name: "ECHO", bit: unix.ECHO},
		{name: "ECHOE", bit: unix.ECHOE},
		{name: "ECHOK", bit: unix.ECHOK},
		{name: "ECHONL", bit: unix.ECHONL},
		{name: "NOFLSH", bit: unix.NOFLSH},
		{name: "TOSTOP", bit: unix.TOSTOP},
		{name: "IEXTEN", bit: unix.IEXTEN},
	}
)

func decodeFlags(word uint64, table []flagBit) *orderedmap.OrderedMap[string, bool] {
	om := orderedmap.New[string, bool]()
	for _, f := range table {
		om.Set(f.name, f.set(word))
	}
	return om
}

// rawDelta lists, in table order, the decoded flags whose value the raw
// derivation changes, plus VMIN/VTIME when those move.
func rawDelta(cooked, raw unix.Termios) *orderedmap.OrderedMap[string, string] {
	delta := orderedmap.New[string, string]()
	classes := []struct {
		table       []flagBit
		cooked, raw uint64
	}{
		{inputFlags, uint64(cooked.Iflag), uint64(raw.Iflag)},
		{outputFlags, uint64(cooked.Oflag), uint64(raw.Oflag)},
		{controlFlags, uint64(cooked.Cflag), uint64(raw.Cflag)},
		{localFlags, uint64(cooked.Lflag), uint64(raw.Lflag)},
	}
	for _, c := range classes {
		for _, f := range c.table {
			before, after := f.set(c.cooked), f.set(c.raw)
			if before != after {
				delta.Set(f.name, onOff(before)+" -> "+onOff(after))
			}
		}
	}
	if cooked.Cc[unix.VMIN] != raw.Cc[unix.VMIN] {
		delta.Set("VMIN", fmt.Sprintf("%d -> %d", cooked.Cc[unix.VMIN], raw.Cc[unix.VMIN]))
	}
	if cooked.Cc[unix.VTIME] != raw.Cc[unix.VTIME] {
		delta.Set("VTIME", fmt.Sprintf("%d -> %d", cooked.Cc[unix.VTIME], raw.Cc[unix.VTIME]))
	}
	return delta
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
