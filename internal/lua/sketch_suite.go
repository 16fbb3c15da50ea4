package lua

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/termino/internal/testutils"
	"github.com/srg/termino/serial"

	suitelib "github.com/stretchr/testify/suite"
)

// SketchCase is one YAML-defined sketch scenario: a script, bytes to feed
// through the serial port, and the output that should come back.
type SketchCase struct {
	// Name of the test case.
	Name string `yaml:"name"`

	// Script is the sketch source, either inline Lua or a
	// file://path relative to the project root.
	Script string `yaml:"script"`

	// Args populate the script's arg[] table.
	Args map[string]string `yaml:"args,omitempty"`

	// Feed is typed input, delivered one byte per loop iteration the way
	// the driver delivers it.
	Feed string `yaml:"feed,omitempty"`

	// Iterations is how many loop steps to drive. Zero means enough to
	// consume the whole feed plus one trailing step.
	Iterations int `yaml:"iterations,omitempty"`

	// ExpectSerial is the exact serial output (serial.write/print paths).
	ExpectSerial string `yaml:"expect_serial,omitempty"`

	// ExpectPrint is the exact captured print() output.
	ExpectPrint string `yaml:"expect_print,omitempty"`

	// ExpectErrorMessage makes the case expect a load failure containing
	// this substring.
	ExpectErrorMessage string `yaml:"expect_error_message,omitempty"`
}

// SketchSuite drives YAML sketch scenarios through the real load path: a
// serial port backed by a buffer, LoadSketch with its drainer, and the
// one-byte-per-iteration loop cadence.
type SketchSuite struct {
	suitelib.Suite

	Logger *logrus.Logger
}

func (suite *SketchSuite) SetupTest() {
	if suite.Logger == nil {
		suite.Logger = logrus.New()
		suite.Logger.SetOutput(io.Discard)
	}
}

// RunSketchCasesFromFile loads scenarios from a YAML file relative to the
// project root and runs each as a subtest.
func (suite *SketchSuite) RunSketchCasesFromFile(relPath string) {
	content, err := testutils.LoadScript(relPath)
	suite.Require().NoError(err, "failed to load scenarios from %s", relPath)
	suite.RunSketchCasesFromYAML(content)
}

// RunSketchCasesFromYAML parses scenarios from YAML content (dedented, so
// cases can be defined inline in test sources) and runs each as a
// subtest. Expects a test_cases array at the root.
func (suite *SketchSuite) RunSketchCasesFromYAML(yamlContent string) {
	var scenario struct {
		TestCases []SketchCase `yaml:"test_cases"`
	}
	err := yaml.Unmarshal([]byte(dedent(yamlContent)), &scenario)
	suite.Require().NoError(err, "failed to parse YAML test cases")

	for _, tc := range scenario.TestCases {
		testCase := tc
		suite.Run(testCase.Name, func() {
			suite.runSketchCase(testCase)
		})
	}
}

func (suite *SketchSuite) runSketchCase(tc SketchCase) {
	script := tc.Script
	if path, ok := strings.CutPrefix(script, "file://"); ok {
		content, err := testutils.LoadScript(path)
		suite.Require().NoError(err, "failed to load script %s", path)
		script = content
	}

	var serialOut, printOut, printErr bytes.Buffer
	port := serial.NewPort(&serialOut, 0, suite.Logger)

	loaded, err := LoadSketch(context.Background(), script, tc.Name, port, &RunOptions{
		Args:   tc.Args,
		Stdout: &printOut,
		Stderr: &printErr,
		Logger: suite.Logger,
	})
	if tc.ExpectErrorMessage != "" {
		suite.Require().Error(err, "expected a load error")
		suite.Require().Contains(err.Error(), tc.ExpectErrorMessage)
		return
	}
	suite.Require().NoError(err, "sketch failed to load")
	defer loaded.Close()

	// Drive the loop the way the driver does: at most one fed byte per
	// iteration, then the loop callback.
	iterations := tc.Iterations
	if iterations <= 0 {
		iterations = len(tc.Feed) + 1
	}
	if loaded.Callbacks.Setup != nil {
		loaded.Callbacks.Setup()
	}
	for i := 0; i < iterations; i++ {
		if i < len(tc.Feed) {
			port.InsertByte(tc.Feed[i])
		}
		if loaded.Callbacks.Loop != nil {
			loaded.Callbacks.Loop()
		}
	}

	// Close flushes the drainer before the buffers are read.
	loaded.Close()

	if tc.ExpectSerial != "" {
		testutils.NewTextAsserter(suite.T()).Assert(serialOut.String(), tc.ExpectSerial)
	}
	if tc.ExpectPrint != "" {
		testutils.NewTextAsserter(suite.T()).Assert(printOut.String(), tc.ExpectPrint)
	}
}

// dedent strips the common leading indentation from every line, so YAML
// blocks can sit indented inside Go sources. Tabs count as four spaces.
func dedent(s string) string {
	const tabWidth = 4
	s = strings.ReplaceAll(s, "\t", strings.Repeat(" ", tabWidth))
	lines := strings.Split(s, "\n")

	minIndent := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := len(line) - len(strings.TrimLeft(line, " "))
		if minIndent == -1 || indent < minIndent {
			minIndent = indent
		}
	}
	if minIndent <= 0 {
		return s
	}

	out := make([]string, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			out[i] = ""
			continue
		}
		out[i] = line[minIndent:]
	}
	return strings.Join(out, "\n")
}
