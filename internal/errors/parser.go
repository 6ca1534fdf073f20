package errors

import (
	"regexp"
	"strconv"
	"strings"
)

// Diagnostic is a location extracted from an external tool's error output.
type Diagnostic struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
}

type diagnosticPattern struct {
	regex       *regexp.Regexp
	parseFields func(matches []string) (file string, line int, column int)
}

// DiagnosticParser extracts locations from sass, pug and postcss output.
type DiagnosticParser struct {
	patterns []diagnosticPattern
}

// NewDiagnosticParser creates a new parser.
func NewDiagnosticParser() *DiagnosticParser {
	return &DiagnosticParser{patterns: buildPatterns()}
}

func buildPatterns() []diagnosticPattern {
	return []diagnosticPattern{
		{
			// dart-sass trace line: "  css/base.sass 3:7  root stylesheet"
			regex: regexp.MustCompile(`^\s*(\S+)\s+(\d+):(\d+)\s+.*$`),
			parseFields: func(m []string) (string, int, int) {
				line, _ := strconv.Atoi(m[2])
				col, _ := strconv.Atoi(m[3])
				return m[1], line, col
			},
		},
		{
			// pug-cli: "Error: /src/pug/index.pug:5:3" and "Pug:5:3"
			regex: regexp.MustCompile(`^(?:Error:\s+)?(\S+?):(\d+):(\d+)\s*$`),
			parseFields: func(m []string) (string, int, int) {
				line, _ := strconv.Atoi(m[2])
				col, _ := strconv.Atoi(m[3])
				return m[1], line, col
			},
		},
		{
			// postcss CssSyntaxError: "CssSyntaxError: <css input>:4:1: Unknown word"
			regex: regexp.MustCompile(`^CssSyntaxError:\s+(.+?):(\d+):(\d+):.*$`),
			parseFields: func(m []string) (string, int, int) {
				line, _ := strconv.Atoi(m[2])
				col, _ := strconv.Atoi(m[3])
				return m[1], line, col
			},
		},
	}
}

// Parse returns the first recognised location in output, using the first
// line mentioning an error as the message. ok is false when nothing matched.
func (p *DiagnosticParser) Parse(output string) (Diagnostic, bool) {
	var d Diagnostic
	found := false

	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimRight(raw, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if d.Message == "" && strings.Contains(strings.ToLower(line), "error") {
			d.Message = strings.TrimSpace(line)
		}

		if found {
			continue
		}

		for _, pattern := range p.patterns {
			m := pattern.regex.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			d.File, d.Line, d.Column = pattern.parseFields(m)
			found = true
			break
		}
	}

	return d, found
}

// CompileErrorFromOutput builds a CompileError for a failed tool run,
// attaching a location when the output contains one.
func CompileErrorFromOutput(tool, file, output string, cause error) *SiteError {
	msg := tool + " failed"
	se := NewCompileError(ErrCodeCompileFailed, msg, cause)
	se.FilePath = file

	d, ok := NewDiagnosticParser().Parse(output)
	if d.Message != "" {
		se.Message = msg + ": " + d.Message
	}
	if ok {
		// Tools reading stdin report a placeholder name; keep the real file.
		if d.File != "" && d.File != "stdin" && d.File != "-" && !strings.HasPrefix(d.File, "<") && d.File != "Pug" {
			se.FilePath = d.File
		}
		se.Line = d.Line
		se.Column = d.Column
	}

	return se
}
