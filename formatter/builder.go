package formatter

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"unicode"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"github.com/gnolang/flowsym/internal"
	"github.com/gnolang/flowsym/internal/checks"
	tt "github.com/gnolang/flowsym/internal/types"
)

const tabWidth = 8

var (
	errorStyle   = color.New(color.FgRed, color.Bold)
	warningStyle = color.New(color.FgHiYellow, color.Bold)
	infoStyle    = color.New(color.FgHiCyan, color.Bold)
	ruleStyle    = color.New(color.FgYellow, color.Bold)
	fileStyle    = color.New(color.FgCyan, color.Bold)
	lineStyle    = color.New(color.FgHiBlue, color.Bold)
	messageStyle = color.New(color.FgRed, color.Bold)
	helpStyle    = color.New(color.FgGreen, color.Bold)
)

// ruleHelp is printed under the message of each built-in rule.
var ruleHelp = map[string]string{
	checks.NullDereferenceName:   "check the value against nil on every path reaching this use",
	checks.DoubleDisposeName:     "close the value once, for example with a single deferred Close",
	checks.EmptyCollectionName:   "no element is ever added before this access",
	checks.ConstantConditionName: "one branch of this condition can never run",
}

// issueFormatter is implemented by the layouts an issue can be printed with.
type issueFormatter interface {
	IssueTemplate() string
}

// getIssueFormatter picks the source annotated layout when the issue's
// line is available and the compact one otherwise.
func getIssueFormatter(issue tt.Issue, snippet *internal.SourceCode) issueFormatter {
	if snippet == nil || !isValidLineRange(issue.Start.Line, issue.Start.Line, snippet.Lines) {
		return &CompactIssueFormatter{}
	}
	return &GeneralIssueFormatter{}
}

// GenerateFormattedIssue formats a slice of issues into a human-readable string.
func GenerateFormattedIssue(issues []tt.Issue, snippet *internal.SourceCode) string {
	var builder strings.Builder
	for _, issue := range issues {
		builder.WriteString(buildIssue(issue, snippet, getIssueFormatter(issue, snippet)))
	}
	return builder.String()
}

/***** Issue Formatter Builder *****/

type IssueData struct {
	Severity        string
	Rule            string
	Filename        string
	Procedure       string
	Padding         string
	Line            int
	StartColumn     int
	EndColumn       int
	MaxLineNumWidth int
	Message         string
	Help            string
	Note            string
	SourceLine      string
	Indent          string
}

func buildIssue(issue tt.Issue, snippet *internal.SourceCode, formatter issueFormatter) string {
	line := issue.Start.Line
	maxLineNumWidth := calculateMaxLineNumWidth(line)

	data := IssueData{
		Severity:        issue.Severity.String(),
		Rule:            issue.Rule,
		Filename:        issue.Filename,
		Procedure:       issue.Procedure,
		Line:            line,
		StartColumn:     issue.Start.Column,
		EndColumn:       issue.End.Column,
		MaxLineNumWidth: maxLineNumWidth,
		Padding:         strings.Repeat(" ", maxLineNumWidth+1),
		Message:         issue.Message,
		Help:            ruleHelp[issue.Rule],
		Note:            issue.Note,
	}
	if snippet != nil && isValidLineRange(line, line, snippet.Lines) {
		data.SourceLine = strings.TrimRight(snippet.Lines[line-1], "\r")
		data.Indent = leadingSpace(data.SourceLine)
	}
	if issue.End.Line != line {
		// underline to the end of the first line
		data.EndColumn = len(data.SourceLine) + 1
	}

	funcMap := template.FuncMap{
		"header":              header,
		"snippet":             codeSnippet,
		"underlineAndMessage": underlineAndMessage,
		"context":             procedureContext,
		"note":                note,
	}

	tmpl := template.Must(template.New("issue").Funcs(funcMap).Parse(formatter.IssueTemplate()))

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Sprintf("Error formatting issue: %v", err)
	}
	return buf.String()
}

// utils functions used in the text templates

func header(rule, severity string, maxLineNumWidth int, filename string, line, column int) string {
	var s string
	switch severity {
	case "ERROR":
		s = errorStyle.Sprint("error: ")
	case "WARNING":
		s = warningStyle.Sprint("warning: ")
	case "INFO":
		s = infoStyle.Sprint("info: ")
	}
	s += ruleStyle.Sprintf("%s\n", rule)

	padding := strings.Repeat(" ", maxLineNumWidth)
	s += lineStyle.Sprintf("%s--> ", padding)
	s += fileStyle.Sprintf("%s:%d:%d\n", filename, line, column)
	return s
}

func codeSnippet(source, indent string, line, maxLineNumWidth int, padding string) string {
	s := lineStyle.Sprintf("%s|\n", padding)
	lineNum := fmt.Sprintf("%*d", maxLineNumWidth, line)
	s += lineStyle.Sprintf("%s | ", lineNum)
	s += strings.TrimPrefix(source, indent) + "\n"
	return s
}

func underlineAndMessage(message, padding, source, indent string, startColumn, endColumn int) string {
	indentWidth := calculateVisualColumn(indent, len(indent)+1)
	start := max(calculateVisualColumn(source, startColumn)-indentWidth, 0)
	end := calculateVisualColumn(source, endColumn) - indentWidth
	length := max(end-start, 1)

	s := lineStyle.Sprintf("%s| ", padding)
	s += strings.Repeat(" ", start)
	s += messageStyle.Sprintf("%s\n", strings.Repeat("~", length))
	s += lineStyle.Sprintf("%s= ", padding)
	s += messageStyle.Sprintf("%s\n", message)
	return s
}

func procedureContext(padding, procedure, help string) string {
	var s string
	if procedure != "" {
		s += lineStyle.Sprintf("%s= ", padding) + fmt.Sprintf("in %s\n", procedure)
	}
	if help != "" {
		s += lineStyle.Sprintf("%s= ", padding) + helpStyle.Sprint("help: ") + help + "\n"
	}
	return s
}

func note(note string) string {
	if note == "" {
		return ""
	}
	return helpStyle.Sprint("Note: ") + lineStyle.Sprintf("%s\n", note)
}

func isValidLineRange(startLine, endLine int, lines []string) bool {
	return startLine > 0 &&
		endLine > 0 &&
		startLine <= endLine &&
		startLine <= len(lines) &&
		endLine <= len(lines)
}

func calculateMaxLineNumWidth(line int) int {
	return len(fmt.Sprintf("%d", line))
}

// calculateVisualColumn returns the display width of line before the
// 1-based byte column, expanding tabs and counting wide runes twice.
func calculateVisualColumn(line string, column int) int {
	if column < 0 {
		return 0
	}
	visualColumn := 0
	for i, ch := range line {
		if i+1 >= column {
			break
		}
		if ch == '\t' {
			visualColumn += tabWidth - (visualColumn % tabWidth)
		} else {
			visualColumn += runewidth.RuneWidth(ch)
		}
	}
	return visualColumn
}

func leadingSpace(line string) string {
	return line[:len(line)-len(strings.TrimLeftFunc(line, unicode.IsSpace))]
}
