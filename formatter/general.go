package formatter

// GeneralIssueFormatter prints the offending line with the span underlined.
type GeneralIssueFormatter struct{}

func (f *GeneralIssueFormatter) IssueTemplate() string {
	return `{{header .Rule .Severity .MaxLineNumWidth .Filename .Line .StartColumn}}
{{- snippet .SourceLine .Indent .Line .MaxLineNumWidth .Padding}}
{{- underlineAndMessage .Message .Padding .SourceLine .Indent .StartColumn .EndColumn}}
{{- context .Padding .Procedure .Help}}
{{- note .Note}}
`
}

// CompactIssueFormatter is used when the source line cannot be shown.
type CompactIssueFormatter struct{}

func (f *CompactIssueFormatter) IssueTemplate() string {
	return `{{header .Rule .Severity .MaxLineNumWidth .Filename .Line .StartColumn}}
{{- .Padding}}= {{.Message}}
{{context .Padding .Procedure .Help}}
{{- note .Note}}
`
}
