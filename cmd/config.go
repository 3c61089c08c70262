package cmd

const DESCRIPTION = `
raad is a resumable, multi-segment download manager. It splits large
files over parallel connections, survives interruptions and keeps
downloads in queues with schedules, daily quotas and speed limits.
`

const HELP_TEMPL = `Usage: {{if .UsageText}}{{.UsageText}}{{else}}{{.HelpName}} {{if .VisibleFlags}}[global options]{{end}}{{if .Commands}} command [command options]{{end}} {{if .ArgsUsage}}{{.ArgsUsage}}{{else}}[arguments...]{{end}}{{end}}
{{.Description}}{{if .VisibleCommands}}
Commands:{{range .VisibleCategories}}{{if .Name}}

{{.Name}}:{{range .VisibleCommands}}
  {{join .Names ", "}}{{"\t"}}{{.Usage}}{{end}}{{else}}{{range .VisibleCommands}}
{{"\t"}}{{index .Names 0}}{{"\t:\t"}}{{.Usage}}{{end}}{{end}}{{end}}{{end}}{{if .VisibleFlags}}

Global Flags:{{range .VisibleFlags}}
  {{.}}{{end}}{{end}}

Use "{{.HelpName}} help <command>" for more information about any command.

`

const CMD_HELP_TEMPL = `{{if .Description}}{{.Description}}{{else}}{{.HelpName}} - {{.Usage}}

{{end}}Usage:
        {{.HelpName}} {{if .UsageText}}{{.UsageText}}{{else}}[arguments...]{{end}}{{if .VisibleFlags}}

Supported Flags:{{range .VisibleFlags}}
  {{.}}{{end}}{{end}}

`

const (
	GetDescription = `The get command downloads one or more files right away
and shows a progress bar for each of them. The session
is left untouched unless --save is given.

Example:
        raad get https://domain.com/file.zip
        raad get -s 16 --max-speed 2MB https://domain.com/file.iso

`
	RunDescription = `The run command loads the saved session and keeps
downloading its queues, applying schedules, quotas and the
battery policy, until interrupted. With a metrics address
configured, Prometheus metrics are served on /metrics.

Example:
        raad run
        raad run --metrics :9090

`
	AddDescription = `The add command puts downloads into the saved session
without starting them. They start with "raad run".

Example:
        raad add --queue Night https://domain.com/file.zip

`
	ListDescription = `The list command displays the downloads of the saved
session with their ids, which the other commands accept.

Example:
        raad list
        raad list --status Error

`
	TestDescription = `The test command asks the server about a URL without
downloading it and prints its size, validators and whether
it accepts range requests.

Example:
        raad test https://domain.com/file.zip

`
	QueueDescription = `The queue command manages the queues of the session.
A queue has its own concurrency cap, speed limit, daily
schedule window and daily quota.

Example:
        raad queue add Night
        raad queue set Night --window 22:00-06:00 --quota 5GB

`
	RuleDescription = `The rule command routes new downloads of a host into a
queue.

Example:
        raad rule set example.com Night

`
	ImportDescription = `The import command adds every URL of a text or JSON list
to the session. The format follows the file extension.

Example:
        raad import links.txt

`
	ExportDescription = `The export command writes the downloads of the session
as a text or JSON list. The format follows the file extension.

Example:
        raad export backup.json

`
)
