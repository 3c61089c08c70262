package cmd

import (
	"fmt"
	"runtime"

	"github.com/urfave/cli"

	"github.com/raaddl/raad/cmd/common"
)

type BuildArgs struct {
	Version   string
	BuildType string
	Date      string
	Commit    string
}

func Execute(args []string, bArgs BuildArgs) error {
	app := cli.App{
		Name:                  "raad",
		HelpName:              "raad",
		Usage:                 "A resumable multi-segment download manager.",
		Version:               fmt.Sprintf("%s-%s", bArgs.Version, bArgs.BuildType),
		UsageText:             "raad <command> [arguments...]",
		Description:           DESCRIPTION,
		CustomAppHelpTemplate: HELP_TEMPL,
		OnUsageError:          common.UsageErrorCallback,
		Commands: []cli.Command{
			{
				Name:                   "get",
				Aliases:                []string{"d", "download"},
				Usage:                  "download files now with progress bars",
				ArgsUsage:              "URL...",
				Description:            GetDescription,
				CustomHelpTemplate:     CMD_HELP_TEMPL,
				OnUsageError:           common.UsageErrorCallback,
				Action:                 get,
				Flags:                  getFlags,
				UseShortOptionHandling: true,
			},
			{
				Name:               "run",
				Usage:              "process the saved queues until interrupted",
				Description:        RunDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       common.UsageErrorCallback,
				Action:             run,
				Flags:              runFlags,
			},
			{
				Name:               "add",
				Aliases:            []string{"a"},
				Usage:              "add downloads to the session",
				ArgsUsage:          "URL...",
				Description:        AddDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       common.UsageErrorCallback,
				Action:             action("add", held, addTasks),
				Flags:              addFlags,
			},
			{
				Name:                   "list",
				Aliases:                []string{"l", "ls"},
				Usage:                  "display the downloads of the session",
				Description:            ListDescription,
				CustomHelpTemplate:     CMD_HELP_TEMPL,
				OnUsageError:           common.UsageErrorCallback,
				Action:                 action("list", held, list),
				Flags:                  lsFlags,
				UseShortOptionHandling: true,
			},
			{
				Name:         "pause",
				Usage:        "pause downloads",
				ArgsUsage:    "ID...",
				OnUsageError: common.UsageErrorCallback,
				Action:       action("pause", held, pauseTasks),
				Flags:        []cli.Flag{allFlag},
			},
			{
				Name:         "resume",
				Aliases:      []string{"r"},
				Usage:        "queue paused downloads again",
				ArgsUsage:    "ID...",
				OnUsageError: common.UsageErrorCallback,
				Action:       action("resume", held, resumeTasks),
				Flags:        []cli.Flag{allFlag},
			},
			{
				Name:         "cancel",
				Usage:        "cancel downloads and delete their partial files",
				ArgsUsage:    "ID...",
				OnUsageError: common.UsageErrorCallback,
				Action:       action("cancel", held, cancelTasks),
				Flags:        []cli.Flag{allFlag},
			},
			{
				Name:         "restart",
				Usage:        "queue downloads again from where they stopped",
				ArgsUsage:    "ID...",
				OnUsageError: common.UsageErrorCallback,
				Action:       action("restart", held, restartTasks),
			},
			{
				Name:         "rm",
				Usage:        "remove downloads from the session",
				ArgsUsage:    "ID...",
				OnUsageError: common.UsageErrorCallback,
				Action:       action("rm", held, removeTasks),
				Flags: []cli.Flag{
					cli.BoolFlag{
						Name:  "files, f",
						Usage: "also delete the downloaded file",
					},
				},
			},
			{
				Name:   "retry",
				Usage:  "queue every failed download again",
				Action: action("retry", held, retryFailed),
			},
			{
				Name:    "clear",
				Aliases: []string{"c"},
				Usage:   "remove finished downloads from the session",
				Action:  action("clear", held, clearCompleted),
			},
			{
				Name:         "verify",
				Usage:        "hash a finished download and compare it with its checksum",
				ArgsUsage:    "ID",
				OnUsageError: common.UsageErrorCallback,
				Action:       action("verify", held, verify),
				Flags:        []cli.Flag{timeoutFlag},
			},
			{
				Name:               "queue",
				Aliases:            []string{"q"},
				Usage:              "manage queues",
				Description:        QueueDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Subcommands: []cli.Command{
					{
						Name:    "ls",
						Aliases: []string{"list"},
						Usage:   "list queues",
						Action:  action("queue ls", held, queueList),
					},
					{
						Name:      "add",
						Usage:     "create a queue",
						ArgsUsage: "NAME",
						Action:    action("queue add", held, queueAdd),
					},
					{
						Name:      "rm",
						Usage:     "remove a queue; its downloads move to General",
						ArgsUsage: "NAME",
						Action:    action("queue rm", held, queueRemove),
					},
					{
						Name:      "rename",
						Usage:     "rename a queue",
						ArgsUsage: "OLD NEW",
						Action:    action("queue rename", held, queueRename),
					},
					{
						Name:         "set",
						Usage:        "change the limits of a queue",
						ArgsUsage:    "NAME",
						OnUsageError: common.UsageErrorCallback,
						Action:       action("queue set", held, queueSet),
						Flags:        queueSetFlags,
					},
				},
			},
			{
				Name:               "rule",
				Usage:              "manage domain rules",
				Description:        RuleDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Subcommands: []cli.Command{
					{
						Name:    "ls",
						Aliases: []string{"list"},
						Usage:   "list domain rules",
						Action:  action("rule ls", held, ruleList),
					},
					{
						Name:      "set",
						Usage:     "route a host to a queue",
						ArgsUsage: "HOST QUEUE",
						Action:    action("rule set", held, ruleSet),
					},
					{
						Name:      "rm",
						Usage:     "remove the rule of a host",
						ArgsUsage: "HOST",
						Action:    action("rule rm", held, ruleRemove),
					},
				},
			},
			{
				Name:               "import",
				Usage:              "add the URLs of a list file",
				ArgsUsage:          "FILE",
				Description:        ImportDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Action:             action("import", held, importList),
			},
			{
				Name:               "export",
				Usage:              "write the downloads to a list file",
				ArgsUsage:          "FILE|-",
				Description:        ExportDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Action:             action("export", held, exportList),
				Flags: []cli.Flag{
					cli.StringFlag{
						Name:  "format",
						Usage: "txt or json (from the file extension if empty)",
					},
				},
			},
			{
				Name:               "test",
				Aliases:            []string{"info", "i"},
				Usage:              "shows info about a URL",
				ArgsUsage:          "URL",
				Description:        TestDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       common.UsageErrorCallback,
				Action:             action("test", envOpts{held: true, ephemeral: true}, testURL),
				Flags:              []cli.Flag{timeoutFlag},
			},
			{
				Name:    "help",
				Aliases: []string{"h"},
				Usage:   "prints the help message",
				Action:  common.Help,
			},
			{
				Name:               "version",
				Aliases:            []string{"v"},
				Usage:              "prints installed version of raad",
				UsageText:          " ",
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Action:             common.GetVersion,
			},
		},
		Action:                 get,
		Flags:                  append(append([]cli.Flag{}, globalFlags...), getFlags...),
		UseShortOptionHandling: true,
		HideHelp:               true,
		HideVersion:            true,
	}
	common.VersionCmdStr = fmt.Sprintf("%s %s (%s_%s)\nBuild: %s=%s\n",
		app.Name,
		app.Version,
		runtime.GOOS,
		runtime.GOARCH,
		bArgs.Date, bArgs.Commit,
	)
	return app.Run(args)
}
