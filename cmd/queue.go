package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"

	"github.com/raaddl/raad/cmd/common"
	"github.com/raaddl/raad/pkg/manager"
	"github.com/raaddl/raad/pkg/transfer"
)

var queueSetFlags = []cli.Flag{
	cli.IntFlag{
		Name:  "max-concurrent, n",
		Usage: "downloads of the queue running at once",
	},
	cli.StringFlag{
		Name:  "max-speed",
		Usage: "speed limit of each download of the queue, 0 for none",
	},
	cli.StringFlag{
		Name:  "window, w",
		Usage: `daily window as "HH:MM-HH:MM"; "off" disables the schedule`,
	},
	cli.StringFlag{
		Name:  "quota",
		Usage: `bytes per day, e.g. 5GB or 700MiB; "off" disables the quota`,
	},
}

func queueList(_ *cli.Context, e *env) error {
	printQueues(os.Stdout, e.mgr.Queues())
	return nil
}

func printQueues(w io.Writer, queues []manager.Queue) {
	txt := "--------------------------------------------------------------------------"
	txt += "\n|        Name        | Max |   Speed    |    Window   |      Quota (today)"
	txt += "\n|--------------------|-----|------------|-------------|-------------------"
	for _, q := range queues {
		speed := "-"
		if q.MaxSpeed > 0 {
			speed = humanize.IBytes(uint64(q.MaxSpeed)) + "/s"
		}
		window := "-"
		if q.ScheduleEnabled {
			window = formatWindow(q.StartMinutes, q.EndMinutes)
		}
		quota := "-"
		if q.QuotaEnabled {
			quota = fmt.Sprintf("%s (%s)",
				humanize.IBytes(uint64(max(q.QuotaBytes, 0))),
				humanize.IBytes(uint64(max(q.DownloadedToday, 0))))
		}
		txt += fmt.Sprintf("\n| %s | %s | %s | %s | %s",
			common.Beaut(common.ShortenName(q.Name, 18), 18),
			common.Beaut(strconv.Itoa(q.MaxConcurrent), 3),
			common.Beaut(speed, 10),
			common.Beaut(window, 11),
			quota,
		)
	}
	txt += "\n--------------------------------------------------------------------------"
	fmt.Fprintln(w, txt)
}

func queueAdd(ctx *cli.Context, e *env) error {
	name := ctx.Args().First()
	if err := e.mgr.AddQueue(name); err != nil {
		return err
	}
	fmt.Printf("queue %q added\n", name)
	return nil
}

func queueRemove(ctx *cli.Context, e *env) error {
	name := ctx.Args().First()
	if err := e.mgr.RemoveQueue(name); err != nil {
		return err
	}
	fmt.Printf("queue %q removed; its downloads moved to %s\n", name, manager.DefaultQueue)
	return nil
}

func queueRename(ctx *cli.Context, e *env) error {
	if ctx.NArg() != 2 {
		return errors.New("usage: raad queue rename OLD NEW")
	}
	return e.mgr.RenameQueue(ctx.Args().Get(0), ctx.Args().Get(1))
}

func queueSet(ctx *cli.Context, e *env) error {
	name := ctx.Args().First()
	var q *manager.Queue
	for _, cur := range e.mgr.Queues() {
		if cur.Name == name {
			q = &cur
			break
		}
	}
	if q == nil {
		return fmt.Errorf("%w: %s", manager.ErrQueueNotFound, name)
	}
	if ctx.IsSet("max-concurrent") {
		q.MaxConcurrent = ctx.Int("max-concurrent")
	}
	if ctx.IsSet("max-speed") {
		bps, err := transfer.ParseSpeedLimit(ctx.String("max-speed"))
		if err != nil {
			return err
		}
		q.MaxSpeed = bps
	}
	if ctx.IsSet("window") {
		raw := ctx.String("window")
		if strings.EqualFold(raw, "off") {
			q.ScheduleEnabled = false
		} else {
			start, end, err := parseWindow(raw)
			if err != nil {
				return err
			}
			q.ScheduleEnabled, q.StartMinutes, q.EndMinutes = true, start, end
		}
	}
	if ctx.IsSet("quota") {
		raw := ctx.String("quota")
		if strings.EqualFold(raw, "off") {
			q.QuotaEnabled = false
		} else {
			n, err := humanize.ParseBytes(raw)
			if err != nil {
				return fmt.Errorf("quota: %w", err)
			}
			q.QuotaEnabled, q.QuotaBytes = true, int64(n)
		}
	}
	if err := e.mgr.UpdateQueue(*q); err != nil {
		return err
	}
	printQueues(os.Stdout, []manager.Queue{*q})
	return nil
}

var errWindow = errors.New(`window must look like "22:00-06:00"`)

// parseWindow turns "HH:MM-HH:MM" into minutes of the day.
func parseWindow(s string) (start, end int, err error) {
	from, to, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return 0, 0, errWindow
	}
	if start, err = parseClock(from); err != nil {
		return 0, 0, err
	}
	if end, err = parseClock(to); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func parseClock(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, errWindow
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 23 {
		return 0, errWindow
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return 0, errWindow
	}
	return hh*60 + mm, nil
}

func formatWindow(start, end int) string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", start/60, start%60, end/60, end%60)
}

func ruleList(_ *cli.Context, e *env) error {
	rules := e.mgr.DomainRules()
	if len(rules) == 0 {
		fmt.Println("raad: no domain rules")
		return nil
	}
	hosts := make([]string, 0, len(rules))
	for h := range rules {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	for _, h := range hosts {
		fmt.Printf("%s -> %s\n", h, rules[h])
	}
	return nil
}

func ruleSet(ctx *cli.Context, e *env) error {
	if ctx.NArg() != 2 {
		return errors.New("usage: raad rule set HOST QUEUE")
	}
	return e.mgr.SetDomainRule(ctx.Args().Get(0), ctx.Args().Get(1))
}

func ruleRemove(ctx *cli.Context, e *env) error {
	host := ctx.Args().First()
	if host == "" {
		return errors.New("no host provided")
	}
	e.mgr.RemoveDomainRule(host)
	return nil
}
