package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"

	"github.com/raaddl/raad/cmd/common"
	"github.com/raaddl/raad/pkg/manager"
	"github.com/raaddl/raad/pkg/transfer"
)

var lsFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "status",
		Usage: "only show downloads with this status (Queued, Active, Paused, Done, Error, Canceled)",
	},
	cli.StringFlag{
		Name:  "queue, q",
		Usage: "only show downloads of this queue",
	},
	cli.BoolFlag{
		Name:  "long, l",
		Usage: "show full ids and paths",
	},
}

func list(ctx *cli.Context, e *env) error {
	infos := filterTasks(e.mgr.Tasks(), ctx.String("status"), ctx.String("queue"))
	if len(infos) == 0 {
		fmt.Println("raad: no downloads found")
		return nil
	}
	printTasks(os.Stdout, infos, ctx.Bool("long"))
	return nil
}

func filterTasks(infos []manager.Info, status, queue string) []manager.Info {
	out := infos[:0:0]
	for _, info := range infos {
		if status != "" && !strings.EqualFold(string(info.Status), status) {
			continue
		}
		if queue != "" && info.Queue != queue {
			continue
		}
		out = append(out, info)
	}
	return out
}

func printTasks(w io.Writer, infos []manager.Info, long bool) {
	txt := "------------------------------------------------------------------------------"
	txt += "\n|Num|          Name           |    ID    |  Status  |    Progress     | Queue"
	txt += "\n|---|-------------------------|----------|----------|-----------------|------"
	for i, info := range infos {
		name := filepath.Base(info.Path)
		id := shortID(info.ID)
		if long {
			id = info.ID
		} else {
			name = common.Beaut(common.ShortenName(name, 23), 23)
		}
		txt += fmt.Sprintf("\n|%s| %s | %s | %s | %s | %s",
			common.Beaut(fmt.Sprint(i+1), 3),
			name,
			common.Beaut(id, 8),
			common.Beaut(string(info.Status), 8),
			common.Beaut(progress(info), 15),
			info.Queue,
		)
		if info.Status == transfer.StatusPaused && info.PauseReason != transfer.PauseNone {
			txt += fmt.Sprintf(" (%s)", info.PauseReason)
		}
		if long && info.Error != "" {
			txt += "\n      error: " + info.Error
		}
	}
	txt += "\n------------------------------------------------------------------------------"
	fmt.Fprintln(w, txt)
}

func progress(info manager.Info) string {
	received := humanize.IBytes(uint64(max(info.Received, 0)))
	if info.Total <= 0 {
		return received
	}
	return fmt.Sprintf("%d%% of %s", info.Received*100/info.Total, humanize.IBytes(uint64(info.Total)))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

var errAmbiguousID = errors.New("id prefix matches more than one download")

// resolveID accepts a full id or a unique prefix of one.
func resolveID(mgr *manager.Manager, prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", errors.New("no download id provided")
	}
	var match string
	for _, info := range mgr.Tasks() {
		if info.ID == prefix {
			return prefix, nil
		}
		if strings.HasPrefix(info.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("%w: %s", errAmbiguousID, prefix)
			}
			match = info.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", manager.ErrNotFound, prefix)
	}
	return match, nil
}
