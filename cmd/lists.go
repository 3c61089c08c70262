package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"

	"github.com/raaddl/raad/internal/pathutil"
	"github.com/raaddl/raad/pkg/manager"
)

func importList(ctx *cli.Context, e *env) error {
	path := ctx.Args().First()
	if path == "" {
		return errors.New("no file provided")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	n, err := e.mgr.ImportList(f)
	fmt.Printf("%d downloads imported\n", n)
	return err
}

func exportList(ctx *cli.Context, e *env) error {
	path := ctx.Args().First()
	if path == "" {
		return errors.New("no file provided")
	}
	format := ctx.String("format")
	if path == "-" {
		if format == "" {
			format = manager.FormatText
		}
		return e.mgr.ExportList(os.Stdout, format)
	}
	if format == "" {
		format = manager.FormatFor(path)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := e.mgr.ExportList(f, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func testURL(ctx *cli.Context, e *env) error {
	raw := ctx.Args().First()
	if raw == "" {
		return errors.New("no url provided")
	}
	fmt.Printf("%s: fetching details, please wait...\n", ctx.App.HelpName)
	tctx, cancel := context.WithTimeout(context.Background(), ctx.Duration("timeout"))
	defer cancel()
	res, err := e.mgr.TestURL(tctx, raw)
	if err != nil {
		return err
	}
	name := pathutil.FileNameFromDisposition(res.Disposition)
	if name == "" {
		name = pathutil.FileNameFromURL(res.FinalURL)
	}
	if name == "" {
		name = "not-defined"
	}
	size := "unknown"
	if res.Length >= 0 {
		size = humanize.IBytes(uint64(res.Length))
	}
	txt := fmt.Sprintf(`
URL Info
Name`+"\t\t"+`: %s
Size`+"\t\t"+`: %s
Category`+"\t"+`: %s
Ranges`+"\t\t"+`: %t
Status`+"\t\t"+`: %d
`, name, size, pathutil.DetectCategory(name), res.AcceptRanges, res.Status)
	if res.ContentType != "" {
		txt += fmt.Sprintf("Content Type\t: %s\n", res.ContentType)
	}
	if res.ETag != "" {
		txt += fmt.Sprintf("ETag\t\t: %s\n", res.ETag)
	}
	if res.LastModified != "" {
		txt += fmt.Sprintf("Last Modified\t: %s\n", res.LastModified)
	}
	if res.FinalURL != "" && res.FinalURL != raw {
		txt += fmt.Sprintf("Redirected To\t: %s\n", res.FinalURL)
	}
	fmt.Println(txt)
	return nil
}

var timeoutFlag = cli.DurationFlag{
	Name:  "timeout",
	Usage: "give up after this long",
	Value: 30 * time.Second,
}
