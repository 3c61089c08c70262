package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"github.com/raaddl/raad/internal/config"
	"github.com/raaddl/raad/internal/metrics"
	"github.com/raaddl/raad/internal/power"
	"github.com/raaddl/raad/internal/session"
	"github.com/raaddl/raad/pkg/logger"
	"github.com/raaddl/raad/pkg/manager"
)

var globalFlags = []cli.Flag{
	cli.StringFlag{
		Name:   "config, c",
		Usage:  "path of the YAML configuration file",
		EnvVar: "RAAD_CONFIG",
	},
	cli.StringFlag{
		Name:  "env-file",
		Usage: "dotenv file loaded before reading RAAD_* variables",
	},
	cli.StringFlag{
		Name:  "session",
		Usage: "override the session location",
	},
}

// env is what a command needs to talk to a manager.
type env struct {
	cfg     config.Config
	dir     string
	fs      afero.Fs
	log     logger.Logger
	store   session.Store
	metrics *metrics.Metrics
	mgr     *manager.Manager
}

type envOpts struct {
	// held keeps admission off; commands that only edit the session use it.
	held bool
	// ephemeral skips the session store.
	ephemeral bool
	notifier  manager.Notifier
}

func loadConfig(ctx *cli.Context) (config.Config, string, error) {
	if err := config.LoadDotEnv(ctx.GlobalString("env-file")); err != nil {
		return config.Config{}, "", err
	}
	dir, err := config.Dir()
	if err != nil {
		return config.Config{}, "", err
	}
	path := ctx.GlobalString("config")
	optional := path == ""
	if optional {
		path = filepath.Join(dir, "config.yaml")
	}
	cfg, err := config.LoadFromFile(afero.NewOsFs(), path, optional)
	if err != nil {
		return config.Config{}, "", err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, "", err
	}
	if s := ctx.GlobalString("session"); s != "" {
		cfg.Session.Path = s
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, "", err
	}
	return cfg, dir, nil
}

func openEnv(ctx *cli.Context, o envOpts) (*env, error) {
	cfg, dir, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, dir: dir, fs: afero.NewOsFs(), metrics: metrics.New(true)}
	zl, err := logger.NewZapLogger(cfg.ZapConfig())
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	e.log = zl
	settings, err := cfg.Settings()
	if err != nil {
		e.log.Close()
		return nil, err
	}
	options := []manager.Option{
		manager.WithFs(e.fs),
		manager.WithLogger(e.log.Named("manager")),
		manager.WithSettings(settings),
		manager.WithRecorder(e.metrics),
		manager.WithPowerProbe(power.Default()),
	}
	if o.notifier != nil {
		options = append(options, manager.WithNotifier(o.notifier))
	}
	if o.held {
		options = append(options, manager.WithHeldAdmission())
	}
	if !o.ephemeral {
		e.store, err = cfg.OpenStore(e.fs, dir)
		if err != nil {
			e.log.Close()
			return nil, err
		}
		options = append(options, manager.WithStore(e.store))
	}
	e.mgr = manager.New(options...)
	if !o.ephemeral {
		if err := e.mgr.Load(); err != nil {
			e.close()
			return nil, fmt.Errorf("load session: %w", err)
		}
		e.applySettings(settings)
	}
	for category, folder := range cfg.Categories {
		if err := e.mgr.SetCategoryFolder(category, folder); err != nil {
			e.close()
			return nil, err
		}
	}
	return e, nil
}

// applySettings puts the configured policies over the ones restored from
// the session.
func (e *env) applySettings(s manager.Settings) {
	e.mgr.SetMaxConcurrent(s.MaxConcurrent)
	e.mgr.SetGlobalMaxSpeed(s.GlobalMaxSpeed)
	e.mgr.SetPowerPolicy(s.PauseOnBattery, s.ResumeOnAC)
	e.mgr.SetRetryPolicy(s.DefaultRetryMax, s.DefaultRetryDelaySec)
}

func (e *env) close() {
	if err := e.mgr.Close(); err != nil {
		e.log.Error("close manager: %v", err)
	}
	_ = e.log.Close()
}

// action wraps a command body that needs a manager. Errors come back
// prefixed with the command name.
func action(name string, o envOpts, fn func(*cli.Context, *env) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		if ctx.Args().First() == "help" {
			return cli.ShowCommandHelp(ctx, ctx.Command.Name)
		}
		e, err := openEnv(ctx, o)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		defer e.close()
		if err := fn(ctx, e); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}
}
