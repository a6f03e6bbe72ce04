package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-errors/errors"
	"github.com/spf13/cobra"

	web2fb "github.com/jyellick/web2fb-sub000"
	"github.com/jyellick/web2fb-sub000/capture"
	"github.com/jyellick/web2fb-sub000/capture/cdp"
	"github.com/jyellick/web2fb-sub000/capture/filesrc"
	"github.com/jyellick/web2fb-sub000/capture/httpsrc"
	"github.com/jyellick/web2fb-sub000/config"
	"github.com/jyellick/web2fb-sub000/fbdev"
)

var rootCmd = &cobra.Command{
	Use:          `web2fb`,
	Short:        `web2fb mirrors a web page onto a framebuffer with live widgets`,
	Long:         `web2fb mirrors a web page onto a framebuffer with live widgets`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		err := run()
		if err != nil {
			if stackFramer, ok := err.(interface{ ErrorStack() string }); debug && ok {
				fmt.Fprintln(os.Stderr, stackFramer.ErrorStack())
			}
		}
		return err
	},
}

var (
	debug      bool
	configPath string
	devicePath string
	pageURL    string
)

func init() {
	cobra.EnablePrefixMatching = true
	rootCmd.PersistentFlags().BoolVar(&debug, `debug`, false, `debug errors`)
	rootCmd.Flags().StringVarP(&configPath, `config`, `c`, `web2fb.yaml`, `configuration file`)
	rootCmd.Flags().StringVar(&devicePath, `device`, ``, `framebuffer device, overrides the configuration`)
	rootCmd.Flags().StringVar(&pageURL, `url`, ``, `page URL, overrides the configuration`)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if devicePath != `` {
		cfg.Device.Path = devicePath
	}
	if pageURL != `` {
		cfg.Source.URL = pageURL
	}

	logger := newLogger(cfg.LogLevel)

	dev, err := fbdev.Open(cfg.Device.Path, fbdev.Geometry{
		Width:  cfg.Device.FallbackWidth,
		Height: cfg.Device.FallbackHeight,
	}, logger)
	if err != nil {
		return err
	}
	defer dev.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := newSource(ctx, cfg, dev.Geometry(), logger)
	if err != nil {
		return err
	}
	defer source.Close()

	defs, err := cfg.Definitions()
	if err != nil {
		return err
	}
	hide := make([]string, 0, len(defs))
	for _, o := range cfg.Overlays {
		hide = append(hide, `#`+o.Name)
	}

	pipeline, err := web2fb.New(dev, source, web2fb.Options{
		Defs:              defs,
		WindowSize:        cfg.WindowSize,
		RecaptureInterval: cfg.RecaptureInterval.Or(30 * time.Second),
		RecoveryCooldown:  cfg.RecoveryCooldown.Or(10 * time.Second),
		HideSelectors:     hide,
		Detector:          cfg.DetectorParams(),
		Stress:            cfg.StressConfig(),
		Logger:            logger,
	})
	if err != nil {
		return err
	}
	if err := pipeline.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	logger.Info(`shutting down`)
	pipeline.Stop()
	return nil
}

func newSource(ctx context.Context, cfg *config.Config, geom fbdev.Geometry, logger *slog.Logger) (capture.Source, error) {
	switch cfg.Source.Kind {
	case ``, `cdp`:
		return cdp.New(ctx, cdp.Options{
			PageURL:      cfg.Source.URL,
			Width:        geom.Width,
			Height:       geom.Height,
			PollInterval: time.Duration(cfg.Source.PollInterval),
		}, logger)
	case `http`:
		return httpsrc.New(httpsrc.Options{
			Endpoint: cfg.Source.Endpoint,
			PageURL:  cfg.Source.URL,
			Width:    geom.Width,
			Height:   geom.Height,
			Timeout:  time.Duration(cfg.Source.Timeout),
		}), nil
	case `file`:
		return filesrc.New(cfg.Source.Path), nil
	}
	return nil, errors.Errorf(`unknown source kind %q`, cfg.Source.Kind)
}

func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case `debug`:
		lvl = slog.LevelDebug
	case `warn`:
		lvl = slog.LevelWarn
	case `error`:
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
