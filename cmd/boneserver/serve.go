package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/vldzyzy/boneserver/internal/app"
	"github.com/vldzyzy/boneserver/internal/config"
	"github.com/vldzyzy/boneserver/internal/inference"
	"github.com/vldzyzy/boneserver/internal/lifecycle"
	"github.com/vldzyzy/boneserver/internal/logging"
	"github.com/vldzyzy/boneserver/internal/metrics"
	"github.com/vldzyzy/boneserver/internal/modelrunner"
)

func newServeCmd() *cobra.Command {
	var configPath string
	var overrides config.Config

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP application server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, cmd.Flags(), &overrides)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "TOML/YAML config file")
	flags.StringVar(&overrides.ServerIP, "server_ip", "", "bind address")
	flags.IntVar(&overrides.Port, "port", 0, "bind port")
	flags.IntVar(&overrides.NumIOThreads, "num_io_threads", 0, "I/O loop pool size (<=0: GOMAXPROCS)")
	flags.IntVar(&overrides.NumInferThreads, "num_infer_threads", 0, "inference worker count")
	flags.StringVar(&overrides.StaticRootPath, "static_root_path", "", "static file root")
	flags.StringVar(&overrides.YoloModelPath, "yolo_model_path", "", "detector model path")
	flags.StringVar(&overrides.ClsModelPath, "cls_model_path", "", "classifier model path")
	flags.StringVar(&overrides.LogPath, "log_path", "", "log directory")
	flags.StringVar(&overrides.LogLevel, "log_level", "", "trace|debug|info|warn|error|critical|off")

	return cmd
}

func runServe(configPath string, flags *pflag.FlagSet, overrides *config.Config) error {
	loader, err := config.NewLoader(configPath)
	if err != nil {
		return fmt.Errorf("boneserver: %w", err)
	}
	loader.Watch()
	cfg := loader.Snapshot()

	applyFlagOverrides(flags, overrides, &cfg)

	log := logging.Init(logging.Options{
		Level:    logging.ParseLevel(cfg.LogLevel),
		LogPath:  cfg.LogPath,
		Name:     "boneserver",
		ToStderr: true,
	})
	defer log.Close()

	warmupStaticCache(cfg.StaticRootPath)

	pipeline := modelrunner.NewPipeline(
		modelrunner.NullDetector{ModelPath: cfg.YoloModelPath},
		modelrunner.NullClassifier{ModelPath: cfg.ClsModelPath},
	)

	dispatcher := inference.New(pipeline, 100, cfg.NumInferThreads)
	dispatcher.Start()

	reg := metrics.New()

	application, err := app.New("boneserver", cfg.Addr(), cfg.NumIOThreads, cfg.StaticRootPath, 0, dispatcher, reg)
	if err != nil {
		return fmt.Errorf("boneserver: %w", err)
	}

	lifecycle.New(application).Run()
	log.Infof("boneserver: shut down cleanly")
	return nil
}

// applyFlagOverrides layers explicitly-set CLI flags over the
// file/env-derived Config; an unset flag (its zero value) never
// clobbers a value the config file or BONESERVER_* environment already
// supplied.
func applyFlagOverrides(flags *pflag.FlagSet, o *config.Config, cfg *config.Config) {
	setStr := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	setInt := func(name string, dst *int, v int) {
		if flags.Changed(name) {
			*dst = v
		}
	}

	setStr("server_ip", &cfg.ServerIP, o.ServerIP)
	setInt("port", &cfg.Port, o.Port)
	setInt("num_io_threads", &cfg.NumIOThreads, o.NumIOThreads)
	setInt("num_infer_threads", &cfg.NumInferThreads, o.NumInferThreads)
	setStr("static_root_path", &cfg.StaticRootPath, o.StaticRootPath)
	setStr("yolo_model_path", &cfg.YoloModelPath, o.YoloModelPath)
	setStr("cls_model_path", &cfg.ClsModelPath, o.ClsModelPath)
	setStr("log_path", &cfg.LogPath, o.LogPath)
	setStr("log_level", &cfg.LogLevel, o.LogLevel)
}

// warmupStaticCache renders a one-step progress bar when stdout is a
// TTY. It completes immediately, before app.New performs the eager
// directory walk, so it does not track the walk's progress.
func warmupStaticCache(root string) {
	if fi, err := os.Stdout.Stat(); err != nil || fi.Mode()&os.ModeCharDevice == 0 {
		return
	}

	p := mpb.New(mpb.WithWidth(40))
	bar := p.AddBar(1,
		mpb.PrependDecorators(decor.Name("warming static cache: "+root)),
		mpb.AppendDecorators(decor.Percentage()),
	)
	bar.Increment()
	p.Wait()
}
