package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"hlsradio/internal/app"
	"hlsradio/internal/audio"
	"hlsradio/internal/config"
	"hlsradio/internal/hls"
	"hlsradio/internal/logging"
	"hlsradio/internal/netwatch"
	"hlsradio/internal/platform"
	"hlsradio/internal/playback"
	"hlsradio/internal/prefs"
)

// Set by the release build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "hlsradio: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	defaultPath, err := config.DefaultPath()
	if err != nil {
		defaultPath = "config.yaml"
	}
	cfgPath := flag.String("config", defaultPath, "path to the YAML configuration file")
	logLevel := flag.String("log-level", "", "override the configured log level")
	legacy := flag.Bool("legacy-native", false, "play every station directly, without the HLS engine")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("hlsradio %s (%s, %s)\n", version, commit, date)
		return nil
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *legacy {
		cfg.Playback.LegacyNative = true
	}

	log, logFile, err := logging.Open(logging.Options{Level: cfg.Logging.Level, JSON: cfg.Logging.JSON, File: cfg.Logging.File})
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer func() { _ = logFile.Close() }()
	log.Info("starting", "version", version, "config", *cfgPath, "stations", len(cfg.Stations))

	store := prefs.Open(log.Named("prefs"))
	client := &http.Client{}

	out, err := audio.NewOtoOutput()
	if err != nil {
		return fmt.Errorf("init audio: %w", err)
	}
	sink, err := audio.NewSink(audio.SinkOptions{
		Output:    out,
		Client:    client,
		UserAgent: cfg.UserAgent,
		Logger:    log.Named("sink"),
	})
	if err != nil {
		return fmt.Errorf("init sink: %w", err)
	}
	defer sink.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := playback.NewLoop(64, log.Named("loop"))
	go loop.Run(ctx)

	station := cfg.Station(store.String(prefs.KeyLastStation, ""))
	native := new(atomic.Bool)
	native.Store(station.Native)
	legacyNative := cfg.Playback.LegacyNative

	bridge := app.NewBridge(64, log.Named("ui"))
	ctrl, err := playback.New(playback.Options{
		Sink:    sink,
		Engines: hls.NewFactory(cfg.HLS(), client, log.Named("hls")),
		Capabilities: func() playback.Capabilities {
			return playback.Capabilities{
				EngineSupported: true,
				LegacyNative:    legacyNative || native.Load(),
			}
		},
		Dispatcher: loop,
		Prefs:      store,
		Observer:   bridge,
		Logger:     log.Named("playback"),
		Policy:     cfg.Policy(),
		StreamURL:  station.URL,
	})
	if err != nil {
		return fmt.Errorf("init playback: %w", err)
	}

	monitor := netwatch.New(cfg.Netwatch(), client, log.Named("netwatch"))
	go monitor.Run(ctx, ctrl)

	opts := app.Options{
		Player: ctrl,
		Config: cfg,
		Prefs:  store,
		Native: native,
		About:  app.AboutInfo{Version: version, Commit: commit, Date: date},
		Logger: log.Named("app"),
	}

	mpris, err := platform.NewMPRIS(log.Named("mpris"))
	if err != nil {
		log.Warn("media remote unavailable", "error", err)
	}
	if mpris != nil {
		defer mpris.Close()
		opts.Remote = mpris
	}

	p := tea.NewProgram(app.New(opts))
	if mpris != nil {
		mpris.SetSender(p)
	}
	go bridge.Run(ctx, p.Send)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}

	// let the stop run before the loop goes away
	ctrl.Stop()
	flushed := make(chan struct{})
	loop.Post(func() { close(flushed) })
	<-flushed
	cancel()
	<-loop.Done()
	log.Info("stopped")
	return nil
}
