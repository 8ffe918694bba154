// Command glimpse is the push-to-talk dictation engine. It listens for the
// configured global shortcuts, captures microphone audio while a shortcut is
// engaged, and runs each recording through transcription, optional LLM
// cleanup, dictionary replacements, and paste into the focused application.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/LegendarySpy/Glimpse-sub000/internal/capture"
	"github.com/LegendarySpy/Glimpse-sub000/internal/cleanup"
	"github.com/LegendarySpy/Glimpse-sub000/internal/controller"
	"github.com/LegendarySpy/Glimpse-sub000/internal/events"
	"github.com/LegendarySpy/Glimpse-sub000/internal/hotkey"
	"github.com/LegendarySpy/Glimpse-sub000/internal/notify"
	"github.com/LegendarySpy/Glimpse-sub000/internal/observe"
	"github.com/LegendarySpy/Glimpse-sub000/internal/paste"
	"github.com/LegendarySpy/Glimpse-sub000/internal/record"
	"github.com/LegendarySpy/Glimpse-sub000/internal/settings"
	"github.com/LegendarySpy/Glimpse-sub000/internal/store"
	"github.com/LegendarySpy/Glimpse-sub000/pkg/provider/llm/openai"
	"github.com/LegendarySpy/Glimpse-sub000/pkg/provider/stt"
	"github.com/LegendarySpy/Glimpse-sub000/pkg/provider/stt/cloud"
	"github.com/LegendarySpy/Glimpse-sub000/pkg/provider/stt/local"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	dataDir := flag.String("data", defaultDataDir(), "directory for recordings and history")
	settingsPath := flag.String("settings", "", "path to settings.json (default <data>/settings.json)")
	credentialsPath := flag.String("credentials", "", "path to cloud credentials JSON (default <data>/credentials.json)")
	modelsDir := flag.String("models", "", "directory holding local speech models (default <data>/models)")
	ffmpegPath := flag.String("ffmpeg", "ffmpeg", "path to the ffmpeg binary used for MP3 encoding")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	debugAddr := flag.String("debug-addr", "", "optional listen address for /metrics (e.g. 127.0.0.1:9090)")
	listDevices := flag.Bool("list-devices", false, "list audio input devices and exit")
	flag.Parse()

	if *settingsPath == "" {
		*settingsPath = filepath.Join(*dataDir, "settings.json")
	}
	if *credentialsPath == "" {
		*credentialsPath = filepath.Join(*dataDir, "credentials.json")
	}
	if *modelsDir == "" {
		*modelsDir = filepath.Join(*dataDir, "models")
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(*logLevel))

	// ── PortAudio ─────────────────────────────────────────────────────────────
	if err := capture.Init(); err != nil {
		slog.Error("failed to initialise audio subsystem", "err", err)
		return 1
	}
	defer capture.Terminate()

	if *listDevices {
		return printDevices()
	}

	// ── Settings ──────────────────────────────────────────────────────────────
	settingsStore, err := settings.NewStore(*settingsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "glimpse: %v\n", err)
		return 1
	}
	env := settings.ReadEnv()
	snap := settingsStore.Snapshot()
	env.Apply(&snap)
	if err := settingsStore.Update(snap); err != nil {
		slog.Warn("failed to persist environment overrides", "err", err)
	}

	slog.Info("glimpse starting",
		"settings", *settingsPath,
		"data", *dataDir,
		"transcription_mode", snap.TranscriptionMode,
		"log_level", *logLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "glimpse",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Credentials (cloud mode) ──────────────────────────────────────────────
	creds, err := loadCredentials(*credentialsPath)
	if err != nil {
		slog.Warn("cloud credentials unavailable", "path", *credentialsPath, "err", err)
	}

	// ── History store ─────────────────────────────────────────────────────────
	history, err := store.Open(filepath.Join(*dataDir, "history.json"))
	if err != nil {
		slog.Error("failed to open history store", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	localOpts := []local.Option{
		local.WithWordTimestamps(env.IncludeWordTimestamps),
	}
	if env.APIURL != "" {
		localOpts = append(localOpts, local.WithServer(env.APIURL, env.APIKey))
	}
	localTranscriber := local.New(localOpts...)
	defer localTranscriber.Close()

	cloudClient := cloud.NewClient()
	cleaner := buildCleaner(snap)

	persister := &record.Persister{
		BaseDir:    filepath.Join(*dataDir, "recordings"),
		FFmpegPath: *ffmpegPath,
	}

	bus := events.NewBus()
	logBusEvents(ctx, bus)

	// ── Controller ────────────────────────────────────────────────────────────
	capturer := capture.New(snap.MicrophoneDeviceID)
	ctrl := controller.New(controller.Deps{
		Settings: settingsStore,
		Bus:      bus,
		Recorder: capturer,
		Paster:   paste.New(),
		History:  history,
		Persist:  persister.Save,
		LocalTranscribe: func(ctx context.Context, req stt.Request) (*stt.Result, error) {
			key := settingsStore.Snapshot().LocalModelKey
			model, err := modelFromKey(key, *modelsDir)
			if err != nil {
				return nil, err
			}
			return localTranscriber.Transcribe(ctx, model, req)
		},
		CloudPreflight: func() error {
			return cloud.Preflight(creds, time.Now())
		},
		CloudTranscribe: func(ctx context.Context, audio []byte, req cloud.Request) (*stt.Result, error) {
			req.Audio = audio
			return cloudClient.Transcribe(ctx, creds, req)
		},
		Cleaner:    cleaner,
		Decode:     record.Decode,
		RemoveFile: os.Remove,
		Notify:     showNotification,
		Metrics:    observe.DefaultMetrics(),
	})
	defer ctrl.Close()

	// ── Hotkeys ───────────────────────────────────────────────────────────────
	router := hotkey.NewRouter(ctrl.HandleEvent)
	if err := router.Configure(snap.HoldShortcut, snap.ToggleShortcut, snap.SmartShortcut); err != nil {
		slog.Error("invalid shortcut configuration", "err", err)
		return 1
	}

	slog.Info("ready",
		"hold", shortcutLabel(snap.HoldShortcut),
		"toggle", shortcutLabel(snap.ToggleShortcut),
		"smart", shortcutLabel(snap.SmartShortcut),
	)

	// ── Run loop ──────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return router.Run(gctx)
	})

	if *debugAddr != "" {
		g.Go(func() error {
			return serveDebug(gctx, *debugAddr)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// defaultDataDir places Glimpse data under the OS config directory, falling
// back to a dot directory in $HOME.
func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "glimpse")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".glimpse"
	}
	return filepath.Join(home, ".glimpse")
}

// loadCredentials reads the cloud session file written at sign-in.
func loadCredentials(path string) (cloud.Credentials, error) {
	var creds cloud.Credentials
	data, err := os.ReadFile(path)
	if err != nil {
		return creds, err
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return creds, fmt.Errorf("parse %q: %w", path, err)
	}
	return creds, nil
}

// buildCleaner constructs the LLM cleanup provider from the current
// settings. Returns nil when cleanup is disabled or no model is configured;
// the controller treats a nil cleaner as cleanup-off.
func buildCleaner(snap settings.Settings) controller.Cleaner {
	if !snap.LLMCleanupEnabled || snap.LLMModel == "" {
		return nil
	}
	baseURL := cleanup.ResolveBaseURL(snap.LLMProvider, snap.LLMEndpoint)
	var opts []openai.Option
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	provider, err := openai.New(snap.LLMAPIKey, snap.LLMModel, opts...)
	if err != nil {
		slog.Warn("LLM cleanup unavailable", "provider", snap.LLMProvider, "err", err)
		return nil
	}
	return cleanup.New(provider, snap.LLMModel, snap.UserContext, snap.UserName)
}

// modelFromKey resolves an installed-model registry key to a loadable model
// description. Engine family is encoded in the key prefix.
func modelFromKey(key, modelsDir string) (local.Model, error) {
	if key == "" {
		return local.Model{}, errors.New("no local model selected; set local_model_key in settings")
	}
	m := local.Model{Key: key}
	switch {
	case strings.HasPrefix(key, "whisper"):
		m.Engine = local.Engine{Kind: local.KindWhisper}
		m.Path = filepath.Join(modelsDir, key+".bin")
	case strings.HasPrefix(key, "parakeet"):
		m.Engine = local.Engine{Kind: local.KindParakeet, Int8: strings.Contains(key, "int8")}
		m.Path = filepath.Join(modelsDir, key)
	case strings.HasPrefix(key, "moonshine"):
		variant := strings.TrimPrefix(key, "moonshine-")
		m.Engine = local.Engine{Kind: local.KindMoonshine, Variant: variant}
		m.Path = filepath.Join(modelsDir, key)
	default:
		return local.Model{}, fmt.Errorf("unrecognised model key %q", key)
	}
	return m, nil
}

// showNotification routes controller notifications to the OS toast surface.
func showNotification(level, message string) {
	switch level {
	case "error":
		notify.Error(message)
	case "warn":
		notify.Warn(message)
	default:
		notify.Info(message)
	}
}

// logBusEvents mirrors lifecycle events into the debug log so a headless run
// is observable.
func logBusEvents(ctx context.Context, bus *events.Bus) {
	ch, cancel := bus.Subscribe(64)
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				slog.Debug("event", "name", ev.Name, "payload", ev.Payload)
			}
		}
	}()
}

// serveDebug exposes Prometheus metrics on addr until ctx is cancelled.
func serveDebug(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("debug listener started", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// shortcutLabel renders a binding for the startup log.
func shortcutLabel(s settings.Shortcut) string {
	if !s.Enabled {
		return "(disabled)"
	}
	return s.Accelerator
}

// newLogger builds the process logger at the requested level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// printDevices lists capture devices for the -list-devices flag.
func printDevices() int {
	devices, err := capture.ListDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "glimpse: %v\n", err)
		return 1
	}
	for _, d := range devices {
		marker := " "
		if d.Default {
			marker = "*"
		}
		fmt.Printf("%s %-40s channels=%d rate=%.0f\n", marker, d.Name, d.MaxInputChannels, d.DefaultSampleRate)
	}
	return 0
}
