package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/alarm"
	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/config"
	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/database"
	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/handlers"
	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/logging"
	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/services"
	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/session"
	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/sources"
	"github.com/eclipse/paho.golang/paho"
)

const version = "1.0"

func main() {
	hashToken := flag.String("hash-token", "", "Print the bcrypt hash of a viewer token and exit")
	autostart := flag.Bool("autostart", true, "Start a detection session on boot")
	exitOnEnd := flag.Bool("exit-on-end", true, "Exit when the autostarted session ends")
	flag.Parse()

	if *hashToken != "" {
		hash, err := handlers.HashToken(*hashToken)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	cfg := config.LoadConfig()
	log := logging.New(os.Stdout, cfg.LogLevel, cfg.IsDev())
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log.Info("starting drowsiness monitor",
		"version", version,
		"environment", cfg.Environment,
		"ear_threshold", cfg.EARThreshold,
		"consec_frames", cfg.ConsecFrames,
		"source", cfg.FrameSource,
		"source_path", cfg.FrameSourcePath)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	ctx := context.Background()

	var provider services.FormatRouter
	if cfg.LandmarkServiceURL != "" {
		client, err := services.NewLandmarkClient(cfg.LandmarkServiceURL, log)
		if err != nil {
			log.Error("landmark service unavailable", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		if !client.HealthCheck(ctx) {
			log.Warn("landmark service is not serving yet, frames will be skipped until it is")
		}
		provider.Remote = client
	}

	sink, closeSinks := buildAlarmSink(ctx, cfg, log)
	defer closeSinks()

	var observers []session.Observer
	var history handlers.SessionHistory
	var recorder *database.Recorder
	if cfg.DBDriver != "" {
		log.Info("opening session database", "driver", cfg.DBDriver, "dsn", cfg.DSNForLog())
		db, err := database.Open(ctx, cfg.DBDriver, cfg.DSN(), log)
		if err != nil {
			log.Error("database unavailable", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		recorder = database.NewRecorder(db, 256, log)
		observers = append(observers, recorder)
		history = db
	}

	hub := handlers.NewOverlayHub(log)

	runner, err := session.NewRunner(session.Config{
		Thresholds: cfg.Thresholds(),
		LeftEye:    cfg.LeftEye,
		RightEye:   cfg.RightEye,
		SourceName: cfg.FrameSource + ":" + cfg.FrameSourcePath,
	}, session.Deps{
		Provider:  provider,
		Alarm:     alarm.NewController(sink, log),
		Display:   hub,
		Observers: observers,
		Logger:    log,
	})
	if err != nil {
		log.Error("could not create session runner", "error", err)
		os.Exit(1)
	}

	newSource := func() (session.FrameSource, error) {
		return openSource(cfg, log)
	}

	api := handlers.NewAPI(handlers.Options{
		Runner:      runner,
		NewSource:   newSource,
		History:     history,
		Hub:         hub,
		TokenHash:   cfg.OverlayTokenHash,
		CORSOrigins: cfg.CORSOrigins,
		Version:     version,
		Logger:      log,
	})
	httpServer := &http.Server{
		Addr:         cfg.OverlayAddr,
		Handler:      api.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go startHTTPServer(httpServer, log)

	var sessionEnded <-chan struct{}
	if *autostart {
		src, err := newSource()
		if err != nil {
			log.Error("could not open frame source", "error", err)
			os.Exit(1)
		}
		if _, err := runner.Start(src); err != nil {
			log.Error("could not start session", "error", err)
			os.Exit(1)
		}
		if *exitOnEnd {
			sessionEnded = waitSession(runner)
		}
	}

	select {
	case <-done:
		log.Info("shutting down")
	case <-sessionEnded:
		log.Info("session ended, shutting down")
	}

	runner.Stop()
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := runner.Wait(stopCtx); err != nil {
		log.Warn("forced shutdown, session loop still running", "error", err)
	}
	summary := runner.Summary()
	log.Info("final statistics",
		"blinks", summary.Statistics.TotalBlinks,
		"alerts", summary.Statistics.SleepAlerts,
		"frames", summary.FramesProcessed,
		"duration", summary.Duration.Round(time.Second))

	httpShutdownCtx, cancelHTTP := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelHTTP()
	log.Info("stopping HTTP server")
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Error("error shutting down HTTP server", "error", err)
	} else {
		log.Info("HTTP server gracefully stopped")
	}

	log.Info("closing websocket connections")
	hub.Close()

	if recorder != nil {
		flushCtx, cancelFlush := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelFlush()
		if err := recorder.Close(flushCtx); err != nil {
			log.Warn("session recorder did not flush", "error", err)
		}
		if n := recorder.Dropped(); n > 0 {
			log.Warn("session writes were dropped", "count", n)
		}
	}

	log.Info("Goodbye!")
}

func startHTTPServer(srv *http.Server, log *slog.Logger) {
	log.Info("HTTP server listening", "addr", srv.Addr)
	log.Info("overlay stream", "url", "ws://localhost"+srv.Addr+"/ws")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("failed to serve HTTP", "error", err)
		os.Exit(1)
	}
}

func openSource(cfg *config.Config, log *slog.Logger) (session.FrameSource, error) {
	switch cfg.FrameSource {
	case config.SourceImages:
		src, err := sources.OpenImageDir(cfg.FrameSourcePath, sources.ImageDirOptions{
			Pattern: cfg.FramePattern,
			Mirror:  cfg.MirrorFrames,
			FPS:     cfg.FrameFPS,
			Loop:    cfg.LoopFrames,
		}, log)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		src, err := sources.OpenJSONL(cfg.FrameSourcePath, cfg.FrameFPS)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
}

// buildAlarmSink combines the configured sinks. The returned func releases
// their connections.
func buildAlarmSink(ctx context.Context, cfg *config.Config, log *slog.Logger) (alarm.Sink, func()) {
	var sinks alarm.MultiSink
	closers := []func(){}

	if fields := strings.Fields(cfg.AlarmCommand); len(fields) > 0 {
		args := fields[1:]
		if cfg.AlarmSound != "" {
			args = append(args, cfg.AlarmSound)
		}
		sinks = append(sinks, alarm.NewCommandSink(fields[0], args, log))
		log.Info("alarm sound enabled", "command", fields[0], "sound", cfg.AlarmSound)
	}

	if cfg.MQTTBroker != "" {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		client, err := alarm.DialMQTT(dialCtx, cfg.MQTTBroker, cfg.MQTTClientID)
		cancel()
		if err != nil {
			log.Warn("MQTT buzzer disabled", "error", err)
		} else {
			sinks = append(sinks, alarm.NewMQTTSink(client, cfg.MQTTAlarmTopic, log))
			closers = append(closers, func() {
				client.Disconnect(&paho.Disconnect{ReasonCode: 0})
			})
			log.Info("MQTT buzzer enabled", "broker", cfg.MQTTBroker, "topic", cfg.MQTTAlarmTopic)
		}
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	if len(sinks) == 0 {
		log.Warn("no alarm sink configured, alarms are only logged")
		return alarm.NopSink{}, closeAll
	}
	return sinks, closeAll
}

func waitSession(runner *session.Runner) <-chan struct{} {
	ended := make(chan struct{})
	go func() {
		defer close(ended)
		runner.Wait(context.Background())
	}()
	return ended
}
