package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"couchplay/api"
	"couchplay/config"
	"couchplay/handlers"
	"couchplay/services/episodes"
	"couchplay/services/playback"
	"couchplay/services/server"
	"couchplay/services/stream"
	"couchplay/services/subtitles"
	"couchplay/utils"

	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/spf13/afero"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	fmt.Println("🚀 couchplay starting...")

	// Determine config path (env or default)
	configPath := os.Getenv("COUCHPLAY_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	// Init config manager and load settings (creates defaults if missing)
	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			multiWriter := io.MultiWriter(os.Stdout, fileWriter)
			log.SetOutput(multiWriter)
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	// Generate the pairing PIN on first run
	settings.Server.PIN = strings.TrimSpace(settings.Server.PIN)
	if settings.Server.PIN == "" {
		pin, err := utils.GeneratePIN()
		if err != nil {
			log.Fatalf("failed to generate PIN: %v", err)
		}
		settings.Server.PIN = pin
		if err := cfgManager.Save(settings); err != nil {
			log.Fatalf("failed to persist generated PIN: %v", err)
		}
		fmt.Println("📱 Configure your frontend to use this 6-digit PIN for authentication.")
	}
	fmt.Printf("🔑 couchplay PIN: %s\n", settings.Server.PIN)

	// A stable device id keeps server-side transcode sessions attributable
	if strings.TrimSpace(settings.MediaServer.DeviceID) == "" {
		settings.MediaServer.DeviceID = uuid.NewString()
		if err := cfgManager.Save(settings); err != nil {
			log.Fatalf("failed to persist device id: %v", err)
		}
	}

	if settings.MediaServer.BaseURL == "" || settings.MediaServer.Token == "" {
		log.Printf("Warning: media server is not configured; set mediaServer.baseUrl and mediaServer.token in %s", configPath)
	}

	client := server.NewClient(
		settings.MediaServer.BaseURL,
		settings.MediaServer.Token,
		settings.MediaServer.UserID,
		settings.MediaServer.DeviceID,
		settings.MediaServer.DeviceName,
		time.Duration(settings.MediaServer.RequestTimeoutSec)*time.Second,
	)

	planner := stream.NewPlanner(client, stream.Profile{
		NativeVideoCodecs:    settings.Playback.NativeVideoCodecs,
		TranscodeAudioCodecs: settings.Playback.TranscodeAudioCodecs,
		MaxAudioChannels:     settings.Playback.MaxAudioChannels,
		MaxStreamingBitrate:  settings.Playback.MaxStreamingBitrate,
		SubtitleLanguage:     settings.Subtitles.PreferredLanguage,
	})
	navigator := episodes.NewNavigator(client)
	loader := subtitles.NewLoader(afero.NewOsFs(), settings.Subtitles.CacheDirectory, client)
	engine := playback.NewRemoteEngine()

	playerService := playback.NewService(playback.Config{
		NativeAudioCodecs: settings.Playback.NativeAudioCodecs,
		SeekStepMs:        int64(settings.Playback.SeekStepSeconds) * 1000,
		SeekCommitTimeout: time.Duration(settings.Playback.SeekCommitTimeoutSec) * time.Second,
		ProgressInterval:  time.Duration(settings.Playback.ProgressIntervalSec) * time.Second,
		CueTick:           time.Duration(settings.Playback.CueTickMs) * time.Millisecond,
		OSDHideDelay:      time.Duration(settings.Playback.OSDHideDelaySec) * time.Second,
		BurnInSubtitles:   settings.Playback.BurnInSubtitles,
	}, planner, navigator, loader, client, engine)

	r := utils.NewRouter()
	playerHandler := handlers.NewPlayerHandler(playerService, client, engine)
	settingsHandler := handlers.NewSettingsHandler(cfgManager)
	api.Register(r, playerHandler, settingsHandler, settings.Server.PIN)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(r)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("[main] listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Printf("[main] shutting down")
	playerService.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[main] shutdown: %v", err)
	}
}
