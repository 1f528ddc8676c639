package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server      ServerSettings      `json:"server"`
	MediaServer MediaServerSettings `json:"mediaServer"`
	Playback    PlaybackSettings    `json:"playback"`
	Subtitles   SubtitleSettings    `json:"subtitles"`
	Cache       CacheSettings       `json:"cache"`
	Log         LogConfig           `json:"log"`
}

// ServerSettings configures the local control API the frontend talks to.
type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	PIN  string `json:"pin"`
}

// MediaServerSettings configures the upstream Jellyfin/Emby connection.
type MediaServerSettings struct {
	BaseURL           string `json:"baseUrl"`
	Token             string `json:"token"`
	UserID            string `json:"userId"`
	DeviceID          string `json:"deviceId"`
	DeviceName        string `json:"deviceName"`
	RequestTimeoutSec int    `json:"requestTimeoutSec"`
}

// PlaybackSettings tunes plan building and the live session.
type PlaybackSettings struct {
	NativeVideoCodecs    []string `json:"nativeVideoCodecs"` // codecs the device decodes without transcoding
	NativeAudioCodecs    []string `json:"nativeAudioCodecs"` // codecs switchable in-container without a restart
	TranscodeAudioCodecs string   `json:"transcodeAudioCodecs"`
	MaxAudioChannels     int      `json:"maxAudioChannels"`
	MaxStreamingBitrate  int      `json:"maxStreamingBitrate"`
	BurnInSubtitles      bool     `json:"burnInSubtitles"`
	SeekStepSeconds      int      `json:"seekStepSeconds"`
	SeekCommitTimeoutSec int      `json:"seekCommitTimeoutSec"`
	ProgressIntervalSec  int      `json:"progressIntervalSec"`
	CueTickMs            int      `json:"cueTickMs"`
	OSDHideDelaySec      int      `json:"osdHideDelaySec"`
}

// SubtitleSettings configures downloaded subtitle handling.
type SubtitleSettings struct {
	CacheDirectory    string `json:"cacheDirectory"`
	PreferredLanguage string `json:"preferredLanguage"`
}

type CacheSettings struct {
	Directory string `json:"directory"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	File       string `json:"file"`
	Level      string `json:"level"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// DefaultSettings returns sane defaults for a fresh install.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{Host: "0.0.0.0", Port: 7788},
		MediaServer: MediaServerSettings{
			BaseURL:           "",
			Token:             "",
			UserID:            "",
			DeviceID:          "",
			DeviceName:        "couchplay",
			RequestTimeoutSec: 15,
		},
		Playback: PlaybackSettings{
			NativeVideoCodecs:    []string{"h264", "hevc"},
			NativeAudioCodecs:    []string{"aac", "mp3"},
			TranscodeAudioCodecs: "aac,mp3,ac3",
			MaxAudioChannels:     6,
			MaxStreamingBitrate:  120000000,
			BurnInSubtitles:      false,
			SeekStepSeconds:      10,
			SeekCommitTimeoutSec: 5,
			ProgressIntervalSec:  5,
			CueTickMs:            80,
			OSDHideDelaySec:      5,
		},
		Subtitles: SubtitleSettings{
			CacheDirectory:    "cache/subtitles",
			PreferredLanguage: "en",
		},
		Cache: CacheSettings{Directory: "cache"},
		Log: LogConfig{
			File:       "cache/logs/couchplay.log",
			Level:      "info",
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
	}
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// EnsureDir ensures parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads settings.json from disk or creates defaults if missing.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		// create with defaults
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}
	data, err := os.ReadFile(m.path)
	if err != nil {
		return Settings{}, err
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, err
	}

	// Backfill defaults for newly introduced settings when config predates them
	if s.MediaServer.RequestTimeoutSec == 0 {
		s.MediaServer.RequestTimeoutSec = 15
	}
	if strings.TrimSpace(s.MediaServer.DeviceName) == "" {
		s.MediaServer.DeviceName = "couchplay"
	}
	if len(s.Playback.NativeVideoCodecs) == 0 {
		s.Playback.NativeVideoCodecs = []string{"h264", "hevc"}
	}
	if len(s.Playback.NativeAudioCodecs) == 0 {
		s.Playback.NativeAudioCodecs = []string{"aac", "mp3"}
	}
	if strings.TrimSpace(s.Playback.TranscodeAudioCodecs) == "" {
		s.Playback.TranscodeAudioCodecs = "aac,mp3,ac3"
	}
	if s.Playback.MaxAudioChannels == 0 {
		s.Playback.MaxAudioChannels = 6
	}
	if s.Playback.MaxStreamingBitrate == 0 {
		s.Playback.MaxStreamingBitrate = 120000000
	}
	if s.Playback.SeekStepSeconds == 0 {
		s.Playback.SeekStepSeconds = 10
	}
	if s.Playback.SeekCommitTimeoutSec == 0 {
		s.Playback.SeekCommitTimeoutSec = 5
	}
	if s.Playback.ProgressIntervalSec == 0 {
		s.Playback.ProgressIntervalSec = 5
	}
	if s.Playback.CueTickMs == 0 {
		s.Playback.CueTickMs = 80
	}
	if s.Playback.OSDHideDelaySec == 0 {
		s.Playback.OSDHideDelaySec = 5
	}
	if strings.TrimSpace(s.Subtitles.CacheDirectory) == "" {
		s.Subtitles.CacheDirectory = "cache/subtitles"
	}
	if strings.TrimSpace(s.Subtitles.PreferredLanguage) == "" {
		s.Subtitles.PreferredLanguage = "en"
	}
	if strings.TrimSpace(s.Cache.Directory) == "" {
		s.Cache.Directory = "cache"
	}
	if strings.TrimSpace(s.Log.File) == "" {
		s.Log.File = "cache/logs/couchplay.log"
	}
	if s.Log.MaxSize == 0 {
		s.Log.MaxSize = 50
	}
	if s.Log.MaxBackups == 0 {
		s.Log.MaxBackups = 3
	}
	if s.Log.MaxAge == 0 {
		s.Log.MaxAge = 7
	}

	return s, nil
}

// Save writes settings atomically (tmp file + rename).
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.path)
}
