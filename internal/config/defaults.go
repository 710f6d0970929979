package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/knadh/koanf/v2"
)

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"server.host":             "0.0.0.0",
		"server.port":             5000,
		"server.rate_limit":       2.0,
		"server.rate_burst":       5,
		"server.upload_max_bytes": int64(1 << 20),
		"server.shutdown_timeout": 10 * time.Second,

		"workspace.dir":                filepath.Join(os.TempDir(), "mediafetch"),
		"workspace.min_artifact_bytes": int64(1024),
		"workspace.sweep_interval":     5 * time.Minute,
		"workspace.orphan_ttl":         2 * time.Hour,

		"engine.binary":         "yt-dlp",
		"engine.timeout":        30 * time.Minute,
		"engine.probe_timeout":  2 * time.Minute,
		"engine.retries":        3,
		"engine.probe_retries":  2,
		"engine.socket_timeout": 30,
		"engine.sleep_interval": 0,

		"transcoder.binary":          "ffmpeg",
		"transcoder.timeout":         15 * time.Minute,
		"transcoder.audio_bitrate":   "192k",
		"transcoder.video_container": "webm",

		"credentials.upload_path":   filepath.Join("data", "cookies.txt"),
		"credentials.operator_path": "cookies.txt",

		"pacing.enabled": true,

		"tls.ca_bundle": "",

		"logging.level":  "info",
		"logging.format": "pretty",
		"logging.file":   "",

		"frontend.dir": "",
	}

	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return err
		}
	}
	return nil
}
