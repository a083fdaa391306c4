package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
		Mode string `yaml:"mode"`
	} `yaml:"server"`
	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	} `yaml:"redis"`
	MinIO struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Bucket    string `yaml:"bucket"`
		UseSSL    bool   `yaml:"use_ssl"`
		Domain    string `yaml:"domain"`
	} `yaml:"minio"`
	Google struct {
		APIKeys     []string `yaml:"api_keys"`
		VideoModel  string   `yaml:"video_model"`
		ScriptModel string   `yaml:"script_model"`
	} `yaml:"google"`
	ElevenLabs struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"elevenlabs"`
	FFmpeg struct {
		Bin      string `yaml:"bin"`
		Probe    string `yaml:"probe"`
		FontsDir string `yaml:"fonts_dir"`
	} `yaml:"ffmpeg"`
	Render struct {
		LeadTrimSeconds float64 `yaml:"lead_trim_seconds"`
		TailTrimSeconds float64 `yaml:"tail_trim_seconds"`
		PollBudgetSec   int     `yaml:"poll_budget_seconds"`
	} `yaml:"render"`
}

var AppConfig *Config

func InitConfig() {
	path := os.Getenv("BLOCKREEL_CONFIG")
	if path == "" {
		path = "config/config.yaml"
	}
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("open config file failed: %v", err)
	}
	defer f.Close()
	decoder := yaml.NewDecoder(f)
	AppConfig = &Config{}
	if err := decoder.Decode(AppConfig); err != nil {
		log.Fatalf("parse config file failed: %v", err)
	}
	applyDefaults(AppConfig)
}

func applyDefaults(c *Config) {
	if c.Google.VideoModel == "" {
		c.Google.VideoModel = "veo-3.1-generate-preview"
	}
	if c.Google.ScriptModel == "" {
		c.Google.ScriptModel = "gemini-2.5-flash"
	}
	if c.ElevenLabs.BaseURL == "" {
		c.ElevenLabs.BaseURL = "https://api.elevenlabs.io/v1"
	}
	if c.FFmpeg.Bin == "" {
		c.FFmpeg.Bin = "ffmpeg"
	}
	if c.FFmpeg.Probe == "" {
		c.FFmpeg.Probe = "ffprobe"
	}
	if c.Render.LeadTrimSeconds == 0 {
		c.Render.LeadTrimSeconds = 0.25
	}
	if c.Render.TailTrimSeconds == 0 {
		c.Render.TailTrimSeconds = 0.25
	}
	if c.Render.PollBudgetSec == 0 {
		c.Render.PollBudgetSec = 600
	}
}
