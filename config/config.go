package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App      AppConfig      `yaml:"app"`
	Video    VideoConfig    `yaml:"video"`
	Audio    AudioConfig    `yaml:"audio"`
	Upload   UploadConfig   `yaml:"upload"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Paths    PathsConfig    `yaml:"paths"`
	Health   HealthConfig   `yaml:"health"`

	// Secrets never come from the YAML file.
	Secrets Secrets `yaml:"-"`
}

type AppConfig struct {
	Env string `yaml:"env"`
}

type VideoConfig struct {
	Width          int     `yaml:"width"`
	Height         int     `yaml:"height"`
	FPS            int     `yaml:"fps"`
	SegmentSec     float64 `yaml:"segment_sec"`
	MinDurationSec float64 `yaml:"min_duration_sec"`
	ImagesRequired int     `yaml:"images_required"`
	Preset         string  `yaml:"preset"`
	CRF            int     `yaml:"crf"`
}

type AudioConfig struct {
	TTSCommand      string            `yaml:"tts_command"`
	DefaultLanguage string            `yaml:"default_language"`
	LanguageMap     map[string]string `yaml:"language_map"`
}

type UploadConfig struct {
	CategoryID   string `yaml:"category_id"`
	Visibility   string `yaml:"visibility"`
	WatchURLBase string `yaml:"watch_url_base"`
}

type ScheduleConfig struct {
	Store           string      `yaml:"store"` // memory | redis
	MaxDelayMinutes int         `yaml:"max_delay_minutes"`
	Redis           RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

type PathsConfig struct {
	Images     string `yaml:"images"`
	Output     string `yaml:"output"`
	Logs       string `yaml:"logs"`
	TokensFile string `yaml:"tokens_file"`
}

type HealthConfig struct {
	Port string `yaml:"port"`
}

// Secrets are read from the environment (or a local .env file).
type Secrets struct {
	TelegramToken       string
	YouTubeClientID     string
	YouTubeClientSecret string
}

// Load reads the YAML file at path (optional) and applies defaults and
// environment secrets.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
		base := filepath.Dir(path)
		cfg.Paths.resolve(base)
	}
	cfg.applyDefaults()
	cfg.Secrets = Secrets{
		TelegramToken:       os.Getenv("TELEGRAM_TOKEN"),
		YouTubeClientID:     os.Getenv("YOUTUBE_CLIENT_ID"),
		YouTubeClientSecret: os.Getenv("YOUTUBE_CLIENT_SECRET"),
	}
	if env := os.Getenv("APP_ENV"); env != "" {
		cfg.App.Env = env
	}
	return &cfg, nil
}

// LoadEnv loads .env for local runs. A missing file is not an error.
func LoadEnv(files ...string) {
	_ = godotenv.Load(files...)
}

// MaxScheduleDelayMinutes is one year, the furthest a +N schedule may reach.
const MaxScheduleDelayMinutes = 365 * 24 * 60

// Validate checks the settings needed to actually run the bot.
func (c *Config) Validate() error {
	if c.Secrets.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN not set")
	}
	if c.Secrets.YouTubeClientID == "" || c.Secrets.YouTubeClientSecret == "" {
		return fmt.Errorf("YOUTUBE_CLIENT_ID or YOUTUBE_CLIENT_SECRET not set")
	}
	switch c.Schedule.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown schedule store %q", c.Schedule.Store)
	}
	if c.Video.ImagesRequired < 1 {
		return fmt.Errorf("video.images_required must be at least 1")
	}
	if c.Schedule.MaxDelayMinutes < 1 || c.Schedule.MaxDelayMinutes > MaxScheduleDelayMinutes {
		return fmt.Errorf("schedule.max_delay_minutes must be between 1 and %d", MaxScheduleDelayMinutes)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "production"
	}

	v := &c.Video
	if v.Width == 0 {
		v.Width = 1080
	}
	if v.Height == 0 {
		v.Height = 1920
	}
	if v.FPS == 0 {
		v.FPS = 30
	}
	if v.SegmentSec <= 0 {
		v.SegmentSec = 3
	}
	if v.MinDurationSec <= 0 {
		v.MinDurationSec = 15
	}
	if v.ImagesRequired == 0 {
		v.ImagesRequired = 4
	}
	if v.Preset == "" {
		v.Preset = "fast"
	}
	if v.CRF == 0 {
		v.CRF = 23
	}

	a := &c.Audio
	if a.TTSCommand == "" {
		a.TTSCommand = "gtts-cli"
	}
	if a.DefaultLanguage == "" {
		a.DefaultLanguage = "en"
	}
	if a.LanguageMap == nil {
		a.LanguageMap = map[string]string{"hi": "hi", "mr": "hi"}
	}

	u := &c.Upload
	if u.CategoryID == "" {
		u.CategoryID = "22"
	}
	if u.Visibility == "" {
		u.Visibility = "public"
	}
	if u.WatchURLBase == "" {
		u.WatchURLBase = "https://www.youtube.com/watch?v="
	}

	s := &c.Schedule
	if s.Store == "" {
		s.Store = "memory"
	}
	if s.MaxDelayMinutes == 0 {
		s.MaxDelayMinutes = MaxScheduleDelayMinutes
	}
	if s.Redis.Host == "" {
		s.Redis.Host = "127.0.0.1"
	}
	if s.Redis.Port == 0 {
		s.Redis.Port = 6379
	}
	if s.Redis.Key == "" {
		s.Redis.Key = "shorts-bot:jobs"
	}

	p := &c.Paths
	if p.Images == "" {
		p.Images = "backgrounds"
	}
	if p.Output == "" {
		p.Output = "output"
	}
	if p.Logs == "" {
		p.Logs = "logs"
	}
	if p.TokensFile == "" {
		p.TokensFile = "user_tokens.json"
	}

	if c.Health.Port == "" {
		c.Health.Port = "8080"
	}
}

// resolve makes relative paths relative to the config file's directory.
func (p *PathsConfig) resolve(base string) {
	for _, ptr := range []*string{&p.Images, &p.Output, &p.Logs, &p.TokensFile} {
		if *ptr != "" && !filepath.IsAbs(*ptr) {
			*ptr = filepath.Join(base, *ptr)
		}
	}
}
