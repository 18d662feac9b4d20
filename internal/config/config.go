package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Host      string          `mapstructure:"host"`
	Port      int             `mapstructure:"port"`
	Verbose   int             `mapstructure:"verbose"`
	Signaling SignalingConfig `mapstructure:"signaling"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Video     VideoConfig     `mapstructure:"video"`
	Tracking  TrackingConfig  `mapstructure:"tracking"`
	Accuracy  AccuracyConfig  `mapstructure:"accuracy"`
	WebRTC    WebRTCConfig    `mapstructure:"webrtc"`
}

type SignalingConfig struct {
	// Transport is "tcp" or "websocket".
	Transport string `mapstructure:"transport"`
	Path      string `mapstructure:"path"`
	ReadLimit int64  `mapstructure:"read_limit"`
	// PingPeriod keeps websocket signaling alive while ICE runs.
	PingPeriod time.Duration `mapstructure:"ping_period"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type VideoConfig struct {
	Width     int    `mapstructure:"width"`
	Height    int    `mapstructure:"height"`
	Radius    int    `mapstructure:"radius"`
	FPS       int    `mapstructure:"fps"`
	ClockRate uint32 `mapstructure:"clock_rate"`
}

// FrameDuration is the pts increment between consecutive frames.
func (v VideoConfig) FrameDuration() int64 {
	if v.FPS <= 0 {
		return 0
	}
	return int64(v.ClockRate) / int64(v.FPS)
}

type TrackingConfig struct {
	QueueSize                  int    `mapstructure:"queue_size"`
	DropPolicy                 string `mapstructure:"drop_policy"`
	Detector                   string `mapstructure:"detector"`
	AccumulatorResolutionRatio int    `mapstructure:"accumulator_resolution_ratio"`
	MinCenterDistance          int    `mapstructure:"min_center_distance"`
	ShmPath                    string `mapstructure:"shm_path"`
}

type AccuracyConfig struct {
	// MaxRecordAge evicts unmatched ground truth older than this. Zero keeps
	// records until matched.
	MaxRecordAge time.Duration `mapstructure:"max_record_age"`
	PlotPath     string        `mapstructure:"plot_path"`
}

type WebRTCConfig struct {
	ICEServers []string `mapstructure:"ice_servers"`
}

// Addr is the signaling endpoint host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("verbose", 0)

	v.SetDefault("signaling.transport", "tcp")
	v.SetDefault("signaling.path", "/api/ws/signal")
	v.SetDefault("signaling.read_limit", 65536)
	v.SetDefault("signaling.ping_period", "54s")

	v.SetDefault("http.addr", "")

	v.SetDefault("video.width", 960)
	v.SetDefault("video.height", 480)
	v.SetDefault("video.radius", 20)
	v.SetDefault("video.fps", 30)
	v.SetDefault("video.clock_rate", 90000)

	v.SetDefault("tracking.queue_size", 8)
	v.SetDefault("tracking.drop_policy", "drop_oldest")
	v.SetDefault("tracking.detector", "hough")
	v.SetDefault("tracking.accumulator_resolution_ratio", 5)
	v.SetDefault("tracking.min_center_distance", 10)
	v.SetDefault("tracking.shm_path", "")

	v.SetDefault("accuracy.max_record_age", "0s")
	v.SetDefault("accuracy.plot_path", "")

	v.SetDefault("webrtc.ice_servers", []string{})
}

// New returns a viper instance with every default set and environment
// overrides (BOUNCE_PORT, BOUNCE_VIDEO_WIDTH, ...) enabled. Callers may bind
// flags into it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("bounce")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads the optional config file into v and decodes the result. An
// explicit file that cannot be read is an error; the CONFIG_ENV default
// file is optional.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
		log.Info().Str("module", "config").Str("file", file).Msg("loaded config")
	} else {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName := fmt.Sprintf("config/config.%s.yaml", env)
		v.SetConfigFile(fileName)
		if err := v.ReadInConfig(); err != nil {
			log.Debug().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
		} else {
			log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Debug().
		Str("module", "config").
		Str("addr", cfg.Addr()).
		Str("signaling", cfg.Signaling.Transport).
		Int("width", cfg.Video.Width).
		Int("height", cfg.Video.Height).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Signaling.Transport {
	case "tcp", "websocket":
	default:
		return fmt.Errorf("unknown signaling transport %q", c.Signaling.Transport)
	}
	switch c.Tracking.DropPolicy {
	case "drop_oldest", "drop_newest", "block":
	default:
		return fmt.Errorf("unknown drop policy %q", c.Tracking.DropPolicy)
	}
	switch c.Tracking.Detector {
	case "hough", "centroid":
	default:
		return fmt.Errorf("unknown detector %q", c.Tracking.Detector)
	}
	if c.Video.Width <= 0 || c.Video.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", c.Video.Width, c.Video.Height)
	}
	if c.Video.Radius <= 0 || 2*c.Video.Radius >= c.Video.Width || 2*c.Video.Radius >= c.Video.Height {
		return fmt.Errorf("radius %d does not fit a %dx%d frame", c.Video.Radius, c.Video.Width, c.Video.Height)
	}
	if c.Video.FPS <= 0 || c.Video.ClockRate == 0 {
		return fmt.Errorf("invalid media clock %d Hz at %d fps", c.Video.ClockRate, c.Video.FPS)
	}
	if c.Tracking.QueueSize <= 0 {
		return fmt.Errorf("tracking.queue_size must be positive, got %d", c.Tracking.QueueSize)
	}
	if c.Tracking.AccumulatorResolutionRatio <= 0 {
		return fmt.Errorf("tracking.accumulator_resolution_ratio must be positive, got %d", c.Tracking.AccumulatorResolutionRatio)
	}
	return nil
}
