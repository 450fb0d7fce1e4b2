package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env       string          `yaml:"env" env:"APP_ENV" env-default:"local"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Session   SessionConfig   `yaml:"session"`
	Signaling SignalingConfig `yaml:"signaling"`
}

type HTTPConfig struct {
	Address      string   `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	AllowOrigins []string `yaml:"allow_origins" env:"HTTP_ALLOW_ORIGINS" env-separator:","`
}

type DatabaseConfig struct {
	// An empty DSN runs the service on the in-memory store.
	DSN          string `yaml:"dsn" env:"DATABASE_URL"`
	MaxOpenConns int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS" env-default:"10"`

	// Participants preloaded into the in-memory store. Ignored with a DSN.
	SeedStudents   []string `yaml:"seed_students"`
	SeedCounselors []string `yaml:"seed_counselors"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
}

type SessionConfig struct {
	RejoinWindow      time.Duration `yaml:"rejoin_window" env:"SESSION_REJOIN_WINDOW" env-default:"10m"`
	AssignAttempts    int           `yaml:"assign_attempts" env:"SESSION_ASSIGN_ATTEMPTS" env-default:"5"`
	PendingTimeout    time.Duration `yaml:"pending_timeout" env:"SESSION_PENDING_TIMEOUT" env-default:"15m"`
	ActiveIdleTimeout time.Duration `yaml:"active_idle_timeout" env:"SESSION_ACTIVE_IDLE_TIMEOUT" env-default:"2h"`
	SweepSchedule     string        `yaml:"sweep_schedule" env:"SESSION_SWEEP_SCHEDULE" env-default:"@every 1m"`
}

type SignalingConfig struct {
	RoomGracePeriod time.Duration `yaml:"room_grace_period" env:"SIGNALING_ROOM_GRACE_PERIOD" env-default:"30s"`
	SendBuffer      int           `yaml:"send_buffer" env:"SIGNALING_SEND_BUFFER" env-default:"64"`
	MaxRoomMembers  int           `yaml:"max_room_members" env:"SIGNALING_MAX_ROOM_MEMBERS" env-default:"2"`
	PongWait        time.Duration `yaml:"pong_wait" env:"SIGNALING_PONG_WAIT" env-default:"60s"`
	PingPeriod      time.Duration `yaml:"ping_period" env:"SIGNALING_PING_PERIOD" env-default:"54s"`
	WriteWait       time.Duration `yaml:"write_wait" env:"SIGNALING_WRITE_WAIT" env-default:"10s"`
	MaxMessageSize  int64         `yaml:"max_message_size" env:"SIGNALING_MAX_MESSAGE_SIZE" env-default:"65536"`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	cfg.setDefaults()

	return &cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	if res == "" {
		res = "config/local.yaml"
	}

	return res
}

func (c *Config) setDefaults() {
	if len(c.HTTP.AllowOrigins) == 0 {
		c.HTTP.AllowOrigins = []string{"http://localhost:3000"}
	}
	// Pings must go out before the peer's read deadline lapses.
	if c.Signaling.PingPeriod <= 0 || c.Signaling.PingPeriod >= c.Signaling.PongWait {
		c.Signaling.PingPeriod = c.Signaling.PongWait * 9 / 10
	}
	if c.Session.AssignAttempts <= 0 {
		c.Session.AssignAttempts = 5
	}
}
