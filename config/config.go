package config

import (
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Comet-Robotics/chessbots-server-sub000/grid"
)

type Config struct {
	mu sync.RWMutex `yaml:"-"`

	Server    ServerConfig    `yaml:"server"`
	Web       WebConfig       `yaml:"web"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Messaging MessagingConfig `yaml:"messaging"`
	Motion    MotionConfig    `yaml:"motion"`
	Robots    []RobotConfig   `yaml:"robots"`

	// Overrides maps a robot MAC address to tunable values sent in SERVER_HELLO.
	Overrides map[string]map[string]float64 `yaml:"overrides"`
}

// ServerConfig configures the robot TCP link.
type ServerConfig struct {
	ListenAddr           string        `yaml:"listen_addr"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout     time.Duration `yaml:"heartbeat_timeout"`
	HeartbeatMaxFailures int           `yaml:"heartbeat_max_failures"`
	MaxFrameBytes        int           `yaml:"max_frame_bytes"`
	AckTimeout           time.Duration `yaml:"ack_timeout"` // 0 = per packet type defaults
	HealthLogInterval    time.Duration `yaml:"health_log_interval"`
}

type WebConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`
	DebugStacks   bool   `yaml:"debug_stacks"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MessagingConfig configures the link to the game layer.
type MessagingConfig struct {
	Backend             string        `yaml:"backend"` // "mqtt", "kafka" or "" (disabled)
	MQTT                MQTTConfig    `yaml:"mqtt"`
	Kafka               KafkaConfig   `yaml:"kafka"`
	InboundTopic        string        `yaml:"inbound_topic"`
	OutboundTopic       string        `yaml:"outbound_topic"`
	OutboxDrainInterval time.Duration `yaml:"outbox_drain_interval"`
	StationID           string        `yaml:"station_id"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
}

// MotionConfig tunes the move planner.
type MotionConfig struct {
	ShimmyClearance float64       `yaml:"shimmy_clearance"` // fraction of a cell
	PawnBatchSize   int           `yaml:"pawn_batch_size"`
	TimePoint       time.Duration `yaml:"time_point"`
}

// RobotConfig registers one physical or simulated robot.
type RobotConfig struct {
	ID      string           `yaml:"id"`
	MAC     string           `yaml:"mac"`
	Piece   string           `yaml:"piece"`
	Color   string           `yaml:"color"`
	Home    grid.GridIndices `yaml:"home"`
	Default grid.GridIndices `yaml:"default"`
	Heading float64          `yaml:"heading"`
	Virtual bool             `yaml:"virtual"`
}

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:           ":3001",
			HeartbeatInterval:    2 * time.Second,
			HeartbeatTimeout:     time.Second,
			HeartbeatMaxFailures: 3,
			MaxFrameBytes:        4096,
			HealthLogInterval:    time.Minute,
		},
		Web: WebConfig{
			Host:          "0.0.0.0",
			Port:          8080,
			SessionSecret: "change-me-in-production",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "chessbots.db"},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "chessbots",
				User:     "chessbots",
				SSLMode:  "disable",
			},
		},
		Redis: RedisConfig{
			Address: "localhost:6379",
		},
		Messaging: MessagingConfig{
			MQTT: MQTTConfig{
				Broker:   "localhost",
				Port:     1883,
				ClientID: "chessbotsd",
			},
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				GroupID: "chessbotsd",
			},
			InboundTopic:        "chessbots.game",
			OutboundTopic:       "chessbots.fleet",
			OutboxDrainInterval: 5 * time.Second,
			StationID:           "chessbotsd",
		},
		Motion: MotionConfig{
			ShimmyClearance: 0.8,
			PawnBatchSize:   4,
			TimePoint:       500 * time.Millisecond,
		},
		Robots:    DefaultRobots(),
		Overrides: map[string]map[string]float64{},
	}
}

var backRank = [8]string{"rook", "knight", "bishop", "queen", "king", "bishop", "knight", "rook"}

// DefaultRobots returns the standard 32-piece layout, all simulated.
// Back-rank pieces park on the home row behind their own rank; pawns park on
// the side columns.
func DefaultRobots() []RobotConfig {
	var robots []RobotConfig
	n := 0
	add := func(piece, color string, home, def grid.GridIndices, heading float64) {
		n++
		robots = append(robots, RobotConfig{
			ID:      fmt.Sprintf("robot-%d", n),
			MAC:     fmt.Sprintf("virtual-%02d", n),
			Piece:   piece,
			Color:   color,
			Home:    home,
			Default: def,
			Heading: heading,
			Virtual: true,
		})
	}
	for f := 0; f < 8; f++ {
		i := grid.BoardMin + f
		add(backRank[f], "white", grid.GridIndices{I: i, J: grid.HomeLow}, grid.GridIndices{I: i, J: grid.BoardMin}, math.Pi/2)
	}
	for f := 0; f < 8; f++ {
		i := grid.BoardMin + f
		add("pawn", "white", pawnHome(f, 0), grid.GridIndices{I: i, J: grid.BoardMin + 1}, math.Pi/2)
	}
	for f := 0; f < 8; f++ {
		i := grid.BoardMin + f
		add("pawn", "black", pawnHome(f, 4), grid.GridIndices{I: i, J: grid.BoardMax - 1}, 3*math.Pi/2)
	}
	for f := 0; f < 8; f++ {
		i := grid.BoardMin + f
		add(backRank[f], "black", grid.GridIndices{I: i, J: grid.HomeHigh}, grid.GridIndices{I: i, J: grid.BoardMax}, 3*math.Pi/2)
	}
	return robots
}

// pawnHome puts files a-d on the left home column and e-h on the right,
// offset rows apart by color.
func pawnHome(file, rowOffset int) grid.GridIndices {
	if file < 4 {
		return grid.GridIndices{I: grid.HomeLow, J: grid.BoardMin + rowOffset + file}
	}
	return grid.GridIndices{I: grid.HomeHigh, J: grid.BoardMin + rowOffset + file - 4}
}

func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Overrides == nil {
		cfg.Overrides = map[string]map[string]float64{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Lock()   { c.mu.Lock() }
func (c *Config) Unlock() { c.mu.Unlock() }

// Validate checks the robot table for duplicate identities and cells.
func (c *Config) Validate() error {
	ids := map[string]bool{}
	macs := map[string]bool{}
	homes := map[grid.GridIndices]string{}
	defaults := map[grid.GridIndices]string{}
	for _, r := range c.Robots {
		if r.ID == "" {
			return fmt.Errorf("robot with mac %q has no id", r.MAC)
		}
		if ids[r.ID] {
			return fmt.Errorf("duplicate robot id %q", r.ID)
		}
		ids[r.ID] = true
		if r.MAC != "" {
			if macs[r.MAC] {
				return fmt.Errorf("duplicate robot mac %q", r.MAC)
			}
			macs[r.MAC] = true
		}
		if !r.Home.IsHome() {
			return fmt.Errorf("robot %s: home %s is not on the home ring", r.ID, r.Home)
		}
		if !r.Default.IsBoard() {
			return fmt.Errorf("robot %s: default %s is not a board square", r.ID, r.Default)
		}
		if other, ok := homes[r.Home]; ok {
			return fmt.Errorf("robot %s: home %s already used by %s", r.ID, r.Home, other)
		}
		homes[r.Home] = r.ID
		if other, ok := defaults[r.Default]; ok {
			return fmt.Errorf("robot %s: default %s already used by %s", r.ID, r.Default, other)
		}
		defaults[r.Default] = r.ID
	}
	if c.Motion.ShimmyClearance <= 0 || c.Motion.ShimmyClearance >= 1 {
		return fmt.Errorf("motion.shimmy_clearance must be in (0, 1), got %v", c.Motion.ShimmyClearance)
	}
	return nil
}

// RobotByMAC looks up a robot entry by MAC address.
func (c *Config) RobotByMAC(mac string) (RobotConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.Robots {
		if r.MAC != "" && r.MAC == mac {
			return r, true
		}
	}
	return RobotConfig{}, false
}
