package config

import (
	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig
	DB     DBConfig
	Room   RoomConfig
}

type ServerConfig struct {
	Address string
}

type DBConfig struct {
	Host     string
	User     string
	Password string
	Name     string
	Port     int
}

// RoomConfig 是房間協調引擎的調校參數
type RoomConfig struct {
	IdleGraceSeconds       int    `mapstructure:"idle_grace_seconds"`       // 閒置房間的寬限秒數
	TranscriptIntervalMs   int    `mapstructure:"transcript_interval_ms"`   // 每位發言者未定稿字幕的最小廣播間隔
	TranscriptHistoryLimit int    `mapstructure:"transcript_history_limit"` // 快照中保留的定稿逐字稿筆數
	AdmitPolicy            string `mapstructure:"admit_policy"`             // any_member 或 host_only
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./pkg/config")

	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("room.idle_grace_seconds", 300)
	viper.SetDefault("room.transcript_interval_ms", 800)
	viper.SetDefault("room.transcript_history_limit", 100)
	viper.SetDefault("room.admit_policy", "any_member")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
