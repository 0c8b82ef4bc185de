package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env            string `yaml:"env" env:"ENV" env-default:"local"`
	TelegramApiKey string `yaml:"telegram_api_key" env:"TELEGRAM_API_KEY" env-default:""`
	OwmApiKey      string `yaml:"owm_api_key" env:"OWM_API_KEY" env-default:""`
	MetricsAddress string `yaml:"metrics_address" env:"METRICS_ADDRESS" env-default:""`
	Hcti           struct {
		Endpoint string `yaml:"endpoint" env:"HCTI_ENDPOINT" env-default:"https://hcti.io/v1/image"`
		UserId   string `yaml:"user_id" env:"HCTI_USER_ID" env-default:""`
		ApiKey   string `yaml:"api_key" env:"HCTI_API_KEY" env-default:""`
	} `yaml:"hcti"`
	Session struct {
		TTL           time.Duration `yaml:"ttl" env:"SESSION_TTL" env-default:"30m"`
		SweepInterval time.Duration `yaml:"sweep_interval" env:"SESSION_SWEEP_INTERVAL" env-default:"5m"`
	} `yaml:"session"`
	Storage struct {
		Backend string `yaml:"backend" env:"STORAGE_BACKEND" env-default:"memory"`
	} `yaml:"storage"`
	Mongo struct {
		Host     string `yaml:"host" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env-default:"27017"`
		User     string `yaml:"user" env-default:"admin"`
		Password string `yaml:"password" env-default:"pass"`
		Database string `yaml:"database" env-default:"skycast"`
	} `yaml:"mongo"`
	Postgres struct {
		Host     string `yaml:"host" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env-default:"5432"`
		User     string `yaml:"user" env-default:"postgres"`
		Password string `yaml:"password" env-default:"pass"`
		Database string `yaml:"database" env-default:"skycast"`
	} `yaml:"postgres"`
}

var instance *Config
var once sync.Once

func GetConfig(path string) (*Config, error) {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("config: %s; %s", err, desc)
			instance = nil
		}
	})
	return instance, err
}

func MustLoad(path string) *Config {
	conf, err := GetConfig(path)
	if err != nil {
		panic(err)
	}
	return conf
}
