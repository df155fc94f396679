package config

import (
	"flag"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string `yaml:"env" env:"ENV" env-default:"local" env-description:"Environment" env-choices:"local,dev,prod"`
	ApiPort  int    `yaml:"api_port" env:"API_PORT" env-default:"8080"`
	ApiHost  string `yaml:"api_host" env:"API_HOST" env-default:"localhost"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:"http://localhost:8080"`
	Postgres `yaml:"postgres"`
	Auth     `yaml:"auth"`
	Mail     `yaml:"mail"`
	Uploader `yaml:"uploader"`
}

type Postgres struct {
	Host string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port string `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User string `yaml:"user" env:"POSTGRES_USER" env-default:"hisaab"`
	Pass string `yaml:"pass" env:"POSTGRES_PASS" env-default:"hisaab"`
	Db   string `yaml:"db" env:"POSTGRES_DB" env-default:"hisaab"`
}

type Auth struct {
	JwtSecret string `yaml:"jwt_secret" env:"JWT_SECRET" env-default:"default-fallback-key-for-local-dev"`
	TokenTTL  int    `yaml:"token_ttl_hours" env:"TOKEN_TTL_HOURS" env-default:"24"`
}

type Mail struct {
	Host     string `yaml:"host" env:"MAIL_SERVER"`
	Port     int    `yaml:"port" env:"MAIL_PORT" env-default:"587"`
	Username string `yaml:"username" env:"MAIL_USERNAME"`
	Password string `yaml:"password" env:"MAIL_PASSWORD"`
	From     string `yaml:"from" env:"MAIL_FROM"`
}

type Uploader struct {
	UploadURL string `yaml:"upload_url" env:"UPLOAD_URL"`
	APIKey    string `yaml:"api_key" env:"UPLOAD_API_KEY"`
}

func MustLoad() *Config {
	path := fetchConfigPath()

	var cfg Config

	// Env-only operation is allowed when no config file is given.
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			panic("Failed to read config from environment" + err.Error())
		}
		return &cfg
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		panic("config file does not exist: " + path)
	}

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		panic("Failed to read config" + err.Error())
	}

	return &cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
