package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env          string // DEV (local; default), TEST, QA, PROD
		Build        string
		AppName      string
		Debug        bool
		TestMode     bool
		RollbarToken string

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		Store    StoreConfig
		Blob     BlobConfig
		Assets   AssetsConfig
		Builder  BuilderConfig
		Hub      HubConfig
		Notify   NotifyConfig
		Email    EmailConfig
	}

	ServerConfig struct {
		Host            string
		Address         string
		PublicBaseURL   string
		ShutdownTimeout time.Duration
		DisableReqLogs  bool
		RateLimit       float64 // requests per second per IP on write endpoints; 0 disables
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		Addr      string
		Password  string
		DB        int
		KeyPrefix string
	}

	StoreConfig struct {
		Backend string // memory | postgres | redis
	}

	BlobConfig struct {
		Backend   string // fs | s3 | minio
		Dir       string
		Bucket    string
		Region    string
		Endpoint  string
		AccessKey string
		SecretKey string
		UseSSL    bool
		Prefix    string
	}

	AssetsConfig struct {
		MaxBytes int64
	}

	BuilderConfig struct {
		Executor        string // simulated | remote
		WatchdogTimeout time.Duration
		StepDelay       time.Duration
		RemoteURL       string
		RemoteToken     string
		PollInterval    time.Duration
	}

	HubConfig struct {
		SubscriberBuffer int
	}

	NotifyConfig struct {
		Recipients []string
	}

	EmailConfig struct {
		DefaultFrom    string
		SendgridAPIKey string
	}
)

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, strconv.Itoa(db.Port))
}

// DefaultFromEmail parses Email.DefaultFrom, falling back to a no-reply address.
func (conf *Config) DefaultFromEmail() mail.Address {
	if addr, err := mail.ParseAddress(conf.Email.DefaultFrom); err == nil {
		return *addr
	}
	return mail.Address{Name: conf.AppName, Address: "noreply@localhost"}
}

// NewConfig loads the configuration from defaults, an optional `config/.env.<env>` file and the environment.
// Environment variables are prefixed with the environment name, eg. `DEV_SERVER_ADDRESS`.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(os.Getenv("CONFIG_DIR"), ".env."+strings.ToLower(env))
	if os.Getenv("CONFIG_DIR") == "" {
		dotEnvPath = filepath.Join("config", ".env."+strings.ToLower(env))
	}
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:          env,
		Build:        v.GetString("build"),
		AppName:      v.GetString("appName"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		RollbarToken: v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Address:         v.GetString("server.address"),
			PublicBaseURL:   strings.TrimRight(v.GetString("server.publicBaseURL"), "/"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
			DisableReqLogs:  v.GetBool("server.disableReqLogs"),
			RateLimit:       v.GetFloat64("server.rateLimit"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Redis: RedisConfig{
			Addr:      v.GetString("redis.addr"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			KeyPrefix: v.GetString("redis.keyPrefix"),
		},
		Store: StoreConfig{Backend: strings.ToLower(v.GetString("store.backend"))},
		Blob: BlobConfig{
			Backend:   strings.ToLower(v.GetString("blob.backend")),
			Dir:       v.GetString("blob.dir"),
			Bucket:    v.GetString("blob.bucket"),
			Region:    v.GetString("blob.region"),
			Endpoint:  v.GetString("blob.endpoint"),
			AccessKey: v.GetString("blob.accessKey"),
			SecretKey: v.GetString("blob.secretKey"),
			UseSSL:    v.GetBool("blob.useSSL"),
			Prefix:    v.GetString("blob.prefix"),
		},
		Assets: AssetsConfig{MaxBytes: v.GetInt64("assets.maxBytes")},
		Builder: BuilderConfig{
			Executor:        strings.ToLower(v.GetString("builder.executor")),
			WatchdogTimeout: v.GetDuration("builder.watchdogTimeout"),
			StepDelay:       v.GetDuration("builder.stepDelay"),
			RemoteURL:       v.GetString("builder.remoteURL"),
			RemoteToken:     v.GetString("builder.remoteToken"),
			PollInterval:    v.GetDuration("builder.pollInterval"),
		},
		Hub:    HubConfig{SubscriberBuffer: v.GetInt("hub.subscriberBuffer")},
		Notify: NotifyConfig{Recipients: cleanList(v.GetStringSlice("notify.recipients"))},
		Email: EmailConfig{
			DefaultFrom:    v.GetString("email.defaultFrom"),
			SendgridAPIKey: v.GetString("email.sendgridAPIKey"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Masomo AppGen")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.publicBaseURL", "")
	v.SetDefault("server.shutdownTimeout", 10*time.Second)
	v.SetDefault("server.disableReqLogs", false)
	v.SetDefault("server.rateLimit", 10.0)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "appgen")
	v.SetDefault("database.user", "appgen")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.keyPrefix", "appgen:")

	v.SetDefault("store.backend", "memory")

	v.SetDefault("blob.backend", "fs")
	v.SetDefault("blob.dir", filepath.Join("var", "blobs"))
	v.SetDefault("blob.bucket", "appgen")
	v.SetDefault("blob.region", "us-east-1")
	v.SetDefault("blob.endpoint", "")
	v.SetDefault("blob.accessKey", "")
	v.SetDefault("blob.secretKey", "")
	v.SetDefault("blob.useSSL", true)
	v.SetDefault("blob.prefix", "")

	v.SetDefault("assets.maxBytes", int64(5<<20))

	v.SetDefault("builder.executor", "simulated")
	v.SetDefault("builder.watchdogTimeout", 10*time.Minute)
	v.SetDefault("builder.stepDelay", 2*time.Second)
	v.SetDefault("builder.remoteURL", "")
	v.SetDefault("builder.remoteToken", "")
	v.SetDefault("builder.pollInterval", 5*time.Second)

	v.SetDefault("hub.subscriberBuffer", 64)

	v.SetDefault("notify.recipients", []string{})

	v.SetDefault("email.defaultFrom", "Masomo AppGen <noreply@localhost>")
	v.SetDefault("email.sendgridAPIKey", "")
	v.SetDefault("rollbarToken", "")
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = CleanString(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
