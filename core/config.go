package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName            string
		Env                string
		Build              string
		Debug              bool
		TestMode           bool
		SecretKey          string
		FrontendBaseURL    string
		AllowedEmailDomain string
		MailProvider       string // console | smtp | sendgrid
		SendgridAPIKey     string
		RollbarToken       string
		OTPTTL             time.Duration
		OTPResendInterval  time.Duration
		MediaDir           string
		MediaBaseURL       string
		MaxUploadSize      int64
		SMTP               SMTPConfig
		Server             ServerConfig
		Database           DatabaseConfig

		defaultFromEmail string
	}

	SMTPConfig struct {
		Host     string
		Port     string
		User     string
		Password string
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		ShutdownTimeout           time.Duration
		CORSOrigins               []string
		DisableReqLogs            bool
	}

	DatabaseConfig struct {
		Engine        string // postgres | memory
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}
)

// DefaultFromEmail parses the configured sender, falling back to a bare address.
func (conf *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(conf.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: conf.AppName, Address: conf.defaultFromEmail}
	}
	if addr.Name == "" {
		addr.Name = conf.AppName
	}
	return *addr
}

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, dbc.Port)
}

// InMemory reports whether repositories are kept in process memory.
func (dbc DatabaseConfig) InMemory() bool {
	return dbc.Engine == "memory"
}

// NewConfig loads the configuration for the current ENV (DEV, TEST, QA or PROD).
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("appName", "KL Unity")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "kl-unity-dev-secret-9d$1xq!b2r%u7")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "KL Unity <noreply@kluniversity.in>")
	v.SetDefault("allowedEmailDomain", "kluniversity.in")
	v.SetDefault("mailProvider", "console")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("otpTTL", 10*time.Minute)
	v.SetDefault("otpResendInterval", time.Minute)
	v.SetDefault("mediaDir", "media")
	v.SetDefault("mediaBaseURL", "/media")
	v.SetDefault("maxUploadSize", int64(5<<20))
	v.SetDefault("smtpHost", "smtp.gmail.com")
	v.SetDefault("smtpPort", "587")
	v.SetDefault("smtpUser", "")
	v.SetDefault("smtpPassword", "")
	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverAddress", ":8000")
	v.SetDefault("debugHost", ":4000")
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("jwtRefreshExpirationDelta", 30*24*time.Hour)
	v.SetDefault("shutdownTimeout", 5*time.Second)
	v.SetDefault("corsOrigins", "http://localhost:3000")
	v.SetDefault("disableReqLogs", false)
	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbName", "klunity")
	v.SetDefault("dbUser", "klunity")
	v.SetDefault("dbPassword", "klunity")
	v.SetDefault("dbAdminUser", "postgres")
	v.SetDefault("dbAdminPassword", "")
	v.SetDefault("dbDisableTLS", true)

	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		AppName:            v.GetString("appName"),
		Env:                env,
		Build:              v.GetString("build"),
		Debug:              v.GetBool("debug"),
		TestMode:           v.GetBool("testMode"),
		SecretKey:          v.GetString("secretKey"),
		FrontendBaseURL:    v.GetString("frontendBaseURL"),
		AllowedEmailDomain: strings.ToLower(v.GetString("allowedEmailDomain")),
		MailProvider:       v.GetString("mailProvider"),
		SendgridAPIKey:     v.GetString("sendgridApiKey"),
		RollbarToken:       v.GetString("rollbarToken"),
		OTPTTL:             v.GetDuration("otpTTL"),
		OTPResendInterval:  v.GetDuration("otpResendInterval"),
		MediaDir:           v.GetString("mediaDir"),
		MediaBaseURL:       v.GetString("mediaBaseURL"),
		MaxUploadSize:      v.GetInt64("maxUploadSize"),
		SMTP: SMTPConfig{
			Host:     v.GetString("smtpHost"),
			Port:     v.GetString("smtpPort"),
			User:     v.GetString("smtpUser"),
			Password: v.GetString("smtpPassword"),
		},
		Server: ServerConfig{
			Host:                      v.GetString("serverHost"),
			Address:                   v.GetString("serverAddress"),
			DebugHost:                 v.GetString("debugHost"),
			JWTExpirationDelta:        v.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwtRefreshExpirationDelta"),
			ShutdownTimeout:           v.GetDuration("shutdownTimeout"),
			CORSOrigins:               strings.Split(v.GetString("corsOrigins"), ","),
			DisableReqLogs:            v.GetBool("disableReqLogs"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetString("dbPort"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
		},
		defaultFromEmail: v.GetString("defaultFromEmail"),
	}
}

// NewTestConfig returns a Config suitable for tests: in-memory storage, console mails and a short JWT lifetime.
func NewTestConfig() *Config {
	return &Config{
		AppName:            "KL Unity",
		Env:                "TEST",
		Build:              "test",
		Debug:              false,
		TestMode:           true,
		SecretKey:          "secret",
		FrontendBaseURL:    "http://localhost:3000",
		AllowedEmailDomain: "kluniversity.in",
		MailProvider:       "console",
		OTPTTL:             10 * time.Minute,
		OTPResendInterval:  time.Minute,
		MediaDir:           os.TempDir(),
		MediaBaseURL:       "/media",
		MaxUploadSize:      1 << 20,
		Server: ServerConfig{
			Host:                      "localhost",
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			ShutdownTimeout:           time.Second,
			DisableReqLogs:            true,
		},
		Database:         DatabaseConfig{Engine: "memory"},
		defaultFromEmail: "noreply@kluniversity.in",
	}
}
