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
	APIConfig struct {
		BaseURL string
		Token   string
		Timeout time.Duration
	}

	ServerConfig struct {
		Host            string
		Address         string
		DebugAddress    string
		ShutdownTimeout time.Duration
		DisableReqLogs  bool
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	EnrollmentConfig struct {
		SiblingDiscountPercent        int
		FeeDueDays                    int
		ReuseStudentPasswordForParent bool
		StrictPasswords               bool
		OperatorEmail                 string
	}

	Config struct {
		Env              string
		Build            string
		AppName          string
		Debug            bool
		TestMode         bool
		WorkDir          string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		RollbarToken     string
		SendgridApiKey   string

		API        APIConfig
		Server     ServerConfig
		Database   DatabaseConfig
		Enrollment EnrollmentConfig
	}
)

// Address returns the database host:port.
func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Enabled reports whether a database is configured for the audit journal.
func (c DatabaseConfig) Enabled() bool {
	return c.Name != ""
}

func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("build", "dev")
	conf.SetDefault("appName", "Registrar")
	conf.SetDefault("frontendBaseUrl", "http://localhost:3000")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")
	conf.SetDefault("rollbarToken", "")
	conf.SetDefault("sendgridApiKey", "")

	conf.SetDefault("api.baseUrl", "http://localhost:8000/api")
	conf.SetDefault("api.token", "")
	conf.SetDefault("api.timeout", 30*time.Second)

	conf.SetDefault("server.host", "localhost")
	conf.SetDefault("server.address", ":8080")
	conf.SetDefault("server.debugAddress", "")
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)
	conf.SetDefault("server.disableReqLogs", false)

	conf.SetDefault("database.engine", "postgres")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", "5432")
	conf.SetDefault("database.name", "")
	conf.SetDefault("database.user", "")
	conf.SetDefault("database.password", "")
	conf.SetDefault("database.adminUser", "")
	conf.SetDefault("database.adminPassword", "")
	conf.SetDefault("database.disableTls", false)

	conf.SetDefault("enrollment.siblingDiscountPercent", 10)
	conf.SetDefault("enrollment.feeDueDays", 7)
	conf.SetDefault("enrollment.reuseStudentPasswordForParent", true)
	conf.SetDefault("enrollment.strictPasswords", false)
	conf.SetDefault("enrollment.operatorEmail", "")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		conf.SetDefault("testMode", true)
	}
	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	fromEmail, err := mail.ParseAddress(conf.GetString("defaultFromEmail"))
	if err != nil {
		fromEmail = &mail.Address{Address: "noreply@localhost"}
	}
	fromEmail.Name = conf.GetString("appName")

	return &Config{
		Env:              env,
		Build:            conf.GetString("build"),
		AppName:          conf.GetString("appName"),
		Debug:            conf.GetBool("debug"),
		TestMode:         conf.GetBool("testMode"),
		WorkDir:          wd,
		FrontendBaseURL:  conf.GetString("frontendBaseUrl"),
		DefaultFromEmail: *fromEmail,
		RollbarToken:     conf.GetString("rollbarToken"),
		SendgridApiKey:   conf.GetString("sendgridApiKey"),
		API: APIConfig{
			BaseURL: strings.TrimRight(conf.GetString("api.baseUrl"), "/"),
			Token:   conf.GetString("api.token"),
			Timeout: conf.GetDuration("api.timeout"),
		},
		Server: ServerConfig{
			Host:            conf.GetString("server.host"),
			Address:         conf.GetString("server.address"),
			DebugAddress:    conf.GetString("server.debugAddress"),
			ShutdownTimeout: conf.GetDuration("server.shutdownTimeout"),
			DisableReqLogs:  conf.GetBool("server.disableReqLogs"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("database.engine"),
			Host:          conf.GetString("database.host"),
			Port:          conf.GetString("database.port"),
			Name:          conf.GetString("database.name"),
			User:          conf.GetString("database.user"),
			Password:      conf.GetString("database.password"),
			AdminUser:     conf.GetString("database.adminUser"),
			AdminPassword: conf.GetString("database.adminPassword"),
			DisableTLS:    conf.GetBool("database.disableTls"),
		},
		Enrollment: EnrollmentConfig{
			SiblingDiscountPercent:        conf.GetInt("enrollment.siblingDiscountPercent"),
			FeeDueDays:                    conf.GetInt("enrollment.feeDueDays"),
			ReuseStudentPasswordForParent: conf.GetBool("enrollment.reuseStudentPasswordForParent"),
			StrictPasswords:               conf.GetBool("enrollment.strictPasswords"),
			OperatorEmail:                 conf.GetString("enrollment.operatorEmail"),
		},
	}
}
