package uptime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"sitecopy/logger"
)

var ErrConfigInvalid = errors.New("invalid configuration")

// MonitorSource lists the monitors that are down.
type MonitorSource interface {
	DownMonitors(ctx context.Context) ([]Monitor, error)
}

type EmailConfig struct {
	Server   string
	From     string
	To       []string
	Username string
	Password string
}

type Config struct {
	APIKey string
	APIURL string
	Email  EmailConfig
	Log    logger.Config
}

// LoadConfig reads uptime.yaml, .env and the environment. The API key is
// read from UPTIME_API_KEY.
func LoadConfig(v *viper.Viper, configFile string) (*Config, error) {
	_ = godotenv.Load()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("api_url", DefaultAPIURL)
	v.SetDefault("email.server", "localhost:25")
	v.SetDefault("log.level", logger.DefaultLevel)
	v.SetDefault("log.format", logger.DefaultFormat)
	if err := v.BindEnv("api_key", "UPTIME_API_KEY"); err != nil {
		return nil, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("uptime")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		APIKey: v.GetString("api_key"),
		APIURL: v.GetString("api_url"),
		Email: EmailConfig{
			Server:   v.GetString("email.server"),
			From:     v.GetString("email.from"),
			To:       v.GetStringSlice("email.to"),
			Username: v.GetString("email.username"),
			Password: v.GetString("email.password"),
		},
		Log: logger.Config{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Email.From == "" || len(cfg.Email.To) == 0 {
		return nil, fmt.Errorf("%w: email.from and email.to are required", ErrConfigInvalid)
	}
	return cfg, nil
}

// Mailer returns an SMTP mailer for the relay, authenticating when a
// username is configured.
func (c EmailConfig) Mailer() SMTPMailer {
	m := SMTPMailer{Addr: c.Server}
	if c.Username != "" {
		host, _, err := net.SplitHostPort(c.Server)
		if err != nil {
			host = c.Server
		}
		m.Auth = smtp.PlainAuth("", c.Username, c.Password, host)
	}
	return m
}

type Notifier struct {
	source MonitorSource
	mailer Mailer
	from   string
	to     []string
	log    logger.Logger
}

func NewNotifier(source MonitorSource, mailer Mailer, email EmailConfig, log logger.Logger) *Notifier {
	if log == nil {
		log = logger.NewNop()
	}
	return &Notifier{source: source, mailer: mailer, from: email.From, to: email.To, log: log}
}

// Run fetches the down monitors and emails the digest when any site is down.
func (n *Notifier) Run(ctx context.Context) (Digest, error) {
	n.log.Info("start")
	monitors, err := n.source.DownMonitors(ctx)
	if err != nil {
		n.log.Error(ErrorTitle, logger.Error(err))
		return Digest{Title: ErrorTitle}, err
	}

	d := NewDigest(monitors)
	n.log.Info(d.Title, logger.Int("down", len(monitors)))
	if !d.Empty() {
		err := n.mailer.Send(ctx, Message{
			From:    n.from,
			To:      n.to,
			Subject: d.Title,
			Text:    d.Body,
			HTML:    d.HTML(),
		})
		if err != nil {
			return d, err
		}
		n.log.Info("digest sent", logger.Strings("to", n.to))
	}
	n.log.Info("done")
	return d, nil
}
