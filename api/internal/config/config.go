package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Server struct {
	Port string

	OpenAIAPIKey  string
	OpenAIModel   string
	GeminiAPIKey  string
	GeminiModel   string
	DefaultEngine string

	// DSN is empty when no database is configured; the cache is then off.
	DSN              string
	CORSOrigins      []string
	SolutionCacheTTL time.Duration
	MaxUploadBytes   int64

	LogLevel  string
	LogFormat string

	// Warnings lists settings that could not be used as given. They are
	// returned rather than logged because the logger is built from this
	// config.
	Warnings []string
}

type Client struct {
	APIURL       string
	Language     string
	GeoLookupURL string
	Engine       string

	LogLevel  string
	LogFormat string

	Warnings []string
}

type Bot struct {
	Client

	Port             string
	TelegramBotToken string
	WebhookURL       string
}

// ErrMissingToken is returned by Bot.Validate when TELEGRAM_BOT_TOKEN is unset.
var ErrMissingToken = errors.New("missing required env TELEGRAM_BOT_TOKEN")

type loader struct {
	warnings []string
}

func (l *loader) warnf(format string, args ...any) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

// dotEnv reads .env when present. Real environment variables win.
func (l *loader) dotEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		l.warnf(".env: %v", err)
	}
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func (l *loader) duration(k string, def time.Duration) time.Duration {
	v := getEnv(k, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.warnf("bad %s=%q, using %s", k, v, def)
		return def
	}
	return d
}

func (l *loader) positiveInt(k string, def int64) int64 {
	v := getEnv(k, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		l.warnf("bad %s=%q, using %d", k, v, def)
		return def
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func LoadServer() *Server {
	var l loader
	l.dotEnv()
	c := &Server{
		Port: getEnv("PORT", "8000"),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		DefaultEngine: strings.ToLower(getEnv("DEFAULT_ENGINE", "gpt")),

		DSN:              ResolveDSN(),
		CORSOrigins:      splitList(getEnv("CORS_ORIGINS", "*")),
		SolutionCacheTTL: l.duration("SOLUTION_CACHE_TTL", 24*time.Hour),
		MaxUploadBytes:   l.positiveInt("MAX_UPLOAD_BYTES", 10<<20),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
	c.Warnings = l.warnings
	return c
}

func LoadClient() *Client {
	var l loader
	l.dotEnv()
	return loadClient(&l)
}

func loadClient(l *loader) *Client {
	return &Client{
		APIURL:       getEnv("API_URL", "http://localhost:8000"),
		Language:     getEnv("LANGUAGE", ""),
		GeoLookupURL: getEnv("GEOLOOKUP_URL", "https://ipapi.co/json/"),
		Engine:       getEnv("LLM_ENGINE", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		Warnings:  l.warnings,
	}
}

func LoadBot() *Bot {
	var l loader
	l.dotEnv()
	return &Bot{
		Client:           *loadClient(&l),
		Port:             getEnv("PORT", "8080"),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
	}
}

// Validate reports settings the bot cannot start without.
func (b *Bot) Validate() error {
	if b.TelegramBotToken == "" {
		return ErrMissingToken
	}
	return nil
}

// ResolveDSN prefers DATABASE_URL and otherwise builds a DSN from POSTGRES_*
// and PG* variables. It returns "" when neither DATABASE_URL nor POSTGRES_DB
// is set.
func ResolveDSN() string {
	if v := getEnv("DATABASE_URL", ""); v != "" {
		return v
	}
	name := getEnv("POSTGRES_DB", "")
	if name == "" {
		return ""
	}
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getEnv("POSTGRES_USER", "mentor"), os.Getenv("POSTGRES_PASSWORD")),
		Host:     net.JoinHostPort(getEnv("PGHOST", "db"), getEnv("PGPORT", "5432")),
		Path:     "/" + name,
		RawQuery: "sslmode=" + getEnv("PGSSLMODE", "disable"),
	}
	return u.String()
}

// SafeDSNSummary describes dsn without the password.
func SafeDSNSummary(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "dsn: parse error"
	}
	user := u.User.Username()
	host := u.Host
	port := ""
	if h, p, err := net.SplitHostPort(u.Host); err == nil {
		host, port = h, p
	}
	db := strings.TrimPrefix(u.Path, "/")
	if port == "" {
		return fmt.Sprintf("host=%s db=%s user=%s", host, db, user)
	}
	return fmt.Sprintf("host=%s port=%s db=%s user=%s", host, port, db, user)
}
