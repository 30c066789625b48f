package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Resolver ResolverConfig
	Cache    CacheConfig
	Limit    LimitConfig
}

type AppConfig struct {
	Env  string
	Port int
	// LogLevel overrides the environment's default level (debug, info, warn, error).
	LogLevel string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

const minAdminKeyLen = 24

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// AdminAPIKey is exchanged at POST /v1/auth/login for an admin token
	// pair. Empty disables login.
	AdminAPIKey string
	// AdminClientID is the client_id carried by login tokens.
	AdminClientID string
}

type ResolverConfig struct {
	// Protocol is one of udp, tcp, dot.
	Protocol    string
	Timeout     time.Duration
	MaxAttempts int
	MaxDepth    int
	FollowCNAME bool
	// RootServers overrides the built-in root hints when non-empty.
	RootServers []string
}

type CacheConfig struct {
	MaxTTL time.Duration
	Prefix string
}

type LimitConfig struct {
	// ConcurrentPerClient caps in-flight resolve requests per client.
	ConcurrentPerClient int
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	{
		n, err := optionalInt("REDIS_DB")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.DB = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")
	c.Auth.AdminAPIKey = os.Getenv("ADMIN_API_KEY")
	c.Auth.AdminClientID = strings.TrimSpace(os.Getenv("ADMIN_CLIENT_ID"))

	c.Resolver.Protocol = strings.ToLower(strings.TrimSpace(os.Getenv("RESOLVER_PROTOCOL")))
	c.Resolver.Timeout = mustDuration("RESOLVER_TIMEOUT")
	{
		n, err := optionalInt("RESOLVER_MAX_ATTEMPTS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Resolver.MaxAttempts = n
	}
	{
		n, err := optionalInt("RESOLVER_MAX_DEPTH")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Resolver.MaxDepth = n
	}
	{
		b, err := optionalBool("RESOLVER_FOLLOW_CNAME")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Resolver.FollowCNAME = b
	}
	c.Resolver.RootServers = splitList(os.Getenv("RESOLVER_ROOT_SERVERS"))

	c.Cache.MaxTTL = mustDuration("CACHE_MAX_TTL")
	c.Cache.Prefix = strings.TrimSpace(os.Getenv("CACHE_PREFIX"))

	{
		n, err := optionalInt("LIMIT_CONCURRENT_PER_CLIENT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Limit.ConcurrentPerClient = n
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills in defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}
	if c.Redis.DB < 0 {
		errs = append(errs, fmt.Errorf("REDIS_DB must be >= 0, got %d", c.Redis.DB))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}
	if c.Auth.AdminClientID == "" {
		c.Auth.AdminClientID = "admin"
	}
	if c.Auth.AdminAPIKey != "" && len(c.Auth.AdminAPIKey) < minAdminKeyLen {
		errs = append(errs, fmt.Errorf("ADMIN_API_KEY must be at least %d characters", minAdminKeyLen))
	}

	if c.Resolver.Protocol == "" {
		c.Resolver.Protocol = "udp"
	}
	if !isValidProtocol(c.Resolver.Protocol) {
		errs = append(errs, fmt.Errorf("RESOLVER_PROTOCOL must be one of udp, tcp, dot, got %q", c.Resolver.Protocol))
	}
	if c.Resolver.Timeout <= 0 {
		c.Resolver.Timeout = 3 * time.Second
	}
	if c.Resolver.MaxAttempts == 0 {
		c.Resolver.MaxAttempts = 5
	}
	if c.Resolver.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("RESOLVER_MAX_ATTEMPTS must be positive, got %d", c.Resolver.MaxAttempts))
	}
	if c.Resolver.MaxDepth == 0 {
		c.Resolver.MaxDepth = 8
	}
	if c.Resolver.MaxDepth < 0 {
		errs = append(errs, fmt.Errorf("RESOLVER_MAX_DEPTH must be positive, got %d", c.Resolver.MaxDepth))
	}

	if c.Cache.MaxTTL <= 0 {
		c.Cache.MaxTTL = time.Hour
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = "dns:"
	}

	if c.Limit.ConcurrentPerClient == 0 {
		c.Limit.ConcurrentPerClient = 8
	}
	if c.Limit.ConcurrentPerClient < 0 {
		errs = append(errs, fmt.Errorf("LIMIT_CONCURRENT_PER_CLIENT must be positive, got %d", c.Limit.ConcurrentPerClient))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) (int, error) {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return 0, nil
	}
	return mustInt(key)
}

func optionalBool(key string) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func isValidProtocol(v string) bool {
	switch v {
	case "udp", "tcp", "dot":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
