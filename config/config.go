package config

import (
	"fmt"
	"strings"
	"sync"
	"time"
	_ "time/tzdata" // clinics run in Argentine zones regardless of host zoneinfo

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config holds the application's configuration values.
type Config struct {
	AppName   string `json:"appname"`
	AppEnv    string `json:"appenv"`
	AppPort   uint16 `json:"appport"`
	GinMode   string `json:"ginmode"`
	DBDriver  string `json:"dbdriver"`
	DBHost    string `json:"dbhost"`
	DBPort    uint16 `json:"dbport"`
	DBName    string `json:"dbname"`
	DBUser    string `json:"dbuser"`
	DBPass    string `json:"dbpass"`
	DBSSLMode string `json:"dbsslmode"`

	JWTSecret  string        `json:"-"`
	SessionTTL time.Duration `json:"session_ttl"`

	RedisEnabled  bool   `json:"redis_enabled"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"-"`
	RedisDB       int    `json:"redis_db"`
	RedisPoolSize int    `json:"redis_pool_size"`

	GeoIPDBPath string `json:"geoip_db_path"`
	Timezone    string `json:"timezone"`

	WhatsAppBaseURL  string `json:"whatsapp_base_url"`
	WhatsAppToken    string `json:"-"`
	WhatsAppSendPath string `json:"whatsapp_send_path"`

	NotifierInterval  time.Duration `json:"notifier_interval"`
	NotifierBatchSize int           `json:"notifier_batch_size"`
	ReminderLeadTime  time.Duration `json:"reminder_lead_time"`
}

var config *Config
var once sync.Once

func setDefaults(v *viper.Viper) {
	v.SetDefault("APPNAME", "Kinesio Turnos")
	v.SetDefault("APPENV", "development")
	v.SetDefault("APPPORT", 8080)
	v.SetDefault("GINMODE", "debug")
	v.SetDefault("DBDRIVER", "postgres")
	v.SetDefault("DBHOST", "localhost")
	v.SetDefault("DBPORT", 5432)
	v.SetDefault("DBSSLMODE", "disable")
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("TIMEZONE", "America/Argentina/Buenos_Aires")
	v.SetDefault("WHATSAPP_SEND_PATH", "/send-message")
	v.SetDefault("NOTIFIER_INTERVAL", "1m")
	v.SetDefault("NOTIFIER_BATCH_SIZE", 50)
	v.SetDefault("REMINDER_LEAD_TIME", "24h")
}

// LoadConfig loads the environment variables (optionally from a .env file) and
// returns a singleton Config instance.
func LoadConfig() *Config {
	once.Do(func() {
		// A missing .env is fine; the process environment is authoritative.
		_ = godotenv.Load()

		v := viper.New()
		v.AutomaticEnv()
		setDefaults(v)

		config = &Config{
			AppName:   v.GetString("APPNAME"),
			AppEnv:    v.GetString("APPENV"),
			AppPort:   uint16(v.GetUint("APPPORT")),
			GinMode:   v.GetString("GINMODE"),
			DBDriver:  strings.ToLower(v.GetString("DBDRIVER")),
			DBHost:    v.GetString("DBHOST"),
			DBPort:    uint16(v.GetUint("DBPORT")),
			DBName:    v.GetString("DBNAME"),
			DBUser:    v.GetString("DBUSER"),
			DBPass:    v.GetString("DBPASS"),
			DBSSLMode: v.GetString("DBSSLMODE"),

			JWTSecret:  v.GetString("JWTSECRET"),
			SessionTTL: v.GetDuration("SESSION_TTL"),

			RedisEnabled:  v.GetBool("REDIS_ENABLED"),
			RedisAddr:     v.GetString("REDIS_ADDR"),
			RedisPassword: v.GetString("REDIS_PASSWORD"),
			RedisDB:       v.GetInt("REDIS_DB"),
			RedisPoolSize: v.GetInt("REDIS_POOL_SIZE"),

			GeoIPDBPath: v.GetString("GEOIP_DB_PATH"),
			Timezone:    v.GetString("TIMEZONE"),

			WhatsAppBaseURL:  strings.TrimRight(v.GetString("WHATSAPP_BASE_URL"), "/"),
			WhatsAppToken:    v.GetString("WHATSAPP_TOKEN"),
			WhatsAppSendPath: v.GetString("WHATSAPP_SEND_PATH"),

			NotifierInterval:  v.GetDuration("NOTIFIER_INTERVAL"),
			NotifierBatchSize: v.GetInt("NOTIFIER_BATCH_SIZE"),
			ReminderLeadTime:  v.GetDuration("REMINDER_LEAD_TIME"),
		}
	})
	return config
}

// ResetForTest drops the config singleton so the next LoadConfig re-reads the environment.
func ResetForTest() {
	config = nil
	once = sync.Once{}
}

// Location returns the configured clinic timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) dialector() (gorm.Dialector, error) {
	switch c.DBDriver {
	case "postgres", "postgresql", "":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
			c.DBHost, c.DBUser, c.DBPass, c.DBName, c.DBPort, c.DBSSLMode)
		return postgres.Open(dsn), nil
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC", c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName)
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported DBDRIVER %q", c.DBDriver)
	}
}

// ConnectDatabase opens the configured database. In the test environment an
// in-memory SQLite database is used instead.
func ConnectDatabase() (*gorm.DB, error) {
	cfg := LoadConfig()

	if cfg.AppEnv == "test" {
		dsn := fmt.Sprintf("file:testdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	}

	dialector, err := cfg.dialector()
	if err != nil {
		return nil, err
	}

	logLevel := logger.Warn
	if cfg.GinMode == "debug" {
		logLevel = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logLevel)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}
