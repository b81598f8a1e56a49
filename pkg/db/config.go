package db

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config describes the primary database. Zero pool settings keep the
// database/sql defaults.
type Config struct {
	Type     string
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string

	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// SlowQuery is the threshold above which statements are logged at warn.
	SlowQuery time.Duration
}

func (c Config) Driver() string {
	return strings.ToLower(strings.TrimSpace(c.Type))
}

// DSN renders the connection string for Driver. Timestamps are always UTC.
func (c Config) DSN() (string, error) {
	switch c.Driver() {
	case "postgres":
		sslmode := strings.TrimSpace(c.SSLMode)
		if sslmode == "" {
			sslmode = "disable"
		}
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			c.Host, c.User, c.Password, c.Name, c.Port, sslmode), nil
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			c.User, c.Password, c.Host, c.Port, c.Name), nil
	case "sqlite":
		name := strings.TrimSpace(c.Name)
		if name == "" {
			name = "launchpad.db"
		}
		return name, nil
	default:
		return "", fmt.Errorf("unsupported database type %q", c.Type)
	}
}

// Target identifies the database in logs without credentials.
func (c Config) Target() string {
	if c.Driver() == "sqlite" {
		dsn, _ := c.DSN()
		return "sqlite:" + dsn
	}
	u := url.URL{Scheme: c.Driver(), Host: c.Host + ":" + c.Port, Path: "/" + c.Name}
	return u.String()
}
