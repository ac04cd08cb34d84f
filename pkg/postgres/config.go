package postgres

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

type Config struct {
	Username     string
	Password     string
	Host         string
	Port         int
	Database     string
	PoolMaxConns int
	SslMode      string
}

// ToDBConnectionURI returns a connection URI to be used with the pgx package.
func (c Config) ToDBConnectionURI() string {
	sslMode := c.SslMode
	if sslMode == "" {
		sslMode = "disable"
	}

	poolMaxConns := c.PoolMaxConns
	if poolMaxConns <= 0 {
		poolMaxConns = 4
	}

	return fmt.Sprintf("postgres://%s@%s/%s?sslmode=%s&pool_max_conns=%d",
		url.UserPassword(c.Username, c.Password).String(),
		net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		url.PathEscape(c.Database),
		url.QueryEscape(sslMode),
		poolMaxConns,
	)
}

func (c Config) GetDatabase() string {
	return c.Database
}

// String is safe to log.
func (c Config) String() string {
	return fmt.Sprintf("%s@%s/%s", c.Username, net.JoinHostPort(c.Host, strconv.Itoa(c.Port)), c.Database)
}
