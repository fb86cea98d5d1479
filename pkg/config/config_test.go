package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ConfigYAML(t *testing.T) {
	path := filepath.Join("..", "..", "config", "config.yaml")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.NotEmpty(t, cfg.Database.Host)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, int64(1), cfg.Snowflake.Node)
	assert.Equal(t, []string{"stdout"}, cfg.Log.OutputPaths)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsAndEnvOverride(t *testing.T) {
	path := writeConfig(t, "auth:\n  jwt_secret: s3cret\n")
	t.Setenv("TAKEOUT_DATABASE_PASSWORD", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "orders_topic", cfg.RabbitMQ.Exchange)
	assert.Equal(t, "audit_logs", cfg.MongoDB.Collection)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing jwt secret", body: "database:\n  driver: mysql\n"},
		{name: "unknown driver", body: "auth:\n  jwt_secret: x\ndatabase:\n  driver: oracle\n"},
		{name: "snowflake node out of range", body: "auth:\n  jwt_secret: x\nsnowflake:\n  node: 4096\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	mysql := DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, Username: "u", Password: "p", Database: "takeout"}
	assert.Equal(t, "u:p@tcp(db:3306)/takeout?charset=utf8mb4&parseTime=True&loc=Local", mysql.DSN())

	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, Username: "u", Password: "p", Database: "takeout"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=takeout sslmode=disable TimeZone=UTC", pg.DSN())
}
