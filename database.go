package corepay

import (
	"embed"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/agentpay/corepay/pkg/log"
)

//go:embed config/migrations/*/*.sql
var embedMigrations embed.FS

// DatabaseConfig selects and parameterizes the ledger/intent store driver,
// mirroring the teacher's database.go DatabaseConfig exactly (env tags and
// defaults renamed from CLEARNODE_ to COREPAY_).
type DatabaseConfig struct {
	URL      string `env:"COREPAY_DATABASE_URL" env-default:""`
	Name     string `env:"COREPAY_DATABASE_NAME" env-default:""`
	Schema   string `env:"COREPAY_DATABASE_SCHEMA" env-default:""`
	Driver   string `env:"COREPAY_DATABASE_DRIVER" env-default:"sqlite"`
	Username string `env:"COREPAY_DATABASE_USERNAME" env-default:"postgres"`
	Password string `env:"COREPAY_DATABASE_PASSWORD" env-default:""`
	Host     string `env:"COREPAY_DATABASE_HOST" env-default:"localhost"`
	Port     string `env:"COREPAY_DATABASE_PORT" env-default:"5432"`
	Retries  int    `env:"COREPAY_DATABASE_RETRIES" env-default:"5"`
}

// ParseConnectionString parses either a sqlite "file:" DSN or a
// postgres(ql):// URI into a DatabaseConfig.
func ParseConnectionString(connStr string) (DatabaseConfig, error) {
	if strings.HasPrefix(connStr, "file:") {
		parts := strings.SplitN(connStr[5:], "?", 2)
		return DatabaseConfig{
			Name:    parts[0],
			Driver:  "sqlite",
			Retries: 1,
		}, nil
	}

	parsed, err := url.Parse(connStr)
	if err != nil {
		return DatabaseConfig{}, fmt.Errorf("invalid connection string: %w", err)
	}
	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return DatabaseConfig{}, fmt.Errorf("unsupported scheme: %s", parsed.Scheme)
	}

	username, password := "", ""
	if parsed.User != nil {
		username = parsed.User.Username()
		password, _ = parsed.User.Password()
	}

	port := parsed.Port()
	if port == "" {
		port = "5432"
	}

	query := parsed.Query()
	schemaName := query.Get("search_path")
	retries := 5
	if r := query.Get("retries"); r != "" {
		if v, err := strconv.Atoi(r); err == nil {
			retries = v
		}
	}

	return DatabaseConfig{
		Name:     strings.TrimPrefix(parsed.Path, "/"),
		Schema:   schemaName,
		Driver:   "postgres",
		Username: username,
		Password: password,
		Host:     parsed.Hostname(),
		Port:     port,
		Retries:  retries,
	}, nil
}

// ConnectToDB dials and migrates the ledger/intent store per cnf.Driver.
func ConnectToDB(cnf DatabaseConfig, lg log.Logger) (*gorm.DB, error) {
	switch cnf.Driver {
	case "postgres":
		return connectToPostgresql(cnf, lg)
	case "sqlite", "":
		return connectToSqlite(cnf, lg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cnf.Driver)
	}
}

func connectToPostgresql(cnf DatabaseConfig, lg log.Logger) (*gorm.DB, error) {
	lg.Info("connecting to postgresql")
	if err := ensurePostgresqlSchema(cnf, lg); err != nil {
		return nil, fmt.Errorf("failed to ensure postgresql schema: %w", err)
	}
	if err := migratePostgres(cnf, lg); err != nil {
		return nil, fmt.Errorf("failed to apply postgresql migrations: %w", err)
	}

	dsn, err := postgresqlDbURL(cnf)
	if err != nil {
		return nil, err
	}
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{TablePrefix: prefixedSchema(cnf.Schema)},
	})
}

func connectToSqlite(cnf DatabaseConfig, lg log.Logger) (*gorm.DB, error) {
	var dsn string
	if cnf.Name != "" {
		lg.Info("connecting to sqlite", "name", cnf.Name)
		dsn = fmt.Sprintf("file:%s?cache=shared", cnf.Name)
	} else {
		lg.Info("connecting to in-memory sqlite")
		dsn = "file::memory:?cache=shared"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{TablePrefix: prefixedSchema(cnf.Schema)},
	})
	if err != nil {
		return nil, err
	}
	if err := migrateSqlite(db); err != nil {
		return nil, err
	}
	lg.Info("sqlite auto-migration complete")
	return db, nil
}

func prefixedSchema(name string) string {
	if name == "" {
		return ""
	}
	return name + "."
}

func postgresqlDbURL(cnf DatabaseConfig) (string, error) {
	if cnf.Driver != "postgres" {
		return "", fmt.Errorf("unsupported driver: %s", cnf.Driver)
	}
	dsn := fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=disable",
		cnf.Username, cnf.Password, cnf.Host, cnf.Port, cnf.Name,
	)
	if cnf.Schema != "" {
		dsn = fmt.Sprintf("%s search_path=%s", dsn, cnf.Schema)
	}
	return dsn, nil
}

func ensurePostgresqlSchema(cnf DatabaseConfig, lg log.Logger) error {
	if cnf.Schema == "" {
		return nil
	}
	noSchema := cnf
	noSchema.Schema = ""
	dsn, err := postgresqlDbURL(noSchema)
	if err != nil {
		return err
	}

	db, err := sqlx.Connect(cnf.Driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	var exists int
	err = db.Get(&exists, "SELECT count(*) FROM information_schema.schemata WHERE schema_name=$1", cnf.Schema)
	if err != nil {
		return fmt.Errorf("error while checking schema existence: %w", err)
	}
	if exists > 0 {
		lg.Info("schema already exists", "schema", cnf.Schema)
		return nil
	}

	if _, err := db.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", cnf.Schema)); err != nil {
		return fmt.Errorf("error while creating schema: %w", err)
	}
	lg.Info("schema created", "schema", cnf.Schema)
	return nil
}

func migratePostgres(cnf DatabaseConfig, lg log.Logger) error {
	dsn, err := postgresqlDbURL(cnf)
	if err != nil {
		return err
	}
	db, err := goose.OpenDBWithDriver(cnf.Driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if cnf.Schema != "" {
		if _, err := db.Exec(fmt.Sprintf("SET search_path TO %s", cnf.Schema)); err != nil {
			return fmt.Errorf("failed to set search path: %w", err)
		}
	}

	lg.Info("applying database migrations")
	goose.SetBaseFS(embedMigrations)
	if err := goose.Up(db, "config/migrations/"+cnf.Driver); err != nil {
		return err
	}
	lg.Info("migrations applied")
	return nil
}

func migrateSqlite(db *gorm.DB) error {
	return db.AutoMigrate(&LedgerEntry{}, &PaymentIntent{})
}
