package state

import (
	"errors"
	"fmt"

	"github.com/hashicorp/nomad/api"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
	"github.com/hashicorp-forge/build-trigger/internal/controller/state/dev"
	"github.com/hashicorp-forge/build-trigger/internal/controller/state/nvar"
	"github.com/hashicorp-forge/build-trigger/internal/controller/state/sqlstate"
)

const (
	BackendDev       = "dev"
	BackendSQL       = "sql"
	BackendNomadVars = "nomad-vars"
)

type Config struct {
	Backend string           `hcl:"backend,optional"`
	SQL     *sqlstate.Config `hcl:"sql,block"`
	Nomad   *NomadConfig     `hcl:"nomad,block"`
}

type NomadConfig struct {
	Addr      string `hcl:"addr,optional"`
	Token     string `hcl:"token,optional"`
	Namespace string `hcl:"namespace,optional"`
}

func (c *Config) Merge(other *Config) *Config {
	if c == nil {
		return other
	}
	if other == nil {
		return c
	}

	result := *c

	if other.Backend != "" {
		result.Backend = other.Backend
	}

	if other.SQL != nil {
		sql := sqlstate.Config{}
		if result.SQL != nil {
			sql = *result.SQL
		}
		if other.SQL.Driver != "" {
			sql.Driver = other.SQL.Driver
		}
		if other.SQL.Path != "" {
			sql.Path = other.SQL.Path
		}
		if other.SQL.DSN != "" {
			sql.DSN = other.SQL.DSN
		}
		result.SQL = &sql
	}

	if other.Nomad != nil {
		nomad := NomadConfig{}
		if result.Nomad != nil {
			nomad = *result.Nomad
		}
		if other.Nomad.Addr != "" {
			nomad.Addr = other.Nomad.Addr
		}
		if other.Nomad.Token != "" {
			nomad.Token = other.Nomad.Token
		}
		if other.Nomad.Namespace != "" {
			nomad.Namespace = other.Nomad.Namespace
		}
		result.Nomad = &nomad
	}

	return &result
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendDev:
		return nil
	case BackendSQL:
		if c.SQL == nil {
			return errors.New("sql state backend requires an sql block")
		}
		if c.SQL.Driver == sqlstate.DriverPostgres && c.SQL.DSN == "" {
			return errors.New("postgres state backend requires a dsn")
		}
		return nil
	case BackendNomadVars:
		if c.Nomad == nil || c.Nomad.Addr == "" {
			return errors.New("nomad-vars state backend requires a nomad address")
		}
		return nil
	default:
		return fmt.Errorf("unsupported state backend: %s", c.Backend)
	}
}

func DefaultConfig() *Config {
	return &Config{
		Backend: BackendSQL,
		SQL: &sqlstate.Config{
			Driver: sqlstate.DriverSQLite,
			Path:   "build-trigger.db",
		},
		Nomad: &NomadConfig{
			Addr: "http://localhost:4646",
		},
	}
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "state-backend",
			Usage:   "The state backend to use (dev, sql, nomad-vars)",
			Sources: cli.EnvVars("BUILD_TRIGGER_STATE_BACKEND"),
		},
		&cli.StringFlag{
			Name:    "state-sql-driver",
			Usage:   "The SQL state backend driver (sqlite, postgres)",
			Sources: cli.EnvVars("BUILD_TRIGGER_STATE_SQL_DRIVER"),
		},
		&cli.StringFlag{
			Name:    "state-sql-path",
			Usage:   "The path of the SQLite database file",
			Sources: cli.EnvVars("BUILD_TRIGGER_STATE_SQL_PATH"),
		},
		&cli.StringFlag{
			Name:    "state-sql-dsn",
			Usage:   "The PostgreSQL connection string",
			Sources: cli.EnvVars("BUILD_TRIGGER_STATE_SQL_DSN"),
		},
		&cli.StringFlag{
			Name:    "nomad-addr",
			Usage:   "The Nomad server address used by the nomad-vars backend",
			Sources: cli.EnvVars("NOMAD_ADDR"),
		},
		&cli.StringFlag{
			Name:    "nomad-token",
			Usage:   "The Nomad ACL token used by the nomad-vars backend",
			Sources: cli.EnvVars("NOMAD_TOKEN"),
		},
		&cli.StringFlag{
			Name:    "nomad-namespace",
			Usage:   "The Nomad namespace holding the trigger config variables",
			Sources: cli.EnvVars("NOMAD_NAMESPACE"),
		},
	}
}

func ConfigFromCLI(cmd *cli.Command) *Config {
	return &Config{
		Backend: cmd.String("state-backend"),
		SQL: &sqlstate.Config{
			Driver: cmd.String("state-sql-driver"),
			Path:   cmd.String("state-sql-path"),
			DSN:    cmd.String("state-sql-dsn"),
		},
		Nomad: &NomadConfig{
			Addr:      cmd.String("nomad-addr"),
			Token:     cmd.String("nomad-token"),
			Namespace: cmd.String("nomad-namespace"),
		},
	}
}

func NewBackend(cfg *Config, logger *zap.Logger) (state.State, error) {
	switch cfg.Backend {
	case BackendDev:
		return dev.New(), nil
	case BackendSQL:
		return sqlstate.New(cfg.SQL, logger)
	case BackendNomadVars:
		client, err := generateNomadClient(cfg.Nomad)
		if err != nil {
			return nil, fmt.Errorf("failed to create Nomad client: %w", err)
		}
		return nvar.New(logger, client)
	default:
		return nil, fmt.Errorf("unsupported state backend: %s", cfg.Backend)
	}
}

func generateNomadClient(cfg *NomadConfig) (*api.Client, error) {
	nomadCfg := api.DefaultConfig()

	if cfg.Addr != "" {
		nomadCfg.Address = cfg.Addr
	}
	if cfg.Token != "" {
		nomadCfg.SecretID = cfg.Token
	}
	if cfg.Namespace != "" {
		nomadCfg.Namespace = cfg.Namespace
	}

	return api.NewClient(nomadCfg)
}
