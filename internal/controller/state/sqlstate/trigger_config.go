package sqlstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	serverstate "github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
	"github.com/hashicorp-forge/build-trigger/internal/pkg/state"
)

func (s *State) TriggerConfigs() serverstate.TriggerConfigs {
	return &TriggerConfigs{s: s}
}

type TriggerConfigs struct {
	s *State
}

type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

func (t *TriggerConfigs) Load(req *serverstate.TriggerConfigsLoadReq) (*serverstate.TriggerConfigsLoadResp, *serverstate.ErrorResp) {
	if err := t.insertDefault(t.s.db, req.AppSlug); err != nil {
		return nil, t.unavailable("load", req.AppSlug, err)
	}

	cfg, err := t.selectConfig(t.s.db, req.AppSlug, false)
	if err != nil {
		return nil, t.unavailable("load", req.AppSlug, err)
	}

	return &serverstate.TriggerConfigsLoadResp{Config: cfg}, nil
}

func (t *TriggerConfigs) List(_ *serverstate.TriggerConfigsListReq) (*serverstate.TriggerConfigsListResp, *serverstate.ErrorResp) {
	rows, err := t.s.db.Query(
		`SELECT app_slug, workflow_ids, api_token, git_object_type, git_object_value
		 FROM trigger_configs ORDER BY app_slug ASC`,
	)
	if err != nil {
		return nil, t.unavailable("list", "", fmt.Errorf("list trigger configs: %w", err))
	}
	defer rows.Close()

	resp := serverstate.TriggerConfigsListResp{}

	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, t.unavailable("list", "", err)
		}
		resp.Configs = append(resp.Configs, cfg.Stub())
	}
	if err := rows.Err(); err != nil {
		return nil, t.unavailable("list", "", fmt.Errorf("iterate trigger configs: %w", err))
	}

	return &resp, nil
}

func (t *TriggerConfigs) AppendWorkflowID(req *serverstate.TriggerConfigsAppendWorkflowIDReq) (*serverstate.TriggerConfigsAppendWorkflowIDResp, *serverstate.ErrorResp) {
	cfg, err := t.update(req.AppSlug, func(cfg *state.TriggerConfig) *serverstate.ErrorResp {
		cfg.WorkflowIDs = append(cfg.WorkflowIDs, req.WorkflowID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &serverstate.TriggerConfigsAppendWorkflowIDResp{Config: cfg}, nil
}

func (t *TriggerConfigs) RemoveWorkflowID(req *serverstate.TriggerConfigsRemoveWorkflowIDReq) (*serverstate.TriggerConfigsRemoveWorkflowIDResp, *serverstate.ErrorResp) {
	cfg, err := t.update(req.AppSlug, func(cfg *state.TriggerConfig) *serverstate.ErrorResp {
		ids, ok := serverstate.RemoveAt(cfg.WorkflowIDs, req.Index)
		if !ok {
			return serverstate.NewIndexOutOfRangeResp()
		}
		cfg.WorkflowIDs = ids
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &serverstate.TriggerConfigsRemoveWorkflowIDResp{Config: cfg}, nil
}

func (t *TriggerConfigs) SetAPIToken(req *serverstate.TriggerConfigsSetAPITokenReq) (*serverstate.TriggerConfigsSetAPITokenResp, *serverstate.ErrorResp) {
	cfg, err := t.update(req.AppSlug, func(cfg *state.TriggerConfig) *serverstate.ErrorResp {
		cfg.APIToken = req.APIToken
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &serverstate.TriggerConfigsSetAPITokenResp{Config: cfg}, nil
}

func (t *TriggerConfigs) SetGitReference(req *serverstate.TriggerConfigsSetGitReferenceReq) (*serverstate.TriggerConfigsSetGitReferenceResp, *serverstate.ErrorResp) {
	cfg, err := t.update(req.AppSlug, func(cfg *state.TriggerConfig) *serverstate.ErrorResp {
		cfg.GitReference = req.GitReference
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &serverstate.TriggerConfigsSetGitReferenceResp{Config: cfg}, nil
}

// update runs fn inside a transaction over the locked row. Returning an error
// from fn rolls the transaction back.
func (t *TriggerConfigs) update(appSlug string, fn func(*state.TriggerConfig) *serverstate.ErrorResp) (*state.TriggerConfig, *serverstate.ErrorResp) {
	unlock := t.s.slugLocks.Lock(appSlug)
	defer unlock()

	tx, err := t.s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return nil, t.unavailable("begin", appSlug, fmt.Errorf("begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if err := t.insertDefault(tx, appSlug); err != nil {
		return nil, t.unavailable("update", appSlug, err)
	}

	cfg, err := t.selectConfig(tx, appSlug, true)
	if err != nil {
		return nil, t.unavailable("update", appSlug, err)
	}

	if errResp := fn(cfg); errResp != nil {
		return nil, errResp
	}

	ids, err := json.Marshal(cfg.WorkflowIDs)
	if err != nil {
		return nil, t.unavailable("update", appSlug, fmt.Errorf("encode workflow ids: %w", err))
	}

	objectType, objectValue := cfg.GitReference.Encode()

	if _, err := tx.Exec(
		t.s.rebind(`UPDATE trigger_configs
		 SET workflow_ids = ?, api_token = ?, git_object_type = ?, git_object_value = ?
		 WHERE app_slug = ?`),
		string(ids), nullString(cfg.APIToken), objectType, objectValue, appSlug,
	); err != nil {
		return nil, t.unavailable("update", appSlug, fmt.Errorf("update trigger config: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return nil, t.unavailable("commit", appSlug, fmt.Errorf("commit tx: %w", err))
	}

	return cfg, nil
}

func (t *TriggerConfigs) insertDefault(q querier, appSlug string) error {
	def := state.NewTriggerConfig(appSlug)
	objectType, objectValue := def.GitReference.Encode()

	if _, err := q.Exec(
		t.s.rebind(`INSERT INTO trigger_configs (app_slug, workflow_ids, api_token, git_object_type, git_object_value)
		 VALUES (?, '[]', NULL, ?, ?)
		 ON CONFLICT (app_slug) DO NOTHING`),
		appSlug, objectType, objectValue,
	); err != nil {
		return fmt.Errorf("insert default trigger config: %w", err)
	}
	return nil
}

func (t *TriggerConfigs) selectConfig(q querier, appSlug string, forUpdate bool) (*state.TriggerConfig, error) {
	query := `SELECT app_slug, workflow_ids, api_token, git_object_type, git_object_value
		 FROM trigger_configs WHERE app_slug = ?`

	// SQLite locks the whole database for the writing transaction instead.
	if forUpdate && t.s.driver == DriverPostgres {
		query += ` FOR UPDATE`
	}

	cfg, err := scanConfig(q.QueryRow(t.s.rebind(query), appSlug))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConfig(row scanner) (*state.TriggerConfig, error) {
	var (
		cfg         state.TriggerConfig
		ids         string
		token       sql.NullString
		objectType  string
		objectValue string
	)

	if err := row.Scan(&cfg.AppSlug, &ids, &token, &objectType, &objectValue); err != nil {
		return nil, fmt.Errorf("scan trigger config: %w", err)
	}

	if err := json.Unmarshal([]byte(ids), &cfg.WorkflowIDs); err != nil {
		return nil, fmt.Errorf("decode workflow ids: %w", err)
	}
	if cfg.WorkflowIDs == nil {
		cfg.WorkflowIDs = []string{}
	}

	if token.Valid {
		cfg.APIToken = &token.String
	}

	ref, err := state.DecodeGitReference(objectType, objectValue)
	if err != nil {
		return nil, fmt.Errorf("decode git reference: %w", err)
	}
	cfg.GitReference = ref

	return &cfg, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func (t *TriggerConfigs) unavailable(op, appSlug string, err error) *serverstate.ErrorResp {
	t.s.logger.Error("trigger config operation failed",
		zap.String("op", op),
		zap.String("app_slug", appSlug),
		zap.Error(err))
	return serverstate.NewStoreUnavailableResp(err)
}
