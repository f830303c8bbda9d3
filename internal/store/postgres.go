package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentflow-dev/toolsets/internal/models"
)

const pgUniqueViolation = "23505"

const postgresSchema = `
CREATE TABLE IF NOT EXISTS oauth_configs (
	id            TEXT PRIMARY KEY,
	toolset_type  TEXT NOT NULL,
	org_id        TEXT NOT NULL,
	name          TEXT NOT NULL,
	client_id     TEXT NOT NULL DEFAULT '',
	client_secret TEXT NOT NULL DEFAULT '',
	authorize_url TEXT NOT NULL DEFAULT '',
	token_url     TEXT NOT NULL DEFAULT '',
	scopes        JSONB NOT NULL DEFAULT '[]',
	redirect_uri  TEXT NOT NULL DEFAULT '',
	created_at    BIGINT NOT NULL,
	updated_at    BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS toolset_instances (
	id              TEXT PRIMARY KEY,
	toolset_type    TEXT NOT NULL,
	org_id          TEXT NOT NULL,
	instance_name   TEXT NOT NULL,
	auth_type       TEXT NOT NULL,
	oauth_config_id TEXT REFERENCES oauth_configs(id),
	base_url        TEXT NOT NULL DEFAULT '',
	created_by      TEXT NOT NULL DEFAULT '',
	auth_config     JSONB NOT NULL DEFAULT '{}',
	created_at      BIGINT NOT NULL,
	updated_at      BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS user_credentials (
	user_id       TEXT NOT NULL,
	instance_id   TEXT NOT NULL REFERENCES toolset_instances(id) ON DELETE CASCADE,
	secret        JSONB NOT NULL DEFAULT '{}',
	authenticated BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    BIGINT NOT NULL,
	updated_at    BIGINT NOT NULL,
	PRIMARY KEY (user_id, instance_id)
);

CREATE TABLE IF NOT EXISTS instance_tools (
	id          TEXT PRIMARY KEY,
	instance_id TEXT NOT NULL REFERENCES toolset_instances(id) ON DELETE CASCADE,
	user_id     TEXT NOT NULL,
	name        TEXT NOT NULL,
	full_name   TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at  BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_instances_org ON toolset_instances(org_id);
CREATE INDEX IF NOT EXISTS idx_instances_oauth_config ON toolset_instances(oauth_config_id);
CREATE INDEX IF NOT EXISTS idx_credentials_instance ON user_credentials(instance_id);
CREATE INDEX IF NOT EXISTS idx_instance_tools_instance ON instance_tools(instance_id);
`

// PostgresStore is the pgx-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func nowMillis() int64 { return time.Now().UnixMilli() }

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicate
	}
	return err
}

func marshalMap(m map[string]string) ([]byte, error) {
	if m == nil {
		m = map[string]string{}
	}
	return json.Marshal(m)
}

func (s *PostgresStore) CreateInstance(ctx context.Context, instance *models.ToolsetInstance) error {
	authConfig, err := marshalMap(instance.AuthConfig)
	if err != nil {
		return err
	}
	instance.CreatedAt = nowMillis()
	instance.UpdatedAt = instance.CreatedAt
	var configID *string
	if instance.OAuthConfigID != "" {
		configID = &instance.OAuthConfigID
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO toolset_instances
			(id, toolset_type, org_id, instance_name, auth_type, oauth_config_id, base_url, created_by, auth_config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		instance.ID, instance.ToolsetType, instance.OrgID, instance.InstanceName,
		string(instance.AuthType), configID, instance.BaseURL, instance.CreatedBy,
		authConfig, instance.CreatedAt, instance.UpdatedAt)
	return mapPgError(err)
}

func (s *PostgresStore) scanInstance(row pgx.Row) (*models.ToolsetInstance, error) {
	var (
		instance   models.ToolsetInstance
		authType   string
		configID   *string
		authConfig []byte
	)
	err := row.Scan(&instance.ID, &instance.ToolsetType, &instance.OrgID,
		&instance.InstanceName, &authType, &configID, &instance.BaseURL,
		&instance.CreatedBy, &authConfig, &instance.CreatedAt, &instance.UpdatedAt)
	if err != nil {
		return nil, mapPgError(err)
	}
	instance.AuthType = models.AuthType(authType)
	if configID != nil {
		instance.OAuthConfigID = *configID
	}
	if err := json.Unmarshal(authConfig, &instance.AuthConfig); err != nil {
		return nil, fmt.Errorf("failed to decode auth config: %w", err)
	}
	return &instance, nil
}

const instanceColumns = `id, toolset_type, org_id, instance_name, auth_type, oauth_config_id, base_url, created_by, auth_config, created_at, updated_at`

func (s *PostgresStore) GetInstance(ctx context.Context, id string) (*models.ToolsetInstance, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+instanceColumns+` FROM toolset_instances WHERE id = $1`, id)
	return s.scanInstance(row)
}

func (s *PostgresStore) ListInstances(ctx context.Context, filter InstanceFilter) ([]*models.ToolsetInstance, int, error) {
	var (
		conditions []string
		args       []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.OrgID != "" {
		conditions = append(conditions, "org_id = "+arg(filter.OrgID))
	}
	if filter.ToolsetType != "" {
		conditions = append(conditions, "toolset_type = "+arg(filter.ToolsetType))
	}
	if filter.Search != "" {
		p := arg("%" + strings.ToLower(filter.Search) + "%")
		conditions = append(conditions, "(LOWER(instance_name) LIKE "+p+" OR LOWER(toolset_type) LIKE "+p+")")
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM toolset_instances`+where, args...).Scan(&total); err != nil {
		return nil, 0, mapPgError(err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 30
	}
	query := `SELECT ` + instanceColumns + ` FROM toolset_instances` + where +
		` ORDER BY created_at DESC, id LIMIT ` + arg(limit) + ` OFFSET ` + arg((page-1)*limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, mapPgError(err)
	}
	defer rows.Close()

	var out []*models.ToolsetInstance
	for rows.Next() {
		instance, err := s.scanInstance(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, instance)
	}
	return out, total, mapPgError(rows.Err())
}

func (s *PostgresStore) UpdateInstance(ctx context.Context, instance *models.ToolsetInstance) error {
	authConfig, err := marshalMap(instance.AuthConfig)
	if err != nil {
		return err
	}
	instance.UpdatedAt = nowMillis()
	var configID *string
	if instance.OAuthConfigID != "" {
		configID = &instance.OAuthConfigID
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE toolset_instances
		SET instance_name = $2, oauth_config_id = $3, base_url = $4, auth_config = $5, updated_at = $6
		WHERE id = $1`,
		instance.ID, instance.InstanceName, configID, instance.BaseURL, authConfig, instance.UpdatedAt)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteInstance(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM toolset_instances WHERE id = $1`, id)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateOAuthConfig(ctx context.Context, config *models.OAuthConfig) error {
	scopes, err := json.Marshal(config.Scopes)
	if err != nil {
		return err
	}
	config.CreatedAt = nowMillis()
	config.UpdatedAt = config.CreatedAt
	_, err = s.pool.Exec(ctx, `
		INSERT INTO oauth_configs
			(id, toolset_type, org_id, name, client_id, client_secret, authorize_url, token_url, scopes, redirect_uri, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		config.ID, config.ToolsetType, config.OrgID, config.Name, config.ClientID,
		config.ClientSecret, config.AuthorizeURL, config.TokenURL, scopes,
		config.RedirectURI, config.CreatedAt, config.UpdatedAt)
	return mapPgError(err)
}

const oauthConfigColumns = `id, toolset_type, org_id, name, client_id, client_secret, authorize_url, token_url, scopes, redirect_uri, created_at, updated_at`

func (s *PostgresStore) scanOAuthConfig(row pgx.Row) (*models.OAuthConfig, error) {
	var (
		config models.OAuthConfig
		scopes []byte
	)
	err := row.Scan(&config.ID, &config.ToolsetType, &config.OrgID, &config.Name,
		&config.ClientID, &config.ClientSecret, &config.AuthorizeURL, &config.TokenURL,
		&scopes, &config.RedirectURI, &config.CreatedAt, &config.UpdatedAt)
	if err != nil {
		return nil, mapPgError(err)
	}
	if err := json.Unmarshal(scopes, &config.Scopes); err != nil {
		return nil, fmt.Errorf("failed to decode scopes: %w", err)
	}
	return &config, nil
}

func (s *PostgresStore) GetOAuthConfig(ctx context.Context, id string) (*models.OAuthConfig, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+oauthConfigColumns+` FROM oauth_configs WHERE id = $1`, id)
	return s.scanOAuthConfig(row)
}

func (s *PostgresStore) ListOAuthConfigs(ctx context.Context, orgID, toolsetType string) ([]*models.OAuthConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+oauthConfigColumns+` FROM oauth_configs
		WHERE ($1 = '' OR org_id = $1) AND ($2 = '' OR toolset_type = $2)
		ORDER BY name`, orgID, toolsetType)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var out []*models.OAuthConfig
	for rows.Next() {
		config, err := s.scanOAuthConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, config)
	}
	return out, mapPgError(rows.Err())
}

func (s *PostgresStore) UpdateOAuthConfig(ctx context.Context, config *models.OAuthConfig) error {
	scopes, err := json.Marshal(config.Scopes)
	if err != nil {
		return err
	}
	config.UpdatedAt = nowMillis()
	tag, err := s.pool.Exec(ctx, `
		UPDATE oauth_configs
		SET name = $2, client_id = $3, client_secret = $4, authorize_url = $5, token_url = $6, scopes = $7, redirect_uri = $8, updated_at = $9
		WHERE id = $1`,
		config.ID, config.Name, config.ClientID, config.ClientSecret,
		config.AuthorizeURL, config.TokenURL, scopes, config.RedirectURI, config.UpdatedAt)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteOAuthConfig(ctx context.Context, id string) error {
	count, err := s.CountInstancesByOAuthConfig(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrConfigInUse
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM oauth_configs WHERE id = $1`, id)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CountInstancesByOAuthConfig(ctx context.Context, configID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM toolset_instances WHERE oauth_config_id = $1`, configID).Scan(&count)
	return count, mapPgError(err)
}

func (s *PostgresStore) UpsertCredential(ctx context.Context, credential *models.UserCredential) error {
	secret, err := marshalMap(credential.Secret)
	if err != nil {
		return err
	}
	now := nowMillis()
	credential.CreatedAt = now
	credential.UpdatedAt = now
	_, err = s.pool.Exec(ctx, `
		INSERT INTO user_credentials (user_id, instance_id, secret, authenticated, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id, instance_id) DO UPDATE SET
			secret = excluded.secret,
			authenticated = excluded.authenticated,
			updated_at = excluded.updated_at`,
		credential.UserID, credential.InstanceID, secret, credential.Authenticated, now)
	return mapPgError(err)
}

func (s *PostgresStore) GetCredential(ctx context.Context, userID, instanceID string) (*models.UserCredential, error) {
	var (
		credential models.UserCredential
		secret     []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, instance_id, secret, authenticated, created_at, updated_at
		FROM user_credentials WHERE user_id = $1 AND instance_id = $2`,
		userID, instanceID).Scan(&credential.UserID, &credential.InstanceID,
		&secret, &credential.Authenticated, &credential.CreatedAt, &credential.UpdatedAt)
	if err != nil {
		return nil, mapPgError(err)
	}
	if err := json.Unmarshal(secret, &credential.Secret); err != nil {
		return nil, fmt.Errorf("failed to decode credential secret: %w", err)
	}
	return &credential, nil
}

func (s *PostgresStore) DeleteCredential(ctx context.Context, userID, instanceID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM user_credentials WHERE user_id = $1 AND instance_id = $2`, userID, instanceID)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CountAuthenticatedByInstance(ctx context.Context, instanceID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_credentials WHERE instance_id = $1 AND authenticated`, instanceID).Scan(&count)
	return count, mapPgError(err)
}

func (s *PostgresStore) RevokeByInstance(ctx context.Context, instanceID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		WITH deleted AS (
			DELETE FROM user_credentials WHERE instance_id = $1 RETURNING authenticated
		)
		SELECT COUNT(*) FROM deleted WHERE authenticated`, instanceID).Scan(&count)
	return count, mapPgError(err)
}

func (s *PostgresStore) RevokeByOAuthConfig(ctx context.Context, configID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		WITH deleted AS (
			DELETE FROM user_credentials
			WHERE instance_id IN (SELECT id FROM toolset_instances WHERE oauth_config_id = $1)
			RETURNING authenticated
		)
		SELECT COUNT(*) FROM deleted WHERE authenticated`, configID).Scan(&count)
	return count, mapPgError(err)
}

func (s *PostgresStore) AddInstanceTools(ctx context.Context, tools []*models.InstanceTool) error {
	for _, tool := range tools {
		tool.CreatedAt = nowMillis()
		_, err := s.pool.Exec(ctx, `
			INSERT INTO instance_tools (id, instance_id, user_id, name, full_name, description, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			tool.ID, tool.InstanceID, tool.UserID, tool.Name, tool.FullName, tool.Description, tool.CreatedAt)
		if err != nil {
			return mapPgError(err)
		}
	}
	return nil
}

func (s *PostgresStore) ListInstanceTools(ctx context.Context, instanceID string) ([]*models.InstanceTool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, instance_id, user_id, name, full_name, description, created_at
		FROM instance_tools WHERE instance_id = $1 ORDER BY full_name`, instanceID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var out []*models.InstanceTool
	for rows.Next() {
		var tool models.InstanceTool
		if err := rows.Scan(&tool.ID, &tool.InstanceID, &tool.UserID, &tool.Name,
			&tool.FullName, &tool.Description, &tool.CreatedAt); err != nil {
			return nil, mapPgError(err)
		}
		out = append(out, &tool)
	}
	return out, mapPgError(rows.Err())
}

func (s *PostgresStore) DeleteInstanceTool(ctx context.Context, instanceID, toolID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM instance_tools WHERE instance_id = $1 AND id = $2`, instanceID, toolID)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
