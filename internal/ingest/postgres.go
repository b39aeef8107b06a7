package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apierrors "github.com/dwellir-public/haproxy-collector/internal/errors"
	"github.com/dwellir-public/haproxy-collector/internal/topology"
	"github.com/dwellir-public/haproxy-collector/pkg/logger"
)

// PostgresIngestor loads resolved entries into the shared inventory
// database. Each pass runs in one transaction: a new entry row marks the
// pass, the rows are bulk-copied into a temporary map table and a stored
// procedure folds them into the versioned tables.
type PostgresIngestor struct {
	pool    *pgxpool.Pool
	ownerID int64
	logger  *logger.Logger
}

// NewPostgresIngestor connects to the database and verifies the connection
func NewPostgresIngestor(ctx context.Context, databaseURL string, ownerID int64, log *logger.Logger) (*PostgresIngestor, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, apierrors.WrapError(err, apierrors.ErrCodeIngest, "postgres", "failed to create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apierrors.WrapError(err, apierrors.ErrCodeIngest, "postgres", "failed to reach database")
	}

	return &PostgresIngestor{
		pool:    pool,
		ownerID: ownerID,
		logger:  log,
	}, nil
}

// Close releases the connection pool
func (p *PostgresIngestor) Close() {
	p.pool.Close()
}

// LookupInstanceID resolves the database id of the HAProxy instance being
// collected, by name when one is configured, otherwise by id. The instance
// must already be registered.
func (p *PostgresIngestor) LookupInstanceID(ctx context.Context, name string, id int64) (int64, error) {
	var (
		row pgx.Row
	)
	switch {
	case name != "":
		row = p.pool.QueryRow(ctx, `SELECT id FROM haproxy WHERE name = $1 LIMIT 1`, name)
	case id != 0:
		row = p.pool.QueryRow(ctx, `SELECT id FROM haproxy WHERE id = $1 LIMIT 1`, id)
	default:
		return 0, apierrors.NewError(apierrors.ErrCodeInstanceLookup, "postgres",
			"either a HAProxy name or id must be configured")
	}

	var instanceID int64
	if err := row.Scan(&instanceID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apierrors.NewError(apierrors.ErrCodeInstanceLookup, "postgres",
				"HAProxy instance is not registered in the database")
		}
		return 0, apierrors.WrapError(err, apierrors.ErrCodeInstanceLookup, "postgres", "instance lookup failed")
	}
	return instanceID, nil
}

// Ingest persists one pass worth of entries
func (p *PostgresIngestor) Ingest(ctx context.Context, haproxyID int64, entries []topology.Entry) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return apierrors.WrapError(err, apierrors.ErrCodeIngest, "postgres", "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	var entryID int64
	if err := tx.QueryRow(ctx, `INSERT INTO entry (owner) VALUES ($1) RETURNING id`, p.ownerID).Scan(&entryID); err != nil {
		return apierrors.WrapError(err, apierrors.ErrCodeIngest, "postgres", "failed to create entry row")
	}

	if _, err := tx.Exec(ctx, `CALL setup_haproxy_temp_tables_v1()`); err != nil {
		return apierrors.WrapError(err, apierrors.ErrCodeIngest, "postgres", "failed to set up temp tables")
	}

	rows := make([][]interface{}, len(entries))
	for i, entry := range entries {
		rows[i] = []interface{}{entryID, haproxyID, entry.Domain, entry.Server}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"temp_haproxy_map"},
		[]string{"row_source", "haproxy", "domain", "ip"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return apierrors.WrapError(err, apierrors.ErrCodeIngest, "postgres", "failed to load map rows")
	}

	if _, err := tx.Exec(ctx, `CALL insert_haproxy_data_v1($1)`, p.ownerID); err != nil {
		return apierrors.WrapError(err, apierrors.ErrCodeIngest, "postgres", "failed to fold map rows")
	}

	if err := tx.Commit(ctx); err != nil {
		return apierrors.WrapError(err, apierrors.ErrCodeIngest, "postgres", "failed to commit pass")
	}

	p.logger.IngestLogger().WithFields(map[string]interface{}{
		"entry_id": entryID,
		"haproxy":  haproxyID,
		"rows":     len(entries),
	}).Info("Ingested collection pass")
	return nil
}

// SupportedViewVersions lists the supported schema versions of one view
func (p *PostgresIngestor) SupportedViewVersions(ctx context.Context, name string) ([]int, error) {
	return p.supportedVersions(ctx, "views:"+name)
}

// SupportedProcedureVersions lists the supported versions of one procedure
func (p *PostgresIngestor) SupportedProcedureVersions(ctx context.Context, name string) ([]int, error) {
	return p.supportedVersions(ctx, "procs:"+name)
}

// BestViewVersion returns the highest supported version of one view, or
// false when none is supported
func (p *PostgresIngestor) BestViewVersion(ctx context.Context, name string) (int, bool, error) {
	versions, err := p.SupportedViewVersions(ctx, name)
	if err != nil {
		return 0, false, err
	}
	return best(versions)
}

// BestProcedureVersion returns the highest supported version of one
// procedure, or false when none is supported
func (p *PostgresIngestor) BestProcedureVersion(ctx context.Context, name string) (int, bool, error) {
	versions, err := p.SupportedProcedureVersions(ctx, name)
	if err != nil {
		return 0, false, err
	}
	return best(versions)
}

func (p *PostgresIngestor) supportedVersions(ctx context.Context, component string) ([]int, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT version FROM versions WHERE component = $1 AND supported = TRUE`, component)
	if err != nil {
		return nil, apierrors.WrapError(err, apierrors.ErrCodeIngest, "postgres",
			fmt.Sprintf("failed to query versions for %s", component))
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, apierrors.WrapError(err, apierrors.ErrCodeIngest, "postgres", "failed to scan version row")
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, apierrors.WrapError(err, apierrors.ErrCodeIngest, "postgres", "version query failed")
	}
	return versions, nil
}

func best(versions []int) (int, bool, error) {
	if len(versions) == 0 {
		return 0, false, nil
	}
	max := versions[0]
	for _, v := range versions[1:] {
		if v > max {
			max = v
		}
	}
	return max, true, nil
}

// RedactDatabaseURL strips credentials from a database URL for logging
func RedactDatabaseURL(databaseURL string) string {
	at := strings.LastIndex(databaseURL, "@")
	scheme := strings.Index(databaseURL, "://")
	if at == -1 || scheme == -1 || at < scheme {
		return databaseURL
	}
	return databaseURL[:scheme+3] + "***" + databaseURL[at:]
}
