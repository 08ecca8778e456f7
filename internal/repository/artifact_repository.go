package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"ghostworks/api/internal/apperr"
	"ghostworks/api/internal/database"
	"ghostworks/api/internal/models"
)

// ArtifactRepository reads and writes tenant business data. It never
// filters by tenant itself: every call runs on the tenant-scoped
// transaction from the context and row-level security does the filtering.
type ArtifactRepository struct{}

func NewArtifactRepository() *ArtifactRepository {
	return &ArtifactRepository{}
}

const artifactColumns = `id, tenant_id, created_by, name, content, created_at`

func scanArtifact(row pgx.Row) (models.Artifact, error) {
	var a models.Artifact
	err := row.Scan(&a.ID, &a.TenantID, &a.CreatedBy, &a.Name, &a.Content, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Artifact{}, apperr.ErrNotFound
	}
	return a, err
}

func scopedTx(ctx context.Context) (pgx.Tx, error) {
	tx, ok := database.TxFromContext(ctx)
	if !ok {
		return nil, database.ErrNoTenantTx
	}
	return tx, nil
}

func (r *ArtifactRepository) Create(ctx context.Context, a models.Artifact) (models.Artifact, error) {
	tx, err := scopedTx(ctx)
	if err != nil {
		return models.Artifact{}, err
	}

	const query = `
		INSERT INTO artifacts (id, tenant_id, created_by, name, content, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING ` + artifactColumns

	created, err := scanArtifact(tx.QueryRow(ctx, query, a.ID, a.TenantID, a.CreatedBy, a.Name, a.Content))
	if err != nil {
		return models.Artifact{}, fmt.Errorf("insert artifact: %w", err)
	}
	return created, nil
}

func (r *ArtifactRepository) Get(ctx context.Context, id string) (models.Artifact, error) {
	tx, err := scopedTx(ctx)
	if err != nil {
		return models.Artifact{}, err
	}
	const query = `SELECT ` + artifactColumns + ` FROM artifacts WHERE id = $1`
	return scanArtifact(tx.QueryRow(ctx, query, id))
}

func (r *ArtifactRepository) List(ctx context.Context, limit, offset int) ([]models.Artifact, error) {
	tx, err := scopedTx(ctx)
	if err != nil {
		return nil, err
	}

	const query = `
		SELECT ` + artifactColumns + ` FROM artifacts
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2
	`
	rows, err := tx.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Delete reports NotFound both for missing rows and for rows the current
// role may not delete.
func (r *ArtifactRepository) Delete(ctx context.Context, id string) error {
	tx, err := scopedTx(ctx)
	if err != nil {
		return err
	}
	cmd, err := tx.Exec(ctx, `DELETE FROM artifacts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
