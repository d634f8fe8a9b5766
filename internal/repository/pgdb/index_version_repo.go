package pgdb

import (
	"context"

	"github.com/DRSN-tech/vision-service/internal/domain"
	"github.com/DRSN-tech/vision-service/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/vision-service/pkg/e"
	"github.com/DRSN-tech/vision-service/pkg/tr"
	transaction "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jimlawless/whereami"
)

// IndexVersionRepo ведёт номер версии индекса продавца и журнал сборок.
type IndexVersionRepo struct {
	dbPool transaction.Transactional
	conv   converter.IndexVersionConverter
}

func NewIndexVersionRepo(dbPool transaction.Transactional) *IndexVersionRepo {
	return &IndexVersionRepo{
		dbPool: dbPool,
	}
}

// Bump увеличивает версию индекса продавца и пишет строку в журнал сборок в одной транзакции.
func (p *IndexVersionRepo) Bump(ctx context.Context, tenant string, totalEmbeddings, uniqueProducts int) (_ *domain.IndexVersion, err error) {
	ctx, tx, err := transaction.NewTransaction(ctx, pgx.TxOptions{}, p.dbPool)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	// Если произошла ошибка, происходит Rollback транзакции
	defer func() {
		if err != nil && tx.IsActive() {
			_ = tx.Rollback(ctx)
		}
	}()
	pgxTx, ok := tx.Transaction().(pgx.Tx)
	if !ok {
		err = e.ErrTransactionNotFound
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	ctx = tr.WithTx(ctx, pgxTx)

	version, err := p.upsertVersion(ctx, tenant, totalEmbeddings, uniqueProducts)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	if err = p.insertBuild(ctx, version); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return version, nil
}

func (p *IndexVersionRepo) upsertVersion(ctx context.Context, tenant string, totalEmbeddings, uniqueProducts int) (*domain.IndexVersion, error) {
	tx, err := tr.TxFromCtx(ctx)
	if err != nil {
		return nil, err
	}

	var model converter.SellerIndexVersionModel
	query := `
	INSERT INTO seller_index_versions (seller_key, total_embeddings, unique_products)
	VALUES ($1, $2, $3)
	ON CONFLICT (seller_key)
	DO UPDATE SET version          = seller_index_versions.version + 1,
	              total_embeddings = EXCLUDED.total_embeddings,
	              unique_products  = EXCLUDED.unique_products,
	              updated_at       = NOW()
	RETURNING id, seller_key, version, total_embeddings, unique_products, created_at, updated_at;
	`

	err = tx.QueryRow(ctx, query, tenant, totalEmbeddings, uniqueProducts).Scan(
		&model.ID,
		&model.SellerKey,
		&model.Version,
		&model.TotalEmbeddings,
		&model.UniqueProducts,
		&model.CreatedAt,
		&model.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return p.conv.ToEntity(&model), nil
}

func (p *IndexVersionRepo) insertBuild(ctx context.Context, version *domain.IndexVersion) error {
	tx, err := tr.TxFromCtx(ctx)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO seller_index_builds (seller_key, version, total_embeddings, unique_products)
	VALUES ($1, $2, $3, $4);
	`

	_, err = tx.Exec(ctx, query, version.TenantKey, version.Version, version.TotalEmbeddings, version.UniqueProducts)
	return err
}
