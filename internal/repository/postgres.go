package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/sodatrack/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const siphonColumns = `id, owner_id, alias, capacity, remaining, estimated_servings, status, active, connected_at, alerts_sent, created_at`

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	delays []time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{
		pool:   pool,
		delays: []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
	}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет идемпотентное чтение при временных ошибках. Записи не повторяются.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(r.delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isTransient(err) || i == len(r.delays) {
			break
		}

		timer := time.NewTimer(r.delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSiphon(row scanner) (*model.Siphon, error) {
	var (
		s      model.Siphon
		status string
		alerts []int32
	)
	err := row.Scan(&s.ID, &s.OwnerID, &s.Alias, &s.Capacity, &s.Remaining, &s.EstimatedServings,
		&status, &s.Active, &s.ConnectedAt, &alerts, &s.CreatedAt)
	if err != nil {
		return nil, err
	}

	s.Status = model.SiphonStatus(status)
	s.AlertsSent = model.NewAlertSet()
	for _, l := range alerts {
		s.AlertsSent.Add(model.AlertLevel(l))
	}
	return &s, nil
}

func scanAccount(row scanner) (*model.Account, error) {
	var (
		a    model.Account
		kind string
	)
	if err := row.Scan(&a.ID, &kind, &a.LastActivityAt, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.DispenserKind = model.DispenserKind(kind)
	return &a, nil
}

// EnsureAccount создаёт аккаунт при первом обращении и возвращает его.
func (r *PostgresRepository) EnsureAccount(ctx context.Context, id string, now time.Time) (*model.Account, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO accounts (id, created_at) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		id, now,
	)
	if err != nil {
		return nil, storageError("ensure account", err)
	}
	return r.GetAccount(ctx, id)
}

// GetAccount возвращает аккаунт по идентификатору.
func (r *PostgresRepository) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	var acc *model.Account
	err := r.withRetry(ctx, func() error {
		var err error
		acc, err = scanAccount(r.pool.QueryRow(ctx,
			`SELECT id, dispenser_kind, last_activity_at, created_at FROM accounts WHERE id = $1`, id))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, storageError("get account", err)
	}
	return acc, nil
}

// ListAccounts возвращает все аккаунты.
func (r *PostgresRepository) ListAccounts(ctx context.Context) ([]model.Account, error) {
	var res []model.Account
	err := r.withRetry(ctx, func() error {
		res = res[:0]
		rows, err := r.pool.Query(ctx,
			`SELECT id, dispenser_kind, last_activity_at, created_at FROM accounts ORDER BY id`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			acc, err := scanAccount(rows)
			if err != nil {
				return err
			}
			res = append(res, *acc)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, storageError("list accounts", err)
	}
	return res, nil
}

// SetDispenserKind сохраняет тип сифона, создавая аккаунт при необходимости.
func (r *PostgresRepository) SetDispenserKind(ctx context.Context, id string, kind model.DispenserKind, now time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO accounts (id, dispenser_kind, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET dispenser_kind = EXCLUDED.dispenser_kind`,
		id, string(kind), now,
	)
	if err != nil {
		return storageError("set dispenser kind", err)
	}
	return nil
}

// CreateSiphon сохраняет новый баллон.
func (r *PostgresRepository) CreateSiphon(ctx context.Context, s model.Siphon) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO siphons (id, owner_id, alias, capacity, remaining, estimated_servings, status, active, connected_at, alerts_sent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		s.ID, s.OwnerID, s.Alias, s.Capacity, s.Remaining, s.EstimatedServings,
		string(s.Status), s.Active, s.ConnectedAt, alertLevels(s.AlertsSent), s.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return fmt.Errorf("%w: %s", ErrAccountNotFound, s.OwnerID)
		}
		return storageError("create siphon", err)
	}
	return nil
}

func alertLevels(set model.AlertSet) []int32 {
	out := make([]int32, 0, len(set))
	for _, l := range set.Levels() {
		out = append(out, int32(l))
	}
	return out
}

// GetSiphon возвращает баллон по идентификатору.
func (r *PostgresRepository) GetSiphon(ctx context.Context, id string) (*model.Siphon, error) {
	var s *model.Siphon
	err := r.withRetry(ctx, func() error {
		var err error
		s, err = scanSiphon(r.pool.QueryRow(ctx,
			`SELECT `+siphonColumns+` FROM siphons WHERE id = $1`, id))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSiphonNotFound
		}
		return nil, storageError("get siphon", err)
	}
	return s, nil
}

// ListSiphons возвращает баллоны владельца в порядке создания.
func (r *PostgresRepository) ListSiphons(ctx context.Context, ownerID string) ([]model.Siphon, error) {
	var res []model.Siphon
	err := r.withRetry(ctx, func() error {
		res = res[:0]
		rows, err := r.pool.Query(ctx,
			`SELECT `+siphonColumns+` FROM siphons WHERE owner_id = $1 ORDER BY created_at, id`, ownerID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			s, err := scanSiphon(rows)
			if err != nil {
				return err
			}
			res = append(res, *s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, storageError("list siphons", err)
	}
	return res, nil
}

// GetActiveSiphon возвращает активный баллон владельца.
// Если активных несколько, выбирается подключённый последним.
func (r *PostgresRepository) GetActiveSiphon(ctx context.Context, ownerID string) (*model.Siphon, error) {
	var s *model.Siphon
	err := r.withRetry(ctx, func() error {
		var err error
		s, err = scanSiphon(r.pool.QueryRow(ctx,
			`SELECT `+siphonColumns+` FROM siphons
			 WHERE owner_id = $1 AND active
			 ORDER BY connected_at DESC NULLS LAST, created_at DESC
			 LIMIT 1`, ownerID))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveSiphon
		}
		return nil, storageError("get active siphon", err)
	}
	return s, nil
}

// lockAccount блокирует строку аккаунта до конца транзакции. Возвращает nil, если аккаунта нет.
func lockAccount(ctx context.Context, tx pgx.Tx, ownerID string) (*model.Account, error) {
	acc, err := scanAccount(tx.QueryRow(ctx,
		`SELECT id, dispenser_kind, last_activity_at, created_at FROM accounts WHERE id = $1 FOR UPDATE`,
		ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storageError("lock account", err)
	}
	return acc, nil
}

// ActivateSiphon делает баллон единственным активным у владельца.
// Блокировка строки аккаунта сериализует параллельные активации одного владельца.
func (r *PostgresRepository) ActivateSiphon(ctx context.Context, ownerID, siphonID string, now time.Time) (*model.Siphon, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, storageError("begin tx", err)
	}
	defer tx.Rollback(ctx)

	if _, err := lockAccount(ctx, tx, ownerID); err != nil {
		return nil, err
	}

	var owner string
	err = tx.QueryRow(ctx, `SELECT owner_id FROM siphons WHERE id = $1 FOR UPDATE`, siphonID).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSiphonNotFound, siphonID)
		}
		return nil, storageError("select siphon", err)
	}
	if owner != ownerID {
		return nil, ErrSiphonOwnedByAnother
	}

	_, err = tx.Exec(ctx,
		`UPDATE siphons SET active = FALSE WHERE owner_id = $1 AND active AND id <> $2`,
		ownerID, siphonID,
	)
	if err != nil {
		return nil, storageError("deactivate siblings", err)
	}

	s, err := scanSiphon(tx.QueryRow(ctx,
		`UPDATE siphons SET active = TRUE, connected_at = $2 WHERE id = $1 RETURNING `+siphonColumns,
		siphonID, now))
	if err != nil {
		return nil, storageError("activate siphon", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storageError("commit tx", err)
	}
	return s, nil
}

// ToggleSiphon переключает признак активности баллона, не трогая остальные баллоны владельца.
func (r *PostgresRepository) ToggleSiphon(ctx context.Context, siphonID string, now time.Time) (*model.Siphon, error) {
	s, err := scanSiphon(r.pool.QueryRow(ctx,
		`UPDATE siphons
		 SET active = NOT active,
		     connected_at = CASE WHEN active THEN connected_at ELSE $2 END
		 WHERE id = $1
		 RETURNING `+siphonColumns,
		siphonID, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSiphonNotFound, siphonID)
		}
		return nil, storageError("toggle siphon", err)
	}
	return s, nil
}

// ConsumeActive списывает газ с активного баллона владельца. Обновление баллона,
// запись в журнал и отметка активности аккаунта выполняются в одной транзакции.
func (r *PostgresRepository) ConsumeActive(ctx context.Context, ownerID string, now time.Time, fn ConsumeFunc) (*model.Siphon, *model.UsageEvent, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, storageError("begin tx", err)
	}
	defer tx.Rollback(ctx)

	acc, err := lockAccount(ctx, tx, ownerID)
	if err != nil {
		return nil, nil, err
	}
	if acc == nil {
		return nil, nil, ErrNoActiveSiphon
	}

	current, err := scanSiphon(tx.QueryRow(ctx,
		`SELECT `+siphonColumns+` FROM siphons
		 WHERE owner_id = $1 AND active
		 ORDER BY connected_at DESC NULLS LAST, created_at DESC
		 LIMIT 1
		 FOR UPDATE`, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNoActiveSiphon
		}
		return nil, nil, storageError("select active siphon", err)
	}

	next, event, err := fn(*acc, *current)
	if err != nil {
		return nil, nil, err
	}

	updated, err := scanSiphon(tx.QueryRow(ctx,
		`UPDATE siphons SET remaining = $2, estimated_servings = $3, status = $4
		 WHERE id = $1
		 RETURNING `+siphonColumns,
		current.ID, next.Remaining, next.EstimatedServings, string(next.Status)))
	if err != nil {
		return nil, nil, storageError("update siphon", err)
	}

	if err := insertUsage(ctx, tx, &event); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, storageError("commit tx", err)
	}
	return updated, &event, nil
}

func insertUsage(ctx context.Context, tx pgx.Tx, e *model.UsageEvent) error {
	err := tx.QueryRow(ctx,
		`INSERT INTO usage_events (siphon_id, owner_id, shots, gas_used, remaining_after, percentage_after, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		e.SiphonID, e.OwnerID, e.Shots, e.GasUsed, e.RemainingAfter, e.PercentageAfter, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return storageError("insert usage event", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE accounts SET last_activity_at = $2 WHERE id = $1`,
		e.OwnerID, e.CreatedAt,
	)
	if err != nil {
		return storageError("update last activity", err)
	}
	return nil
}

// AppendUsage добавляет запись в журнал расхода и обновляет время последней активности владельца.
func (r *PostgresRepository) AppendUsage(ctx context.Context, e model.UsageEvent) (*model.UsageEvent, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, storageError("begin tx", err)
	}
	defer tx.Rollback(ctx)

	if err := insertUsage(ctx, tx, &e); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return nil, fmt.Errorf("%w: %s", ErrSiphonNotFound, e.SiphonID)
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storageError("commit tx", err)
	}
	return &e, nil
}

// RechargeSiphon восстанавливает полный объём баллона и сбрасывает отправленные уведомления.
func (r *PostgresRepository) RechargeSiphon(ctx context.Context, siphonID string, servings int) (*model.Siphon, error) {
	s, err := scanSiphon(r.pool.QueryRow(ctx,
		`UPDATE siphons
		 SET remaining = capacity, status = $2, alerts_sent = '{}', estimated_servings = $3
		 WHERE id = $1
		 RETURNING `+siphonColumns,
		siphonID, string(model.SiphonStatusFull), servings))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSiphonNotFound, siphonID)
		}
		return nil, storageError("recharge siphon", err)
	}
	return s, nil
}

// MarkAlertSent атомарно добавляет уровень во множество отправленных уведомлений.
// Возвращает false, если уровень уже был отмечен или текущий остаток баллона
// (например, после заправки) больше не ниже порога.
func (r *PostgresRepository) MarkAlertSent(ctx context.Context, siphonID string, level model.AlertLevel) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE siphons SET alerts_sent = array_append(alerts_sent, $2::integer)
		 WHERE id = $1 AND NOT ($2::integer = ANY (alerts_sent))
		   AND status <> $3 AND remaining / capacity * 100 <= $2::integer`,
		siphonID, int32(level), string(model.SiphonStatusFull),
	)
	if err != nil {
		return false, storageError("mark alert sent", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListUsage возвращает временной ряд остатка газа по баллону в порядке возрастания времени.
func (r *PostgresRepository) ListUsage(ctx context.Context, ownerID, siphonID string) ([]model.Sample, error) {
	var res []model.Sample
	err := r.withRetry(ctx, func() error {
		res = res[:0]
		rows, err := r.pool.Query(ctx,
			`SELECT created_at, remaining_after
			 FROM usage_events
			 WHERE owner_id = $1 AND siphon_id = $2
			 ORDER BY created_at, id`,
			ownerID, siphonID,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var s model.Sample
			if err := rows.Scan(&s.At, &s.Remaining); err != nil {
				return err
			}
			res = append(res, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, storageError("list usage", err)
	}
	return res, nil
}
