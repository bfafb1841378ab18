package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"identity-service/internal/model"
)

// pgxQuerier is satisfied by *pgxpool.Pool and by pgxmock pools.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

const accountColumns = `id, email, COALESCE(password_hash, ''), role, COALESCE(google_id, ''),
		        COALESCE(name, ''), COALESCE(phone, ''), COALESCE(location, ''), COALESCE(bio, ''),
		        COALESCE(picture, ''), email_verified, created_at, updated_at`

type PostgresAccountRepository struct {
	pool pgxQuerier
	now  func() time.Time
}

func NewPostgresAccountRepository(pool pgxQuerier) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: pool, now: time.Now}
}

func (r *PostgresAccountRepository) FindByEmail(ctx context.Context, email string) (model.Account, error) {
	return r.findOne(ctx, "find account by email",
		`SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`, model.NormalizeEmail(email))
}

func (r *PostgresAccountRepository) FindByFederatedID(ctx context.Context, federatedID string) (model.Account, error) {
	return r.findOne(ctx, "find account by google id",
		`SELECT `+accountColumns+` FROM accounts WHERE google_id = $1`, federatedID)
}

func (r *PostgresAccountRepository) findOne(ctx context.Context, op string, query string, arg string) (model.Account, error) {
	var a model.Account
	err := r.pool.QueryRow(ctx, query, arg).
		Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Role, &a.FederatedID,
			&a.Name, &a.Phone, &a.Location, &a.Bio, &a.Picture,
			&a.EmailVerified, &a.CreatedAt, &a.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.Account{}, model.ErrAccountNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("%w: %s: %v", model.ErrStoreUnavailable, op, err)
	}
	return a, nil
}

func (r *PostgresAccountRepository) Create(ctx context.Context, a *model.Account) error {
	if !a.HasAuthPath() {
		return ErrNoAuthPath
	}

	now := r.now().UTC()
	a.ID = uuid.NewString()
	a.Email = model.NormalizeEmail(a.Email)
	if a.Role == "" {
		a.Role = model.RoleUser
	}
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := r.pool.Exec(ctx,
		`INSERT INTO accounts (id, email, password_hash, role, google_id, name, phone, location, bio, picture,
		                       email_verified, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.Email, nullable(a.PasswordHash), a.Role, nullable(a.FederatedID),
		nullable(a.Name), nullable(a.Phone), nullable(a.Location), nullable(a.Bio), nullable(a.Picture),
		a.EmailVerified, a.CreatedAt, a.UpdatedAt)
	if isUniqueViolation(err) {
		return model.ErrDuplicateIdentity
	}
	if err != nil {
		return fmt.Errorf("%w: create account: %v", model.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *PostgresAccountRepository) Update(ctx context.Context, id string, patch model.AccountPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	sets, args := patchColumns(patch)
	args = append([]any{id}, args...)
	args = append(args, r.now().UTC())
	sets = append(sets, "updated_at")

	assignments := make([]string, len(sets))
	for i, column := range sets {
		assignments[i] = column + " = $" + strconv.Itoa(i+2)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET `+strings.Join(assignments, ", ")+` WHERE id = $1`, args...)
	if isUniqueViolation(err) {
		return model.ErrDuplicateIdentity
	}
	if err != nil {
		return fmt.Errorf("%w: update account: %v", model.ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAccountNotFound
	}
	return nil
}

func (r *PostgresAccountRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping postgres: %v", model.ErrStoreUnavailable, err)
	}
	return nil
}

// patchColumns lists the columns touched by a patch in a fixed order.
func patchColumns(p model.AccountPatch) ([]string, []any) {
	var columns []string
	var args []any

	add := func(column string, value any) {
		columns = append(columns, column)
		args = append(args, value)
	}

	if p.Email != nil {
		add("email", model.NormalizeEmail(*p.Email))
	}
	if p.PasswordHash != nil {
		add("password_hash", nullable(*p.PasswordHash))
	}
	if p.Role != nil {
		add("role", *p.Role)
	}
	if p.FederatedID != nil {
		add("google_id", nullable(*p.FederatedID))
	}
	if p.Name != nil {
		add("name", *p.Name)
	}
	if p.Phone != nil {
		add("phone", *p.Phone)
	}
	if p.Location != nil {
		add("location", *p.Location)
	}
	if p.Bio != nil {
		add("bio", *p.Bio)
	}
	if p.Picture != nil {
		add("picture", *p.Picture)
	}
	if p.EmailVerified != nil {
		add("email_verified", *p.EmailVerified)
	}

	return columns, args
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
