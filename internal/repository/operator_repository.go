package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/staylink/verification-service/internal/domain"
)

// OperatorRepository handles persistence for console operators.
type OperatorRepository interface {
	Create(ctx context.Context, operator *domain.Operator) error
	Update(ctx context.Context, operator *domain.Operator) error
	GetByID(ctx context.Context, id string) (*domain.Operator, error)
	GetByEmail(ctx context.Context, email string) (*domain.Operator, error)
	List(ctx context.Context, filter OperatorFilter) ([]domain.Operator, error)
}

// OperatorFilter defines query params for operator listing.
type OperatorFilter struct {
	Role   *domain.OperatorRole
	Active *bool
	Limit  int
	Offset int
}

type operatorRepository struct {
	pool *pgxpool.Pool
}

// NewOperatorRepository instantiates the repository.
func NewOperatorRepository(pool *pgxpool.Pool) OperatorRepository {
	return &operatorRepository{pool: pool}
}

const operatorColumns = `id, name, email, password_hash, role, active_flag, created_at, updated_at`

func (r *operatorRepository) Create(ctx context.Context, operator *domain.Operator) error {
	const query = `
        INSERT INTO operators (name, email, password_hash, role, active_flag)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		operator.Name,
		operator.Email,
		operator.PasswordHash,
		operator.Role,
		operator.Active,
	).Scan(&operator.ID, &operator.CreatedAt, &operator.UpdatedAt)
	return mapAccountErr(err)
}

func (r *operatorRepository) Update(ctx context.Context, operator *domain.Operator) error {
	const query = `
        UPDATE operators
        SET name=$1, email=$2, password_hash=$3, role=$4, active_flag=$5, updated_at=NOW()
        WHERE id=$6`

	cmd, err := r.pool.Exec(ctx, query,
		operator.Name,
		operator.Email,
		operator.PasswordHash,
		operator.Role,
		operator.Active,
		operator.ID,
	)
	if err != nil {
		return mapAccountErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *operatorRepository) GetByID(ctx context.Context, id string) (*domain.Operator, error) {
	query := `SELECT ` + operatorColumns + ` FROM operators WHERE id=$1`
	var operator domain.Operator
	if err := scanOperator(r.pool.QueryRow(ctx, query, id), &operator); err != nil {
		return nil, mapAccountErr(err)
	}
	return &operator, nil
}

func (r *operatorRepository) GetByEmail(ctx context.Context, email string) (*domain.Operator, error) {
	query := `SELECT ` + operatorColumns + ` FROM operators WHERE email=$1`
	var operator domain.Operator
	if err := scanOperator(r.pool.QueryRow(ctx, query, strings.ToLower(email)), &operator); err != nil {
		return nil, mapAccountErr(err)
	}
	return &operator, nil
}

func (r *operatorRepository) List(ctx context.Context, filter OperatorFilter) ([]domain.Operator, error) {
	query := `SELECT ` + operatorColumns + ` FROM operators`
	args := []any{}
	clauses := []string{}

	if filter.Role != nil {
		args = append(args, *filter.Role)
		clauses = append(clauses, fmt.Sprintf("role=$%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("active_flag=$%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset, 50)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Operator
	for rows.Next() {
		var operator domain.Operator
		if err := scanOperator(rows, &operator); err != nil {
			return nil, err
		}
		result = append(result, operator)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperator(row rowScanner, operator *domain.Operator) error {
	return row.Scan(
		&operator.ID,
		&operator.Name,
		&operator.Email,
		&operator.PasswordHash,
		&operator.Role,
		&operator.Active,
		&operator.CreatedAt,
		&operator.UpdatedAt,
	)
}

func normalizePage(limit, offset, fallback int) (int, int) {
	if limit <= 0 {
		limit = fallback
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// InMemoryOperatorRepository keeps operator accounts in process.
type InMemoryOperatorRepository struct {
	mu        sync.RWMutex
	operators map[string]domain.Operator
}

// NewInMemoryOperatorRepository builds an empty store.
func NewInMemoryOperatorRepository() *InMemoryOperatorRepository {
	return &InMemoryOperatorRepository{operators: make(map[string]domain.Operator)}
}

func (r *InMemoryOperatorRepository) Create(_ context.Context, operator *domain.Operator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.operators {
		if strings.EqualFold(existing.Email, operator.Email) {
			return domain.ErrEmailTaken
		}
	}
	now := time.Now()
	operator.ID = uuid.NewString()
	operator.CreatedAt = now
	operator.UpdatedAt = now
	r.operators[operator.ID] = *operator
	return nil
}

func (r *InMemoryOperatorRepository) Update(_ context.Context, operator *domain.Operator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.operators[operator.ID]; !ok {
		return domain.ErrAccountNotFound
	}
	operator.UpdatedAt = time.Now()
	r.operators[operator.ID] = *operator
	return nil
}

func (r *InMemoryOperatorRepository) GetByID(_ context.Context, id string) (*domain.Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	operator, ok := r.operators[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return &operator, nil
}

func (r *InMemoryOperatorRepository) GetByEmail(_ context.Context, email string) (*domain.Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, operator := range r.operators {
		if strings.EqualFold(operator.Email, email) {
			op := operator
			return &op, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (r *InMemoryOperatorRepository) List(_ context.Context, filter OperatorFilter) ([]domain.Operator, error) {
	r.mu.RLock()
	var result []domain.Operator
	for _, operator := range r.operators {
		if filter.Role != nil && operator.Role != *filter.Role {
			continue
		}
		if filter.Active != nil && operator.Active != *filter.Active {
			continue
		}
		result = append(result, operator)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	limit, offset := normalizePage(filter.Limit, filter.Offset, 50)
	if offset >= len(result) {
		return nil, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], nil
}
