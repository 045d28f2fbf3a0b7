package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
)

// DBTX is the subset of pgxpool.Pool the repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type AccountRepository struct {
	DB DBTX
}

func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{DB: db}
}

const accountColumns = `"id","email","password_hash","name","phone","age","role","is_verified","verify_otp","verify_otp_expires_at","reset_otp","reset_otp_expires_at","created_at","updated_at"`

func (r *AccountRepository) Insert(ctx context.Context, account *Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.Role == "" {
		account.Role = RoleUser
	}
	account.Email = NormalizeEmail(account.Email)

	row := r.DB.QueryRow(ctx, `
		INSERT INTO accounts
		("id","email","password_hash","name","phone","age","role","is_verified")
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING "created_at","updated_at"
	`, account.ID, account.Email, account.PasswordHash, account.Name, account.Phone, account.Age, string(account.Role), account.IsVerified)

	if err := row.Scan(&account.CreatedAt, &account.UpdatedAt); err != nil {
		if isPgCode(err, pgerrcode.UniqueViolation) {
			return ErrConflict
		}
		return storeError("insert account", err)
	}
	return nil
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE "email"=$1`, NormalizeEmail(email))
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("find account by email", err)
	}
	return account, nil
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	row := r.DB.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE "id"=$1`, id)
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("find account by id", err)
	}
	return account, nil
}

// UpdateFields applies update in a single statement. With a guard the row only
// changes if the guarded slot still holds the expected code hash, which is what
// keeps a one-time code from being spent twice.
func (r *AccountRepository) UpdateFields(ctx context.Context, id string, update AccountUpdate, guard *OTPGuard) error {
	sets := []string{}
	args := []interface{}{}
	idx := 1

	add := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf(`"%s"=$%d`, column, idx))
		args = append(args, value)
		idx++
	}

	if update.PasswordHash != nil {
		add("password_hash", *update.PasswordHash)
	}
	if update.IsVerified != nil {
		add("is_verified", *update.IsVerified)
	}
	if update.Name != nil {
		add("name", *update.Name)
	}
	if update.Phone != nil {
		add("phone", *update.Phone)
	}
	if update.Age != nil {
		add("age", *update.Age)
	}
	if update.VerifyOTP != nil {
		code, expires := slotValues(*update.VerifyOTP)
		add("verify_otp", code)
		add("verify_otp_expires_at", expires)
	}
	if update.ResetOTP != nil {
		code, expires := slotValues(*update.ResetOTP)
		add("reset_otp", code)
		add("reset_otp_expires_at", expires)
	}
	sets = append(sets, `"updated_at"=NOW()`)

	args = append(args, id)
	where := fmt.Sprintf(`"id"=$%d`, idx)
	idx++
	if guard != nil {
		column, _ := slotColumns(guard.Purpose)
		var expected interface{}
		if guard.CodeHash != "" {
			expected = guard.CodeHash
		}
		where += fmt.Sprintf(` AND "%s" IS NOT DISTINCT FROM $%d`, column, idx)
		args = append(args, expected)
	}

	query := fmt.Sprintf(`UPDATE accounts SET %s WHERE %s RETURNING "id"`, strings.Join(sets, ","), where)

	var updated string
	err := r.DB.QueryRow(ctx, query, args...).Scan(&updated)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return storeError("update account", err)
	}

	exists, err := r.exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConcurrentModification
}

func (r *AccountRepository) exists(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	var one int
	if err := r.DB.QueryRow(ctx, `SELECT 1 FROM accounts WHERE "id"=$1`, id).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, storeError("check account", err)
	}
	return true, nil
}

func slotColumns(purpose OTPPurpose) (code, expires string) {
	if purpose == PurposeReset {
		return "reset_otp", "reset_otp_expires_at"
	}
	return "verify_otp", "verify_otp_expires_at"
}

func slotValues(slot OTPSlot) (interface{}, interface{}) {
	if !slot.Pending() {
		return nil, nil
	}
	return slot.CodeHash, slot.ExpiresAt
}

func scanAccount(row pgx.Row) (*Account, error) {
	var (
		id              string
		email           string
		passwordHash    string
		name            sql.NullString
		phone           string
		age             int
		role            string
		isVerified      bool
		verifyOTP       sql.NullString
		verifyOTPExpiry sql.NullTime
		resetOTP        sql.NullString
		resetOTPExpiry  sql.NullTime
		createdAt       time.Time
		updatedAt       time.Time
	)

	if err := row.Scan(
		&id,
		&email,
		&passwordHash,
		&name,
		&phone,
		&age,
		&role,
		&isVerified,
		&verifyOTP,
		&verifyOTPExpiry,
		&resetOTP,
		&resetOTPExpiry,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	return &Account{
		ID:           id,
		Email:        email,
		PasswordHash: passwordHash,
		Name:         nullStringPtr(name),
		Phone:        phone,
		Age:          age,
		Role:         Role(role),
		IsVerified:   isVerified,
		VerifyOTP:    nullSlot(verifyOTP, verifyOTPExpiry),
		ResetOTP:     nullSlot(resetOTP, resetOTPExpiry),
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

func nullStringPtr(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

func nullSlot(code sql.NullString, expires sql.NullTime) OTPSlot {
	if !code.Valid || !expires.Valid {
		return OTPSlot{}
	}
	return OTPSlot{CodeHash: code.String, ExpiresAt: expires.Time}
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func storeError(operation string, err error) error {
	return oops.Code("ACCOUNT_STORE_FAILED").
		With("operation", operation).
		Wrap(fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
}
