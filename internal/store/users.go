package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Users holds buyer records referenced by purchases.
type Users struct{ DB DB }

type UserInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Age       int    `json:"age"`
}

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func (u *Users) List(ctx context.Context) ([]User, error) {
	rows, err := u.DB.Query(ctx, `
		SELECT id, first_name, last_name, email, phone, age, created_at
		FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := []User{}
	for rows.Next() {
		var usr User
		if err := rows.Scan(&usr.ID, &usr.FirstName, &usr.LastName, &usr.Email, &usr.Phone, &usr.Age, &usr.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, usr)
	}
	return out, rows.Err()
}

func (u *Users) Create(ctx context.Context, in UserInput) (*User, error) {
	if in.FirstName == "" || in.Email == "" {
		return nil, &ValidationError{Code: CodeMissingFields, Message: "first_name and email are required"}
	}
	if !emailRe.MatchString(in.Email) {
		return nil, &ValidationError{Code: CodeInvalidEmail, Message: "invalid email format"}
	}
	usr := &User{
		ID:        uuid.NewString(),
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Phone:     in.Phone,
		Age:       in.Age,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := u.DB.Exec(ctx, `
		INSERT INTO users(id, first_name, last_name, email, phone, age, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		usr.ID, usr.FirstName, usr.LastName, usr.Email, usr.Phone, usr.Age, usr.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, &ConflictError{Code: ConflictDuplicateEmail, Message: "email is already registered"}
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return usr, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
