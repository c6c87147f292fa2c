package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User is a teacher (or admin) account.
type User struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	FullName     string    `db:"full_name" json:"full_name"`
	Department   *string   `db:"department" json:"department,omitempty"`
	PasswordHash string    `db:"password_hash" json:"-"`
	IsAdmin      bool      `db:"is_admin" json:"is_admin"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// JWTClaims carries the authenticated identity through requests.
type JWTClaims struct {
	UserID   string `json:"uid"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// LoginRequest is the credentials payload.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// SignupRequest registers a new teacher account.
type SignupRequest struct {
	Username   string `json:"username" validate:"required,min=3"`
	Email      string `json:"email" validate:"required,email"`
	FullName   string `json:"full_name" validate:"required"`
	Department string `json:"department"`
	Password   string `json:"password" validate:"required,min=8"`
}

// LoginResponse returns the issued token and user info.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	IssuedAt    time.Time `json:"issued_at"`
	User        UserInfo  `json:"user"`
}

// UserInfo is the public view of an account.
type UserInfo struct {
	ID         string  `json:"id"`
	Username   string  `json:"username"`
	Email      string  `json:"email"`
	FullName   string  `json:"full_name"`
	Department *string `json:"department,omitempty"`
	IsAdmin    bool    `json:"is_admin"`
}
