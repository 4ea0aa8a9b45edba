package models

import "time"

// Wire types shared by the API client and the reference server.

type SignInRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type SignUpRequest struct {
	FirstName    string    `json:"firstName" validate:"required,min=2"`
	LastName     string    `json:"lastName" validate:"required,min=2"`
	DateOfBirth  time.Time `json:"dateOfBirth" validate:"required"`
	Gender       string    `json:"gender" validate:"required,oneof=MALE FEMALE OTHER"`
	Username     string    `json:"username" validate:"required,min=3,max=16"`
	EmailAddress string    `json:"emailAddress" validate:"required,email"`
	Password     string    `json:"password" validate:"required,min=8"`
}

type CheckUsernameRequest struct {
	Username string `json:"username" validate:"required"`
}

type CheckEmailRequest struct {
	EmailAddress string `json:"emailAddress" validate:"required"`
}

// Envelope wraps every successful auth response.
type Envelope[T any] struct {
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type AuthData struct {
	AccessToken string       `json:"accessToken"`
	TokenType   string       `json:"tokenType,omitempty"`
	ExpiresIn   int64        `json:"expiresIn,omitempty"`
	User        *UserProfile `json:"user,omitempty"`
}

type AuthResponse = Envelope[AuthData]

type UserProfile struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"emailAddress"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Gender       string    `json:"gender"`
	DateOfBirth  time.Time `json:"dateOfBirth"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Fields  map[string]string `json:"fields,omitempty"`
}
