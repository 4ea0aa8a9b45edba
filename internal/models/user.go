package models

import (
	"strings"
	"time"
)

const (
	GenderMale   = "MALE"
	GenderFemale = "FEMALE"
	GenderOther  = "OTHER"
)

type User struct {
	ID           string    `json:"id" dynamodbav:"id"`
	Username     string    `json:"username" dynamodbav:"username"`
	EmailAddress string    `json:"email_address" dynamodbav:"email_address"`
	PasswordHash string    `json:"-" dynamodbav:"password_hash"`
	FirstName    string    `json:"first_name" dynamodbav:"first_name"`
	LastName     string    `json:"last_name" dynamodbav:"last_name"`
	Gender       string    `json:"gender" dynamodbav:"gender"`
	DateOfBirth  time.Time `json:"date_of_birth" dynamodbav:"date_of_birth"`
	CreatedAt    time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

func (u *User) GetPK() string {
	return "USER#" + u.ID
}

func (u *User) GetSK() string {
	return "METADATA"
}

// UsernameKey is the partition key of the item that reserves the username.
func UsernameKey(username string) string {
	return "USERNAME#" + NormalizeIdentifier(username)
}

// EmailKey is the partition key of the item that reserves the email address.
func EmailKey(email string) string {
	return "EMAIL#" + NormalizeIdentifier(email)
}

// NormalizeIdentifier folds usernames and emails for uniqueness comparisons.
func NormalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (u *User) Profile() UserProfile {
	return UserProfile{
		ID:           u.ID,
		Username:     u.Username,
		EmailAddress: u.EmailAddress,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Gender:       u.Gender,
		DateOfBirth:  u.DateOfBirth,
	}
}
