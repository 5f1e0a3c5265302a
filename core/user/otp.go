package user

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// OTP purposes
const (
	PurposeEmailVerification = "email_verification"
	PurposePasswordReset     = "password_reset"
)

var (
	NowFunc         = time.Now    // mockable
	GenerateOTPFunc = generateOTP // mockable
)

// OTP is a one-time code mailed to a user. Only its bcrypt hash is stored.
// A user holds at most one code per purpose; issuing a new one replaces the previous.
type OTP struct {
	UserID    string
	Purpose   string
	CodeHash  []byte
	ExpiresAt time.Time
	CreatedAt time.Time
}

// OTPMailData is the template data of the OTP emails.
type OTPMailData struct {
	Name      string
	Code      string
	ExpiresIn string
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func newOTP(userID, purpose string, ttl time.Duration) (OTP, string, error) {
	code, err := GenerateOTPFunc()
	if err != nil {
		return OTP{}, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return OTP{}, "", err
	}
	now := NowFunc().UTC()
	return OTP{
		UserID:    userID,
		Purpose:   purpose,
		CodeHash:  hash,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}, code, nil
}

func (o OTP) verify(code string) error {
	if NowFunc().After(o.ExpiresAt) {
		return ErrInvalidOTP
	}
	if err := bcrypt.CompareHashAndPassword(o.CodeHash, []byte(code)); err != nil {
		return ErrInvalidOTP
	}
	return nil
}
