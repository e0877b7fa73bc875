package auth

import (
	"strings"
	"time"
)

type User struct {
	ID           uint64    `gorm:"primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;default:now()"`
}

// Admins is the set of e-mail addresses granted the admin claim.
type Admins map[string]bool

func NewAdmins(emails []string) Admins {
	a := make(Admins, len(emails))
	for _, e := range emails {
		if e = NormalizeEmail(e); e != "" {
			a[e] = true
		}
	}
	return a
}

func (a Admins) Has(email string) bool { return a[NormalizeEmail(email)] }

func NormalizeEmail(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}
