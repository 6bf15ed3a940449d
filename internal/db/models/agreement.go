package models

import "time"

// AgreementAcceptance records that a user accepted a specific version of the
// user agreement. A user with no acceptance row for the current version is
// redirected to the agreement page after login.
type AgreementAcceptance struct {
	ID         uint64 `gorm:"primaryKey"`
	UserID     uint64 `gorm:"index:idx_agreement_user_version,unique;not null"`
	Version    int    `gorm:"index:idx_agreement_user_version,unique;not null"`
	AcceptedAt time.Time
	AcceptedIP string `gorm:"size:45"`
}
