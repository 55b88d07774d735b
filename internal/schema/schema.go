// Package schema lists every persisted model so the store can be migrated in one place.
package schema

import (
	"betting_ledger/internal/database"
	"betting_ledger/internal/game"
	"betting_ledger/internal/ledger"
	"betting_ledger/internal/payment"
	"betting_ledger/internal/tournament"
	"betting_ledger/internal/users"

	"gorm.io/gorm"
)

// Models is in dependency order: referenced tables come first
func Models() []interface{} {
	return []interface{}{
		&users.User{},
		&ledger.WalletTransaction{},
		&game.Game{},
		&game.GameEntry{},
		&tournament.Tournament{},
		&tournament.TournamentEntry{},
		&payment.Payment{},
	}
}

func Migrate(db *gorm.DB) error {
	return database.Migrate(db, Models()...)
}
