package repository

// Entities lists every table model, in dependency order. Tests migrate an
// in-memory database from it; production schemas come from migrations/.
func Entities() []any {
	return []any{
		&ServiceEntity{},
		&ProfileEntity{},
		&UserRoleEntity{},
		&OrderEntity{},
		&TransactionEntity{},
		&ReferralEntity{},
		&APICredentialEntity{},
	}
}
