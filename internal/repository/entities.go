package repository

// Entities lists every table managed by this package, for AutoMigrate in
// tests and the sqlite store mode.
func Entities() []any {
	return []any{
		&LedgerStateEntity{},
		&PendingPaymentEntity{},
		&AuditEventEntity{},
	}
}
