package ledger

type Option func(*Ledger)

func WithClock(c Clock) Option {
	return func(l *Ledger) {
		l.clock = c
	}
}

func WithEventSink(s EventSink) Option {
	return func(l *Ledger) {
		l.sink = s
	}
}

func WithLocker(locker Locker) Option {
	return func(l *Ledger) {
		l.locker = locker
	}
}

// WithDuplicateGuard makes RegisterDebt fail with ErrDebtExists instead of
// overwriting an existing record and resetting its payment count.
func WithDuplicateGuard() Option {
	return func(l *Ledger) {
		l.rejectDuplicates = true
	}
}
