package service

import (
	"sync"
	"time"
)

const (
	maxLoginAttempts = 5
	loginWindow      = 10 * time.Minute
	loginLockout     = 15 * time.Minute

	maxEmailAttempts = 5
	emailWindow      = 5 * time.Minute

	sweepInterval = 5 * time.Minute
)

type emailAttemptEntry struct {
	count       int
	lastAttempt time.Time
}

// LoginCheck is the outcome of a login rate-limit check.
type LoginCheck struct {
	Allowed      bool
	BlockedUntil time.Time
}

// EmailCheck is the outcome of an email-resend rate-limit check.
type EmailCheck struct {
	Allowed  bool
	WaitTime time.Duration
}

// AttemptLimiter holds in-memory sliding-window counters for login attempts
// (keyed by ip:identifier) and email-resend attempts (keyed by user id).
// Counters are process-local; a successful auth forgives prior failures.
// A background sweep prunes stale entries every five minutes between
// Start and Stop.
type AttemptLimiter struct {
	mu            sync.Mutex
	loginAttempts map[string][]time.Time
	emailAttempts map[string]emailAttemptEntry

	stop chan struct{}
	done chan struct{}

	now func() time.Time
}

// NewAttemptLimiter creates a stopped limiter; call Start to begin sweeping.
func NewAttemptLimiter() *AttemptLimiter {
	return &AttemptLimiter{
		loginAttempts: make(map[string][]time.Time),
		emailAttempts: make(map[string]emailAttemptEntry),
		now:           time.Now,
	}
}

// Start launches the periodic cleanup sweep.
func (l *AttemptLimiter) Start() {
	l.stop = make(chan struct{})
	l.done = make(chan struct{})

	go func() {
		defer close(l.done)
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.sweep()
			case <-l.stop:
				return
			}
		}
	}()
}

// Stop cancels the cleanup sweep and waits for it to exit.
func (l *AttemptLimiter) Stop() {
	if l.stop == nil {
		return
	}
	close(l.stop)
	<-l.done
	l.stop = nil
}

func loginKey(ip, identifier string) string {
	return ip + ":" + identifier
}

// CheckLogin reports whether a login attempt for the identifier+ip pair is
// allowed. Once five attempts accumulate inside the counting window, the
// pair is denied until the lockout measured from the most recent attempt
// elapses, after which the whole bucket is cleared.
func (l *AttemptLimiter) CheckLogin(identifier, ip string) LoginCheck {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := loginKey(ip, identifier)
	now := l.now()

	recent := pruneBefore(l.loginAttempts[key], now.Add(-maxWindow()))

	if len(recent) >= maxLoginAttempts {
		last := recent[len(recent)-1]
		if now.Sub(last) < loginLockout {
			return LoginCheck{Allowed: false, BlockedUntil: last.Add(loginLockout)}
		}
		// Lockout served; forget the history entirely.
		delete(l.loginAttempts, key)
		return LoginCheck{Allowed: true}
	}

	if len(recent) == 0 {
		delete(l.loginAttempts, key)
	} else {
		l.loginAttempts[key] = recent
	}
	return LoginCheck{Allowed: true}
}

// RecordFailedLogin appends a failed attempt for the identifier+ip pair.
func (l *AttemptLimiter) RecordFailedLogin(identifier, ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := loginKey(ip, identifier)
	l.loginAttempts[key] = append(l.loginAttempts[key], l.now())
}

// ClearLoginAttempts forgives all recorded failures for the pair.
func (l *AttemptLimiter) ClearLoginAttempts(identifier, ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.loginAttempts, loginKey(ip, identifier))
}

// CheckEmailAttempts reports whether another confirmation email may be sent
// to the user. When denied, WaitTime carries the remaining window.
func (l *AttemptLimiter) CheckEmailAttempts(userID string) EmailCheck {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.emailAttempts[userID]
	if !ok {
		return EmailCheck{Allowed: true}
	}

	now := l.now()
	sinceLast := now.Sub(entry.lastAttempt)

	if entry.count >= maxEmailAttempts && sinceLast < emailWindow {
		return EmailCheck{Allowed: false, WaitTime: emailWindow - sinceLast}
	}

	if sinceLast >= emailWindow {
		delete(l.emailAttempts, userID)
	}
	return EmailCheck{Allowed: true}
}

// RecordEmailAttempt counts one sent email for the user.
func (l *AttemptLimiter) RecordEmailAttempt(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.emailAttempts[userID]
	entry.count++
	entry.lastAttempt = l.now()
	l.emailAttempts[userID] = entry
}

func maxWindow() time.Duration {
	if loginWindow > loginLockout {
		return loginWindow
	}
	return loginLockout
}

func pruneBefore(attempts []time.Time, cutoff time.Time) []time.Time {
	var recent []time.Time
	for _, t := range attempts {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	return recent
}

// sweep drops aged-out entries so the maps stay bounded. Keys whose attempts
// all aged out are deleted entirely, never left as empty placeholders.
func (l *AttemptLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-maxWindow())

	for key, attempts := range l.loginAttempts {
		recent := pruneBefore(attempts, cutoff)
		if len(recent) == 0 {
			delete(l.loginAttempts, key)
		} else {
			l.loginAttempts[key] = recent
		}
	}

	for userID, entry := range l.emailAttempts {
		if now.Sub(entry.lastAttempt) > emailWindow {
			delete(l.emailAttempts, userID)
		}
	}
}
