// Package lockout throttles password brute force: too many failed logins
// for one account inside the window lock it for the cooldown.
package lockout

import (
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type Policy struct {
	MaxFailures int           `yaml:"max_failures"`
	Window      time.Duration `yaml:"window"`
	Cooldown    time.Duration `yaml:"cooldown"`
}

// DefaultPolicy applies when no policy file is configured.
var DefaultPolicy = Policy{
	MaxFailures: 5,
	Window:      5 * time.Minute,
	Cooldown:    15 * time.Minute,
}

type policyFile struct {
	Lockout Policy `yaml:"lockout"`
}

func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, err
	}
	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return Policy{}, err
	}
	p := pf.Lockout
	if p.MaxFailures <= 0 {
		p.MaxFailures = DefaultPolicy.MaxFailures
	}
	if p.Window <= 0 {
		p.Window = DefaultPolicy.Window
	}
	if p.Cooldown <= 0 {
		p.Cooldown = DefaultPolicy.Cooldown
	}
	return p, nil
}

type account struct {
	failures    []time.Time
	lockedUntil time.Time
}

// Tracker counts failures per username in memory. State is best-effort;
// a restart forgets outstanding locks, which matches the session store's
// durability stance.
type Tracker struct {
	mu       sync.Mutex
	policy   Policy
	accounts map[string]*account
}

func NewTracker(policy Policy) *Tracker {
	return &Tracker{policy: policy, accounts: make(map[string]*account)}
}

// Locked reports whether username is refusing logins at now.
func (t *Tracker) Locked(username string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	acc, ok := t.accounts[username]
	return ok && now.Before(acc.lockedUntil)
}

// RecordFailure notes a failed login and reports whether it tripped the
// lock.
func (t *Tracker) RecordFailure(username string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	acc, ok := t.accounts[username]
	if !ok {
		acc = &account{}
		t.accounts[username] = acc
	}
	cutoff := now.Add(-t.policy.Window)
	kept := acc.failures[:0]
	for _, f := range acc.failures {
		if f.After(cutoff) {
			kept = append(kept, f)
		}
	}
	acc.failures = append(kept, now)
	if len(acc.failures) >= t.policy.MaxFailures {
		acc.lockedUntil = now.Add(t.policy.Cooldown)
		acc.failures = acc.failures[:0]
		return true
	}
	return false
}

// Clear forgets an account's failures after a successful login.
func (t *Tracker) Clear(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.accounts, username)
}
