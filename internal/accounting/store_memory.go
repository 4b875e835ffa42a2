package accounting

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for dev mode and tests. A single mutex
// stands in for the row locks the Postgres store takes.
type MemoryStore struct {
	mu    sync.Mutex
	rules PlanRules
	now   func() time.Time

	users     map[string]*User
	ips       map[string]*IPUsage
	ipHistory []IPHistoryEntry
	logs      []UsageLog
	nextID    int64

	purgers []func(email string)
}

// OnDeleteUser registers a hook run after a user is deleted, so sibling
// in-memory repos can drop their rows the way the Postgres FK cascade and
// delete transaction do.
func (s *MemoryStore) OnDeleteUser(fn func(email string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgers = append(s.purgers, fn)
}

// NewMemoryStore constructs an empty in-memory accounting store.
func NewMemoryStore(rules PlanRules) *MemoryStore {
	return &MemoryStore{
		rules: rules,
		now:   func() time.Time { return time.Now().UTC() },
		users: make(map[string]*User),
		ips:   make(map[string]*IPUsage),
	}
}

// SetNow overrides the clock. Test hook.
func (s *MemoryStore) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) RecordUsage(ctx context.Context, in RecordUsageInput) (Receipt, error) {
	if in.Questions <= 0 {
		in.Questions = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	ip := s.touchIPLocked(in.IP, now)
	if ip.IsBlocked {
		return Receipt{}, ErrIPBlocked
	}

	receipt := Receipt{IPTotal: ip.QuestionsUsedTotal + in.Questions}

	if in.Email != "" {
		user := s.getOrCreateLocked(in.Email, in.IP, now)
		if user.IsBlocked {
			return Receipt{}, ErrBlocked
		}
		s.lapsePremiumLocked(user, now)

		if user.PremiumActive(now) {
			user.QuestionsUsedTotal += in.Questions
			receipt.Unlimited = true
			receipt.Remaining = user.QuestionsRemaining
		} else {
			if user.QuestionsRemaining < in.Questions {
				return Receipt{}, ErrQuotaExceeded
			}
			user.QuestionsRemaining -= in.Questions
			user.QuestionsUsedTotal += in.Questions
			receipt.Remaining = user.QuestionsRemaining
		}
		user.IPAddress = in.IP
		user.UpdatedAt = now
		receipt.Email = in.Email
		receipt.Plan = user.PlanStatus
		s.touchIPHistoryLocked(in.Email, in.IP, now)
	}

	s.nextID++
	s.logs = append(s.logs, UsageLog{
		EventID:            s.nextID,
		Email:              in.Email,
		IPAddress:          in.IP,
		EventTime:          now,
		QuestionsGenerated: in.Questions,
		SourceType:         in.SourceType,
		Category:           in.Category,
		Difficulty:         in.Difficulty,
		Notes:              in.Notes,
	})

	ip.QuestionsUsedTotal += in.Questions
	ip.LastSeen = now
	if s.rules.IPAbuseThreshold > 0 && ip.QuestionsUsedTotal >= s.rules.IPAbuseThreshold {
		ip.IsBlocked = true
	}
	return receipt, nil
}

func (s *MemoryStore) GetOrCreateUser(ctx context.Context, email, ip string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	user := s.getOrCreateLocked(email, ip, now)
	s.lapsePremiumLocked(user, now)
	user.IPAddress = ip
	user.UpdatedAt = now
	s.touchIPHistoryLocked(email, ip, now)
	return *user, nil
}

func (s *MemoryStore) GetUser(ctx context.Context, email string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[email]
	if !ok {
		return User{}, ErrNotFound
	}
	return *user, nil
}

func (s *MemoryStore) ListUsers(ctx context.Context) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) SetUserBlocked(ctx context.Context, email string, blocked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[email]
	if !ok {
		return ErrNotFound
	}
	user.IsBlocked = blocked
	user.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) SetIPBlocked(ctx context.Context, ip string, blocked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.touchIPLocked(ip, s.now())
	entry.IsBlocked = blocked
	return nil
}

func (s *MemoryStore) AdjustQuota(ctx context.Context, email string, questionsRemaining int) error {
	if questionsRemaining < 0 {
		return ErrConstraint
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[email]
	if !ok {
		return ErrNotFound
	}
	user.QuestionsRemaining = questionsRemaining
	user.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) ApplyPlan(ctx context.Context, email, plan string, questionsRemaining int, expiry *time.Time) error {
	if !ValidPlan(plan) {
		return ErrConstraint
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[email]
	if !ok {
		return ErrNotFound
	}
	user.PlanStatus = plan
	user.QuestionsRemaining = questionsRemaining
	user.PremiumExpiry = expiry
	user.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) DeleteUser(ctx context.Context, email string) error {
	s.mu.Lock()

	if _, ok := s.users[email]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.users, email)

	history := s.ipHistory[:0]
	for _, e := range s.ipHistory {
		if e.Email != email {
			history = append(history, e)
		}
	}
	s.ipHistory = history

	logs := s.logs[:0]
	for _, l := range s.logs {
		if l.Email != email {
			logs = append(logs, l)
		}
	}
	s.logs = logs

	// Hooks run outside the lock; they take their own repo locks.
	purgers := make([]func(string), len(s.purgers))
	copy(purgers, s.purgers)
	s.mu.Unlock()

	for _, purge := range purgers {
		purge(email)
	}
	return nil
}

func (s *MemoryStore) GetIPUsage(ctx context.Context, ip string) (IPUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.ips[ip]
	if !ok {
		return IPUsage{}, ErrNotFound
	}
	return *entry, nil
}

func (s *MemoryStore) UserIPHistory(ctx context.Context, email string) ([]IPHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []IPHistoryEntry
	for _, e := range s.ipHistory {
		if e.Email == email {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out, nil
}

func (s *MemoryStore) UserLogs(ctx context.Context, email string, limit int) ([]UsageLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []UsageLog
	for i := len(s.logs) - 1; i >= 0; i-- {
		if s.logs[i].Email == email {
			out = append(out, s.logs[i])
			if len(out) == normalizeLimit(limit, 50) {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) AllLogs(ctx context.Context, limit int) ([]UsageLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	max := normalizeLimit(limit, 100)
	var out []UsageLog
	for i := len(s.logs) - 1; i >= 0 && len(out) < max; i-- {
		out = append(out, s.logs[i])
	}
	return out, nil
}

func (s *MemoryStore) getOrCreateLocked(email, ip string, now time.Time) *User {
	if user, ok := s.users[email]; ok {
		return user
	}
	user := &User{
		Email:              email,
		IPAddress:          ip,
		PlanStatus:         PlanFree,
		QuestionsRemaining: s.rules.FreeQuestionLimit,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	s.users[email] = user
	return user
}

func (s *MemoryStore) lapsePremiumLocked(user *User, now time.Time) {
	if user.PlanStatus != PlanPremium || user.PremiumExpiry == nil || user.PremiumExpiry.After(now) {
		return
	}
	user.PlanStatus = PlanFree
	user.QuestionsRemaining = 0
	user.PremiumExpiry = nil
	user.UpdatedAt = now
}

func (s *MemoryStore) touchIPLocked(ip string, now time.Time) *IPUsage {
	if entry, ok := s.ips[ip]; ok {
		entry.LastSeen = now
		return entry
	}
	entry := &IPUsage{IPAddress: ip, FirstSeen: now, LastSeen: now}
	s.ips[ip] = entry
	return entry
}

func (s *MemoryStore) touchIPHistoryLocked(email, ip string, now time.Time) {
	for i := range s.ipHistory {
		if s.ipHistory[i].Email == email && s.ipHistory[i].IPAddress == ip {
			s.ipHistory[i].LastSeen = now
			return
		}
	}
	s.nextID++
	s.ipHistory = append(s.ipHistory, IPHistoryEntry{
		ID:        s.nextID,
		Email:     email,
		IPAddress: ip,
		FirstSeen: now,
		LastSeen:  now,
	})
}

var _ Store = (*MemoryStore)(nil)
