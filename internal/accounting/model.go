package accounting

import "time"

// Plan statuses.
const (
	PlanFree    = "FREE"
	PlanPro     = "PRO"
	PlanPremium = "PREMIUM"
)

// User is the per-email account row. Email is the primary key; there are no
// separate user IDs anywhere in the system.
type User struct {
	Email              string     `json:"email"`
	IPAddress          string     `json:"ipAddress,omitempty"`
	PlanStatus         string     `json:"planStatus"`
	QuestionsUsedTotal int        `json:"questionsUsedTotal"`
	QuestionsRemaining int        `json:"questionsRemaining"`
	PremiumExpiry      *time.Time `json:"premiumExpiry,omitempty"`
	IsBlocked          bool       `json:"isBlocked"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// PremiumActive reports whether the user holds an unexpired premium plan.
func (u User) PremiumActive(now time.Time) bool {
	return u.PlanStatus == PlanPremium && u.PremiumExpiry != nil && u.PremiumExpiry.After(now)
}

// IPUsage is the per-IP aggregate, tracked independently of email so
// anonymous usage before signup is still accounted.
type IPUsage struct {
	IPAddress          string    `json:"ipAddress"`
	QuestionsUsedTotal int       `json:"questionsUsedTotal"`
	IsBlocked          bool      `json:"isBlocked"`
	FirstSeen          time.Time `json:"firstSeen"`
	LastSeen           time.Time `json:"lastSeen"`
}

// IPHistoryEntry records one (email, ip) pairing and when it was seen.
type IPHistoryEntry struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	IPAddress string    `json:"ipAddress"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
}

// UsageLog is one immutable usage event.
type UsageLog struct {
	EventID            int64     `json:"eventId"`
	Email              string    `json:"email,omitempty"`
	IPAddress          string    `json:"ipAddress"`
	EventTime          time.Time `json:"eventTime"`
	QuestionsGenerated int       `json:"questionsGenerated"`
	SourceType         string    `json:"sourceType,omitempty"`
	Category           string    `json:"category,omitempty"`
	Difficulty         string    `json:"difficulty,omitempty"`
	Notes              string    `json:"notes,omitempty"`
}

// RecordUsageInput describes one usage event to account for. Email may be
// empty for the anonymous IP-only path.
type RecordUsageInput struct {
	Email      string
	IP         string
	Questions  int
	SourceType string
	Category   string
	Difficulty string
	Notes      string
}

// Receipt is the accounting outcome of a successful RecordUsage call.
type Receipt struct {
	Email     string `json:"email,omitempty"`
	Plan      string `json:"plan,omitempty"`
	Remaining int    `json:"remaining"`
	Unlimited bool   `json:"unlimited"`
	IPTotal   int    `json:"ipTotal"`
}
