package notification

// Subscriber is a user's reminder preferences. The record is owned by the
// user-preferences store; this service only reads it.
type Subscriber struct {
	UserID              int64
	Role                Role
	ReminderEnabled     bool
	ReminderDaysBefore  []int
	PreferredGroupCode  string
	PreferredTeacherKey string
}

// LeadDays returns the subscriber's lead times restricted to supported values,
// without duplicates, in ascending order.
func (s Subscriber) LeadDays() []int {
	out := make([]int, 0, len(SupportedLeadDays))
	for _, d := range SupportedLeadDays {
		for _, want := range s.ReminderDaysBefore {
			if want == d {
				out = append(out, d)
				break
			}
		}
	}
	return out
}
