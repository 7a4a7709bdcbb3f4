package notification

// Role is the kind of subscriber, which decides how lessons are matched.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// SupportedLeadDays are the only lead times a reminder can be scheduled with.
var SupportedLeadDays = []int{1, 2}
