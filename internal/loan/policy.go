package loan

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Policy holds the constants that govern borrowing. It is a value type:
// pass it by value and never mutate a shared instance.
type Policy struct {
	MaxDurationDays       int  `yaml:"max_duration_days" json:"max_duration_days"`
	MinDurationDays       int  `yaml:"min_duration_days" json:"min_duration_days"`
	AllowBackdatedDueDate bool `yaml:"allow_backdated_due_date" json:"allow_backdated_due_date"`
}

// DefaultPolicy is a one-week loan with same-day returns allowed.
func DefaultPolicy() Policy {
	return Policy{
		MaxDurationDays:       7,
		MinDurationDays:       0,
		AllowBackdatedDueDate: false,
	}
}

// Validate validates the policy.
func (p Policy) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.MaxDurationDays, validation.Required, validation.Min(1)),
		validation.Field(&p.MinDurationDays, validation.Min(0), validation.Max(p.MaxDurationDays)),
	)
}

// EarliestDueDate returns the first due date the policy permits for a loan
// starting on today. The second result is false when back-dating is allowed
// and there is no lower bound.
func (p Policy) EarliestDueDate(today Date) (Date, bool) {
	if p.AllowBackdatedDueDate {
		return Date{}, false
	}
	return today.AddDays(p.MinDurationDays), true
}

// LatestDueDate returns the last due date the policy permits for a loan
// starting on today. The bound is inclusive.
func (p Policy) LatestDueDate(today Date) Date {
	return today.AddDays(p.MaxDurationDays)
}
