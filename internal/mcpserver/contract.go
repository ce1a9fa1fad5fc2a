package mcpserver

import (
	"fmt"
	"strings"

	"github.com/starford/lendr/internal/loan"
)

// PolicyResourceURI is the URI of the loan policy resource.
const PolicyResourceURI = "lendr://loan-policy"

// renderPolicy describes the borrowing rules in force on today, for LLM
// consumers about to call borrow_book.
func renderPolicy(p loan.Policy, today loan.Date) string {
	var b strings.Builder
	b.WriteString("# Loan policy\n\n")
	fmt.Fprintf(&b, "Today is %s.\n\n", today)

	b.WriteString("## Due dates\n\n")
	b.WriteString("- Dates are calendar dates in `YYYY-MM-DD` form; the time of day is ignored.\n")
	fmt.Fprintf(&b, "- The latest permitted due date is %s (%d days from today, inclusive).\n",
		p.LatestDueDate(today), p.MaxDurationDays)
	if earliest, ok := p.EarliestDueDate(today); ok {
		fmt.Fprintf(&b, "- The earliest permitted due date is %s.\n", earliest)
	} else {
		b.WriteString("- Back-dated due dates are accepted.\n")
	}

	b.WriteString("\n## Rejections\n\n")
	b.WriteString("Checks run in this order and the first failure is reported:\n\n")
	for i, kind := range []loan.RejectionKind{
		loan.KindBookIDMissing,
		loan.KindNoCopiesAvailable,
		loan.KindDueDateMissing,
		loan.KindDueDateInPast,
		loan.KindDueDateBeforeMinimum,
		loan.KindDueDateExceedsPolicy,
	} {
		fmt.Fprintf(&b, "%d. `%s`\n", i+1, kind)
	}
	fmt.Fprintf(&b, "\nReturning a loan twice is rejected with `%s`.\n", loan.KindAlreadyReturned)

	b.WriteString("\n## Status\n\n")
	b.WriteString("A loan is `returned` once returned, `overdue` when its due date is before today, ")
	b.WriteString("and `active` otherwise. A loan due today is still active.\n")
	return b.String()
}
