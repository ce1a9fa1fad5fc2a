package loan

// RejectionKind names why a borrow or return was refused.
type RejectionKind string

// Borrow and return rejection kinds.
const (
	KindBookIDMissing        RejectionKind = "book_id_missing"
	KindNoCopiesAvailable    RejectionKind = "no_copies_available"
	KindDueDateMissing       RejectionKind = "due_date_missing"
	KindDueDateInPast        RejectionKind = "due_date_in_past"
	KindDueDateBeforeMinimum RejectionKind = "due_date_before_minimum"
	KindDueDateExceedsPolicy RejectionKind = "due_date_exceeds_policy"
	KindAlreadyReturned      RejectionKind = "already_returned"
)

// Rejection is an expected validation failure. Two rejections match under
// errors.Is when their kinds are equal, so callers can compare against the
// Err* sentinels regardless of the message.
type Rejection struct {
	Kind    RejectionKind
	Message string
}

func (r *Rejection) Error() string {
	if r.Message == "" {
		return string(r.Kind)
	}
	return r.Message
}

// Is matches any *Rejection with the same kind.
func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	return ok && t.Kind == r.Kind
}

// Sentinels for errors.Is.
var (
	ErrBookIDMissing        = &Rejection{Kind: KindBookIDMissing, Message: "book id is required"}
	ErrNoCopiesAvailable    = &Rejection{Kind: KindNoCopiesAvailable, Message: "no copies available"}
	ErrDueDateMissing       = &Rejection{Kind: KindDueDateMissing, Message: "please select a return date"}
	ErrDueDateInPast        = &Rejection{Kind: KindDueDateInPast, Message: "return date cannot be in the past"}
	ErrDueDateBeforeMinimum = &Rejection{Kind: KindDueDateBeforeMinimum, Message: "return date is before the minimum loan period"}
	ErrDueDateExceedsPolicy = &Rejection{Kind: KindDueDateExceedsPolicy, Message: "return date exceeds the maximum borrowing period"}
	ErrAlreadyReturned      = &Rejection{Kind: KindAlreadyReturned, Message: "this book was already returned"}
)

func reject(kind RejectionKind, msg string) *Rejection {
	return &Rejection{Kind: kind, Message: msg}
}
