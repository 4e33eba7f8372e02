// ABOUTME: ActionResult: the tagged outcome of one executed plan step
// ABOUTME: Exactly one of success payload, classified error, or skip is populated

package types

// Result is the outcome of a single step. A failed result never carries Data.
type Result struct {
	OK      bool   `json:"ok"`
	Error   Kind   `json:"error,omitempty"`
	Detail  string `json:"detail,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Warning string `json:"warning,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Success wraps a payload.
func Success(data any) Result {
	return Result{OK: true, Data: data}
}

// Failure converts err into a failed result.
func Failure(err error) Result {
	return Result{Error: KindOf(err), Detail: DetailOf(err)}
}

// Denied reports a step refused at the approval gate. It is a skip that
// still names user_denied so callers can tell it from other skips.
func Denied(reason string) Result {
	return Result{Skipped: true, Error: KindUserDenied, Reason: reason}
}

// Failed reports whether the result carries an error. Skips never fail.
func (r Result) Failed() bool {
	return r.Error != "" && !r.Skipped
}
