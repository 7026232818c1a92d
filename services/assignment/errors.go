package assignment

import "errors"

var (
	ErrNotFound     = errors.New("assignment: not found")
	ErrForbidden    = errors.New("assignment: worker is blocked")
	ErrInvalidState = errors.New("assignment: invalid state for this operation")
	ErrInvalidInput = errors.New("assignment: invalid input")

	// errTaskTaken aborts an allocation transaction that lost the race for
	// its task; callers see DenialNoTasks.
	errTaskTaken = errors.New("assignment: task already taken")
)

// Denial is an expected reason for not handing out a task.
type Denial string

const (
	DenialBlocked        Denial = "blocked"
	DenialHasActive      Denial = "has_active"
	DenialSubmittedLimit Denial = "submitted_limit"
	DenialNoTasks        Denial = "no_tasks"
)
