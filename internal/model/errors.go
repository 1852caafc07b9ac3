package model

import "errors"

var (
	// ErrInvalidDefinition marks a stored or submitted chore definition whose
	// schedule or assignment payload cannot be used.
	ErrInvalidDefinition = errors.New("invalid chore definition")

	// ErrDuplicateOccurrence is returned by stores when an occurrence already
	// exists for the same (tenant, chore, due_at).
	ErrDuplicateOccurrence = errors.New("occurrence already exists")

	// ErrAlreadyApproved is returned when an approved occurrence would be
	// changed again. Approval is terminal.
	ErrAlreadyApproved = errors.New("occurrence already approved")

	// ErrOccurrenceCleared is returned by stores when an admin deleted or
	// moved the occurrence that was due at that instant. Generation leaves
	// the slot empty.
	ErrOccurrenceCleared = errors.New("occurrence slot cleared")

	ErrNotFound = errors.New("not found")
)
