package domain

import "fmt"

// Общие доменные ошибки
var (
	ErrNotFound   = notFoundError("not found")
	ErrValidation = validationError("invalid data")
	// ErrRejected сервис отказался выполнить запрос (4xx, кроме 404).
	ErrRejected = rejectedError("rejected by service")
)

type notFoundError string

func (e notFoundError) Error() string { return string(e) }

type validationError string

func (e validationError) Error() string { return string(e) }

type rejectedError string

func (e rejectedError) Error() string { return string(e) }

// ValidationError некорректный ввод команды; отклоняется до сетевого вызова.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is позволяет проверять errors.Is(err, ErrValidation).
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// MutationError сбой команды записи. Такие ошибки не повторяются автоматически.
type MutationError struct {
	Operation string
	Err       error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Operation, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }
