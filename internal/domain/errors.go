package domain

import "errors"

// Ошибки предметной области. Хранилища оборачивают их через %w,
// вызывающий код проверяет через errors.Is.
var (
	ErrNotFound                     = errors.New("not found")
	ErrUnauthorized                 = errors.New("unauthorized")
	ErrForbidden                    = errors.New("forbidden")
	ErrPostNotFound                 = errors.New("post not found")
	ErrParentNotFound               = errors.New("parent comment not found")
	ErrParentBelongsToDifferentPost = errors.New("parent comment belongs to a different post")
	ErrInvalidInput                 = errors.New("invalid input")
	ErrTimeout                      = errors.New("timeout")
	ErrConflict                     = errors.New("conflict")
	ErrEmailTaken                   = errors.New("email already taken")
	ErrInvalidCredentials           = errors.New("invalid credentials")
)

// codes - стабильные коды ошибок для передачи по сети.
// Порядок важен: более конкретные ошибки идут раньше.
var codes = []struct {
	err  error
	code string
}{
	{ErrPostNotFound, "POST_NOT_FOUND"},
	{ErrParentNotFound, "PARENT_NOT_FOUND"},
	{ErrParentBelongsToDifferentPost, "PARENT_DIFFERENT_POST"},
	{ErrEmailTaken, "EMAIL_TAKEN"},
	{ErrInvalidCredentials, "INVALID_CREDENTIALS"},
	{ErrNotFound, "NOT_FOUND"},
	{ErrUnauthorized, "UNAUTHORIZED"},
	{ErrForbidden, "FORBIDDEN"},
	{ErrInvalidInput, "INVALID_INPUT"},
	{ErrTimeout, "TIMEOUT"},
	{ErrConflict, "CONFLICT"},
}

// Code возвращает сетевой код ошибки или "INTERNAL" для неизвестных ошибок.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "INTERNAL"
}

// FromCode возвращает sentinel-ошибку по сетевому коду, либо nil.
func FromCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}
