package usecase

import (
	"errors"
	"fmt"
	"net/http"

	"gaojie/internal/domain/model"
	repo "gaojie/internal/repository"
)

// HandlerはMessageだけ返す。Errは原因（ログ・errors.Is用）
type HTTPError struct {
	Status  int
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (e *HTTPError) Unwrap() error { return e.Err }

func NewHTTPError(status int, message string) error {
	return &HTTPError{Status: status, Message: message}
}

func wrapHTTPError(status int, message string, cause error) error {
	return &HTTPError{Status: status, Message: message, Err: cause}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

func dbError(err error) error {
	return wrapHTTPError(http.StatusInternalServerError, "db error", err)
}

func notFound() error {
	return wrapHTTPError(http.StatusNotFound, "not found", model.ErrNotFound)
}

// repoのエラーを404 / 500に寄せる
func mapRepoError(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return notFound()
	}
	return dbError(err)
}

// validatorのエラーは文言をそのまま返す（内部情報は含まない）
func validationError(err error) error {
	if he, ok := AsHTTPError(err); ok {
		return he
	}
	return wrapHTTPError(http.StatusBadRequest, err.Error(), err)
}
