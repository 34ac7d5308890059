package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// エラーコードは機能パッケージ間で共有する。
// 在庫（ledger）側のエラーを取引（transactions）側がそのまま返すため、
// 1か所に集約している。
type Code string

const (
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
	CodeNotFound          Code = "NOT_FOUND"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeConflict          Code = "CONFLICT"
	CodeItemUnavailable   Code = "ITEM_UNAVAILABLE"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeDuplicateRequest  Code = "DUPLICATE_REQUEST"
	CodeInvalidState      Code = "INVALID_STATE"
	CodeInternal          Code = "INTERNAL"
)

type APIError struct {
	Code    Code
	Message string
}

func (e *APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func ErrInvalid(msg string) *APIError      { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError     { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrUnauthorized(msg string) *APIError { return &APIError{Code: CodeUnauthorized, Message: msg} }
func ErrConflict(msg string) *APIError     { return &APIError{Code: CodeConflict, Message: msg} }
func ErrInternal(msg string) *APIError     { return &APIError{Code: CodeInternal, Message: msg} }

func ErrItemUnavailable(msg string) *APIError {
	return &APIError{Code: CodeItemUnavailable, Message: msg}
}

func ErrInsufficientStock(msg string) *APIError {
	return &APIError{Code: CodeInsufficientStock, Message: msg}
}

func ErrDuplicateRequest(msg string) *APIError {
	return &APIError{Code: CodeDuplicateRequest, Message: msg}
}

func ErrInvalidState(msg string) *APIError {
	return &APIError{Code: CodeInvalidState, Message: msg}
}

// CodeOf はエラーからコードを取り出す。APIError以外は INTERNAL 扱い。
func CodeOf(err error) Code {
	var api *APIError
	if errors.As(err, &api) {
		return api.Code
	}
	return CodeInternal
}

func ToHTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeItemUnavailable, CodeInsufficientStock,
		CodeDuplicateRequest, CodeInvalidState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
