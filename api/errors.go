package api

import (
	"encoding/json"
	"net/http"

	"ip-setkeeper/errs"
)

type ErrorCode string

const (
	ErrCodeInvalidRequest ErrorCode = "invalid_request"
	ErrCodeNotFound       ErrorCode = "not_found"
	ErrCodeConflict       ErrorCode = "conflict"
	ErrCodeUnavailable    ErrorCode = "unavailable"
	ErrCodeInternalError  ErrorCode = "internal_error"
)

type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}

type DataResponse struct {
	Data interface{} `json:"data"`
}

func WriteError(w http.ResponseWriter, statusCode int, code ErrorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: APIError{Code: code, Message: message}})
}

// writeErr maps a keeper error to its http status.
func writeErr(w http.ResponseWriter, err error) {
	code, _ := errs.CodeOf(err)
	switch code {
	case errs.CodeNotFound:
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errs.CodeDuplicateName, errs.CodeDuplicateMember, errs.CodeInUse, errs.CodeCapacityExceeded:
		WriteError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errs.CodeInvalidArgument:
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
	case errs.CodeClosed:
		WriteError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(DataResponse{Data: data})
}
