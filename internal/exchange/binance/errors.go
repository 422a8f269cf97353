package binance

import (
	"errors"
	"strings"

	"limit-trader/internal/core"
)

const (
	apiCodeNewOrderRejected = -2010
	apiCodeCancelRejected   = -2011
	apiCodeOrderNotFound    = -2013
)

var apiErrorMessageKinds = map[string]error{
	"duplicate order sent.":                                  core.ErrDuplicateOrder,
	"account has insufficient balance for requested action.": core.ErrInsufficientBalance,
	"balance is insufficient.":                               core.ErrInsufficientBalance,
	"unknown order sent.":                                    core.ErrOrderNotFound,
	"order does not exist.":                                  core.ErrOrderNotFound,
}

func wrapAPIError(code int, msg string) error {
	apiErr := APIError{Code: code, Msg: msg}
	kinds := classifyAPIErrorKinds(apiErr)
	if len(kinds) == 0 {
		return apiErr
	}
	chain := make([]error, 0, 1+len(kinds))
	chain = append(chain, apiErr)
	chain = append(chain, kinds...)
	return errors.Join(chain...)
}

func classifyAPIErrorKinds(apiErr APIError) []error {
	kinds := make([]error, 0, 2)
	normalizedMsg := strings.ToLower(strings.TrimSpace(apiErr.Msg))

	switch apiErr.Code {
	case apiCodeOrderNotFound, apiCodeCancelRejected:
		kinds = appendErrorKind(kinds, core.ErrOrderNotFound)
	case apiCodeNewOrderRejected:
		if kind, ok := apiErrorMessageKinds[normalizedMsg]; ok {
			kinds = appendErrorKind(kinds, kind)
		} else {
			kinds = appendErrorKind(kinds, core.ErrOrderRejected)
		}
	}

	if kind, ok := apiErrorMessageKinds[normalizedMsg]; ok {
		kinds = appendErrorKind(kinds, kind)
	}

	return kinds
}

func appendErrorKind(kinds []error, kind error) []error {
	if kind == nil {
		return kinds
	}
	for _, existing := range kinds {
		if existing == kind {
			return kinds
		}
	}
	return append(kinds, kind)
}

func AsAPIError(err error) (APIError, bool) {
	if err == nil {
		return APIError{}, false
	}
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		return APIError{}, false
	}
	return apiErr, true
}
