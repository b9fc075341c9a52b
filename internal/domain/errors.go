package domain

import (
	"errors"
	"strings"
)

var (
	ErrAuthentication      = errors.New("exchange authentication failed")
	ErrNetworkUnavailable  = errors.New("exchange network unavailable")
	ErrInsufficientData    = errors.New("insufficient market data")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrNotFound            = errors.New("not found")
)

var fatalPatterns = []string{
	"invalid api-key",
	"invalid api key",
	"api-key format invalid",
	"signature for this request is not valid",
	"unauthorized",
	"permission denied",
	"code=-2014",
	"code=-2015",
	"no such host",
}

// IsFatal reports whether err should stop automated trading rather than be retried.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthentication) || errors.Is(err, ErrNetworkUnavailable) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range fatalPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
