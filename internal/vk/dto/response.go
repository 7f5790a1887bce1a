package dto

import (
	"encoding/json"
	"fmt"

	"github.com/handiism/photo-mirror/internal/errors"
)

// Envelope is the outer object of every VK API response. Exactly one of
// Response and Error is set.
type Envelope struct {
	Response json.RawMessage `json:"response"`
	Error    *APIError       `json:"error"`
}

// APIError is the error object VK returns with HTTP 200.
type APIError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vk error %d: %s", e.Code, e.Message)
}

// Kind classifies the error code.
//
//	5                         → AUTH (invalid or expired token)
//	15, 18, 30, 100, 113, 200 → NOT_FOUND (unknown, deleted, private or inaccessible)
//	6, 9, 10                  → REMOTE_TRANSIENT (rate limit, flood control, server error)
//	other                     → REMOTE
func (e *APIError) Kind() errors.Kind {
	switch e.Code {
	case 5:
		return errors.KindAuth
	case 15, 18, 30, 100, 113, 200:
		return errors.KindNotFound
	case 6, 9, 10:
		return errors.KindRemoteTransient
	}
	return errors.KindRemote
}

// ItemList is the {"count", "items"} object list methods return.
type ItemList[T any] struct {
	Count int `json:"count"`
	Items []T `json:"items"`
}
