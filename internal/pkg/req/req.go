/*
Package req provides helper functions for HTTP request parsing and data binding.

JSON bodies are size-limited and decoded strictly; failures come back as *errs.CustomError
ready to be written with the resp package.
*/
package req

import (
	"encoding/json"
	"net/http"
	"strings"

	"masskribbl/internal/pkg/errs"
)

const (
	// MaxBodySize caps JSON request bodies.
	MaxBodySize int64 = 1 << 20
)

// BindJSON decodes the JSON request body into dst, rejecting unknown fields and trailing data.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodySize))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}
