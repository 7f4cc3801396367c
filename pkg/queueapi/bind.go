package queueapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

// decodeJSON strictly decodes the request body into v. With optional set an
// empty body leaves v untouched.
func decodeJSON(r *http.Request, v any, optional bool) error {
	if optional && r.ContentLength == 0 {
		return nil
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		if optional && r.ContentLength < 0 {
			return nil
		}
		return fmt.Errorf("%w: expected application/json", ErrMissingContentType)
	}
	mediaType := contentType
	if idx := strings.Index(contentType, ";"); idx != -1 {
		mediaType = strings.TrimSpace(contentType[:idx])
	}
	if mediaType != "application/json" {
		return fmt.Errorf("%w: got %s, expected application/json", ErrUnsupportedMediaType, mediaType)
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, tooLarge.Limit)
		case errors.Is(err, io.EOF):
			if optional {
				return nil
			}
			return fmt.Errorf("%w: empty body", ErrInvalidJSON)
		default:
			return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
	}

	var extra json.RawMessage
	if err := decoder.Decode(&extra); err != io.EOF {
		return fmt.Errorf("%w: unexpected data after JSON object", ErrInvalidJSON)
	}
	return nil
}

// maxSeconds is the largest number of seconds a time.Duration can hold.
const maxSeconds = float64(math.MaxInt64) / float64(time.Second)

// seconds converts an optional number of seconds to a duration.
func seconds(v *float64) (time.Duration, bool, error) {
	if v == nil {
		return 0, false, nil
	}
	if *v < 0 {
		return 0, false, ErrNegativeDuration
	}
	if *v >= maxSeconds {
		return 0, false, fmt.Errorf("%w: at most %.0f seconds", ErrDurationTooLarge, maxSeconds)
	}
	return time.Duration(*v * float64(time.Second)), true, nil
}

func isNullJSON(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}
