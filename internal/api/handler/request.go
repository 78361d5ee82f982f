// Package handler provides HTTP handlers for the air quality API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/airwatch/airwatch/internal/airquality"
	"github.com/airwatch/airwatch/internal/api/middleware"
	"github.com/airwatch/airwatch/internal/api/models"
	"github.com/airwatch/airwatch/internal/api/response"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// decodeJSON decodes and validates the request body into v. An empty body
// is accepted when optional is set. On failure it writes a 400 problem and
// returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))

	if err := dec.Decode(v); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			response.BadRequest(w, r, "invalid JSON body", nil)
			return false
		}
	}

	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			response.BadRequest(w, r, "request validation failed", fieldErrors(verrs))
			return false
		}
		response.BadRequest(w, r, err.Error(), nil)
		return false
	}
	return true
}

func fieldErrors(verrs validator.ValidationErrors) []models.FieldError {
	out := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, models.FieldError{
			Field:   fe.Field(),
			Message: validationMessage(fe),
			Code:    strings.ToUpper(fe.Tag()),
		})
	}
	return out
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

// measurementFieldErrors converts a domain validation error.
func measurementFieldErrors(err *airquality.ValidationError) []models.FieldError {
	out := make([]models.FieldError, 0, len(err.Fields))
	for _, f := range err.Fields {
		out = append(out, models.FieldError{Field: f.Field, Message: f.Reason})
	}
	return out
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return 0, errors.New(name + " must be an integer between " + strconv.Itoa(lo) + " and " + strconv.Itoa(hi))
	}
	return v, nil
}

// queryPollutant parses an optional pollutant query parameter.
func queryPollutant(r *http.Request, name string) (airquality.Pollutant, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return "", nil
	}
	return airquality.ParsePollutant(raw)
}

// queryDate parses an optional date in YYYY-MM-DD or RFC3339 form. A bare
// date used as an upper bound covers the whole day.
func queryDate(r *http.Request, name string, endOfDay bool) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, errors.New(name + " must be YYYY-MM-DD or RFC3339")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// serverError logs err and writes a 500 problem.
func serverError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error, msg string) {
	logger.Error().
		Err(err).
		Str("request_id", middleware.GetRequestID(r.Context())).
		Str("path", r.URL.Path).
		Msg(msg)
	response.InternalError(w, r, msg)
}
