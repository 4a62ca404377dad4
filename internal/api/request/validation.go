package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/edvin/sitehost/internal/platform"
)

var validate = validator.New()

var appNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

func init() {
	validate.RegisterValidation("sitename", func(fl validator.FieldLevel) bool {
		return platform.ValidateSiteName(fl.Field().String()) == nil
	})
	validate.RegisterValidation("appname", func(fl validator.FieldLevel) bool {
		return appNameRegex.MatchString(fl.Field().String())
	})
}

func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

// DecodeOptional is Decode for endpoints whose body may be omitted.
func DecodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

func RequireSiteName(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("missing site name")
	}
	if err := platform.ValidateSiteName(s); err != nil {
		return "", err
	}
	return s, nil
}
