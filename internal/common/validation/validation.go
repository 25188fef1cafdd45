package validation

import (
	stderrors "errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"barn-economy-backend/internal/common/errors"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const (
	MaxGameTypeLength  = 32
	MaxSessionIDLength = 128
)

var (
	walletRegex   = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	gameTypeRegex = regexp.MustCompile(`^[a-z0-9_]{1,32}$`)
	txHashRegex   = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

// RegisterBindings adds the custom tags used by request DTOs to gin's
// validator engine.
func RegisterBindings() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding validator engine")
	}
	if err := v.RegisterValidation("wallet", func(fl validator.FieldLevel) bool {
		return IsWalletAddress(fl.Field().String())
	}); err != nil {
		return err
	}
	return v.RegisterValidation("gametype", func(fl validator.FieldLevel) bool {
		return gameTypeRegex.MatchString(fl.Field().String())
	})
}

func IsWalletAddress(s string) bool {
	return walletRegex.MatchString(s)
}

func IsTxHash(s string) bool {
	return txHashRegex.MatchString(s)
}

func IsGameType(s string) bool {
	return gameTypeRegex.MatchString(s)
}

// NormalizeWallet returns the canonical lower-case form of an address.
func NormalizeWallet(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MaskWallet renders an address as first 6 chars, an ellipsis, last 4 chars.
func MaskWallet(s string) string {
	if len(s) <= 10 {
		return s
	}
	return s[:6] + "…" + s[len(s)-4:]
}

// Pagination parses limit/offset query values, applying the default limit
// when absent and rejecting anything above max.
func Pagination(limitRaw, offsetRaw string, def, max int) (int, int, error) {
	limit := def
	if limitRaw != "" {
		v, err := strconv.Atoi(limitRaw)
		if err != nil || v < 1 {
			return 0, 0, errors.NewValidationError("limit", "must be a positive integer")
		}
		if v > max {
			return 0, 0, errors.NewValidationError("limit", fmt.Sprintf("must not exceed %d", max))
		}
		limit = v
	}

	offset := 0
	if offsetRaw != "" {
		v, err := strconv.Atoi(offsetRaw)
		if err != nil || v < 0 {
			return 0, 0, errors.NewValidationError("offset", "must be a non-negative integer")
		}
		offset = v
	}
	return limit, offset, nil
}

// BindingError converts a gin binding failure into a VALIDATION_ERROR.
func BindingError(err error) *errors.AppError {
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		appErr := errors.NewValidationError(lowerFirst(first.Field()), describeTag(first))
		if len(verrs) > 1 {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, lowerFirst(fe.Field()))
			}
			appErr.WithDetail("fields", fields)
		}
		return appErr
	}
	return errors.Wrap(err, errors.ErrCodeValidation, "malformed request body")
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "wallet":
		return "must be a 0x-prefixed 20-byte hex address"
	case "gametype":
		return "must be lower-case letters, digits or underscores"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
