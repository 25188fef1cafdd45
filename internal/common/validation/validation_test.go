package validation

import (
	"testing"

	"barn-economy-backend/internal/common/errors"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskWallet(t *testing.T) {
	assert.Equal(t, "0xabcd…7890", MaskWallet("0xabcdef1234567890abcdef1234567890abcd7890"))
	assert.Equal(t, "0x1234", MaskWallet("0x1234"))
}

func TestNormalizeWallet(t *testing.T) {
	assert.Equal(t, "0xabcdef1234567890abcdef1234567890abcd7890",
		NormalizeWallet("  0xABCDEF1234567890abcdef1234567890ABCD7890 "))
	assert.True(t, IsWalletAddress("0xABCDEF1234567890abcdef1234567890ABCD7890"))
	assert.False(t, IsWalletAddress("0xABCD"))
}

func TestPagination(t *testing.T) {
	tests := []struct {
		name       string
		limit      string
		offset     string
		wantLimit  int
		wantOffset int
		wantErr    bool
	}{
		{"defaults", "", "", 50, 0, false},
		{"explicit", "10", "20", 10, 20, false},
		{"at max", "100", "", 100, 0, false},
		{"over max", "101", "", 0, 0, true},
		{"zero limit", "0", "", 0, 0, true},
		{"negative offset", "", "-1", 0, 0, true},
		{"garbage", "ten", "", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit, offset, err := Pagination(tt.limit, tt.offset, 50, 100)
			if tt.wantErr {
				require.Error(t, err)
				appErr, ok := errors.AsAppError(err)
				require.True(t, ok)
				assert.Equal(t, errors.ErrCodeValidation, appErr.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLimit, limit)
			assert.Equal(t, tt.wantOffset, offset)
		})
	}
}

func TestBindingError(t *testing.T) {
	type req struct {
		GameType string `validate:"required"`
		Score    int64  `validate:"gte=0"`
	}
	err := validator.New().Struct(req{Score: -1})
	require.Error(t, err)

	appErr := BindingError(err)
	assert.Equal(t, errors.ErrCodeValidation, appErr.Code)
	assert.Equal(t, "gameType", appErr.Details["field"])
	assert.Equal(t, []string{"gameType", "score"}, appErr.Details["fields"])
}
