package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testProvider struct {
	URL string `json:"oidc_config_url" validate:"required,url"`
	VO  string `json:"vo" validate:"required,max=16"`
}

type testBatch struct {
	Scope string         `json:"scope" validate:"required,excludes=:"`
	Items []testProvider `json:"items" validate:"required,min=1,dive"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid struct", func(t *testing.T) {
		s := testProvider{
			URL: "https://idp.example/.well-known/openid-configuration",
			VO:  "team-x",
		}

		err := ValidateStruct(&s)
		assert.NoError(t, err)
	})

	t.Run("missing required field uses json name", func(t *testing.T) {
		s := testProvider{URL: "https://idp.example"}

		err := ValidateStruct(&s)
		require.Error(t, err)
		assert.True(t, IsValidationError(err))

		fields := GetValidationFields(err)
		assert.Equal(t, "vo is required", fields["vo"])
	})

	t.Run("invalid url", func(t *testing.T) {
		s := testProvider{URL: "not a url", VO: "team-x"}

		err := ValidateStruct(&s)
		require.Error(t, err)

		fields := GetValidationFields(err)
		assert.Equal(t, "oidc_config_url must be a valid URL", fields["oidc_config_url"])
	})

	t.Run("nested fields keep their path", func(t *testing.T) {
		s := testBatch{
			Scope: "mc:23",
			Items: []testProvider{{URL: "https://idp.example", VO: "this-vo-name-is-too-long"}},
		}

		err := ValidateStruct(&s)
		require.Error(t, err)

		fields := GetValidationFields(err)
		assert.Equal(t, "scope must not contain ':'", fields["scope"])
		assert.Equal(t, "items[0].vo must be at most 16", fields["items[0].vo"])
	})

	t.Run("empty slice", func(t *testing.T) {
		s := testBatch{Scope: "mc23", Items: []testProvider{}}

		err := ValidateStruct(&s)
		require.Error(t, err)
		assert.Contains(t, GetValidationFields(err), "items")
	})
}

func TestValidateStringLength(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		min       int
		max       int
		wantError bool
	}{
		{name: "within range", value: "test", min: 1, max: 10},
		{name: "too short", value: "a", min: 3, max: 10, wantError: true},
		{name: "too long", value: "this is a very long string", min: 1, max: 10, wantError: true},
		{name: "no min constraint", value: "", min: 0, max: 10},
		{name: "no max constraint", value: "very long string here that exceeds normal limits", min: 1, max: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStringLength(tt.value, "query", tt.min, tt.max)
			if tt.wantError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "query")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateOneOf(t *testing.T) {
	allowed := []string{"scope", "campaign", "generator"}

	assert.NoError(t, ValidateOneOf("scope", "field", allowed))
	assert.NoError(t, ValidateOneOf("generator", "field", allowed))

	err := ValidateOneOf("description", "field", allowed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field must be one of")
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Message: "Test validation error",
		Fields: map[string]string{
			"field1": "error1",
		},
	}

	assert.Equal(t, "Test validation error", err.Error())
}

func TestIsValidationError(t *testing.T) {
	t.Run("is validation error", func(t *testing.T) {
		err := &ValidationError{
			Message: "test",
			Fields:  map[string]string{},
		}

		assert.True(t, IsValidationError(err))
	})

	t.Run("is not validation error", func(t *testing.T) {
		assert.False(t, IsValidationError(assert.AnError))
	})
}

func TestGetValidationFields(t *testing.T) {
	t.Run("gets fields from validation error", func(t *testing.T) {
		fields := map[string]string{
			"field1": "error1",
			"field2": "error2",
		}
		err := &ValidationError{
			Message: "test",
			Fields:  fields,
		}

		assert.Equal(t, fields, GetValidationFields(err))
	})

	t.Run("returns nil for non-validation error", func(t *testing.T) {
		assert.Nil(t, GetValidationFields(assert.AnError))
	})
}
