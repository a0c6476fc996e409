package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holdem-engine/models"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  bool
	}{
		{"Valid username", "user123", false},
		{"Valid with underscore", "user_name", false},
		{"Valid with hyphen", "user-name", false},
		{"Minimum length", "abc", false},
		{"Too long", "a12345678901234567890", true},
		{"Too short", "ab", true},
		{"Empty", "", true},
		{"With spaces", "user name", true},
		{"With special chars", "user@name", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.username)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUsername() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateTableID(t *testing.T) {
	assert.NoError(t, ValidateTableID("4f9c2a"))
	assert.NoError(t, ValidateTableID("main-table_1"))
	assert.Error(t, ValidateTableID(""))
	assert.Error(t, ValidateTableID("../etc"))
	assert.Error(t, ValidateTableID(strings.Repeat("a", 65)))
}

func TestCheckXSS(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"Clean input", "hello world", false},
		{"Script tag", "<script>alert('xss')</script>", true},
		{"Upper case script", "<SCRIPT>", true},
		{"JavaScript protocol", "javascript:alert(1)", true},
		{"Onerror handler", "<img onerror='alert(1)'>", true},
		{"Iframe tag", "<iframe src='evil.com'>", true},
		{"Clean HTML-like", "less than < and greater than >", false},
		{"Poker talk", "nice hand, I had AK", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckXSS(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckXSS() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Clean string", "hello", "hello"},
		{"With whitespace", "  hello  ", "hello"},
		{"With null byte", "hello\x00world", "helloworld"},
		{"Newlines flattened", "gg\nwp", "gg wp"},
		{"Multiple spaces", "hello    world", "hello    world"},
		{"Only whitespace", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeString(tt.input))
		})
	}
}

func TestChatMessage(t *testing.T) {
	text, err := ChatMessage("  gl hf  ")
	require.NoError(t, err)
	assert.Equal(t, "gl hf", text)

	_, err = ChatMessage("   ")
	assert.ErrorIs(t, err, ErrStringTooShort)

	_, err = ChatMessage(strings.Repeat("x", MaxChatLength+1))
	assert.ErrorIs(t, err, ErrStringTooLong)

	_, err = ChatMessage(strings.Repeat("é", MaxChatLength))
	assert.NoError(t, err, "length counts characters")

	_, err = ChatMessage("<script>alert(1)</script>")
	assert.ErrorIs(t, err, ErrContainsXSSPattern)
}

func TestValidateTableConfig(t *testing.T) {
	cfg, err := ValidateTableConfig("Main", models.TableConfig{SmallBlind: 5, BigBlind: 10, MaxSeats: 6})
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.MinBuyIn)
	assert.Equal(t, 1000, cfg.MaxBuyIn)

	_, err = ValidateTableConfig("", models.TableConfig{SmallBlind: 5, BigBlind: 10})
	assert.Error(t, err)

	_, err = ValidateTableConfig(" padded ", models.TableConfig{SmallBlind: 5, BigBlind: 10})
	assert.Error(t, err)

	_, err = ValidateTableConfig("Main", models.TableConfig{SmallBlind: 10, BigBlind: 5})
	assert.Error(t, err)

	_, err = ValidateTableConfig("Main", models.TableConfig{SmallBlind: 5, BigBlind: 10, MaxSeats: 11})
	assert.Error(t, err)

	_, err = ValidateTableConfig("Main", models.TableConfig{SmallBlind: 2000000, BigBlind: 4000000})
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestValidateIntRange(t *testing.T) {
	assert.NoError(t, ValidateIntRange(5, 1, 10, "amount"))
	assert.ErrorIs(t, ValidateIntRange(0, 1, 10, "amount"), ErrInvalidRange)
	assert.ErrorIs(t, ValidatePositiveInt(-1, "amount"), ErrInvalidRange)
}
