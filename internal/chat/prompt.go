package chat

import (
	"strings"

	"github.com/pkg/errors"
)

const (
	detailedPrefix = "provide a detailed explanation of: "
	simplePrefix   = "answer simply: "
)

// ErrEmptyInput is returned for empty or whitespace-only user text.
var ErrEmptyInput = errors.New("empty input")

// Compose turns raw user text into the request sent to the model.
// The text is embedded verbatim.
func Compose(text string, detailed bool) string {
	if detailed {
		return detailedPrefix + text
	}
	return simplePrefix + text
}

func ValidateInput(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}
	return nil
}
