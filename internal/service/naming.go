package service

import (
	"fmt"

	"github.com/google/uuid"
)

// uniqueName returns prefix_<uuidv7><ext>. Version 7 ids sort by creation time.
func uniqueName(prefix, ext string) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate file id: %w", err)
	}

	return fmt.Sprintf("%s_%s%s", prefix, id, ext), nil
}
