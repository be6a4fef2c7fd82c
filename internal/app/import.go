package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/bobmcallan/folio/internal/models"
)

type importPositionsFile struct {
	Positions []models.PositionInput `json:"positions"`
}

// LoadPositionsFile reads already-normalised position records from a JSON
// file. Both a bare array and {"positions": [...]} are accepted. Records are
// validated later by the ledger, with row numbers matching file order.
func LoadPositionsFile(filePath string) ([]models.Position, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read positions file %s: %w", filePath, err)
	}
	return ParsePositions(data)
}

// ErrMalformedImport is returned when the payload is not a JSON document of
// the expected shape. Bad values inside a well-formed record are reported as
// a models.ValidationError carrying the row and field instead.
var ErrMalformedImport = errors.New("malformed positions document")

// ParsePositions decodes an import payload.
func ParsePositions(data []byte) ([]models.Position, error) {
	trimmed := bytes.TrimSpace(data)

	var inputs []models.PositionInput
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &inputs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedImport, err)
		}
	} else {
		var file importPositionsFile
		if err := json.Unmarshal(trimmed, &file); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedImport, err)
		}
		inputs = file.Positions
	}
	return models.PositionsFromInputs(inputs)
}
