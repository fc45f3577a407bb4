// internal/workbook/names.go
package workbook

import (
	"strings"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"

	gcerrors "gridcalc/internal/errors"
)

// maxSheetNameUnits is the Excel limit, counted in UTF-16 code units.
const maxSheetNameUnits = 31

const forbiddenSheetChars = ":\\/?*[]"

// NormalizeSheetName folds a sheet name for case-insensitive
// comparison: NFKC normalization followed by Unicode uppercasing.
func NormalizeSheetName(name string) string {
	return strings.ToUpper(norm.NFKC.String(name))
}

// ValidateSheetName applies Excel's sheet-name rules.
func ValidateSheetName(name string) error {
	if name == "" {
		return gcerrors.New(gcerrors.SheetError, "sheet name must not be empty")
	}
	if len(utf16.Encode([]rune(name))) > maxSheetNameUnits {
		return gcerrors.New(gcerrors.SheetError, "sheet name %q exceeds %d characters", name, maxSheetNameUnits)
	}
	if i := strings.IndexAny(name, forbiddenSheetChars); i >= 0 {
		return gcerrors.New(gcerrors.SheetError, "sheet name %q contains forbidden character %q", name, name[i])
	}
	if strings.HasPrefix(name, "'") || strings.HasSuffix(name, "'") {
		return gcerrors.New(gcerrors.SheetError, "sheet name %q must not start or end with an apostrophe", name)
	}
	return nil
}

// normalizeDefinedName folds defined-name and table identifiers.
func normalizeDefinedName(name string) string {
	return strings.ToUpper(name)
}
