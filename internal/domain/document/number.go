// Package document holds the pure formatting rules for official letter numbers.
package document

import (
	"fmt"
	"strings"

	"github.com/garyjia/kelurahan-portal/internal/domain/entity"
)

// CodeOther is used for service types without a dedicated code
const CodeOther = "LAIN"

var serviceCodes = map[entity.ServiceType]string{
	entity.ServiceTypeDomicileLetter:   "SKD",
	entity.ServiceTypeBusinessLetter:   "SKU",
	entity.ServiceTypePoorCertificate:  "SKTM",
	entity.ServiceTypeBirthCertificate: "SAL",
	entity.ServiceTypeOther:            CodeOther,
}

// CodeFor returns the letter code for a service type
func CodeFor(serviceType entity.ServiceType) string {
	if code, ok := serviceCodes[serviceType]; ok {
		return code
	}
	return CodeOther
}

// FormatNumber renders a document number such as 004/SKD/2024
func FormatNumber(sequence int64, code string, year int) string {
	return fmt.Sprintf("%03d/%s/%d", sequence, code, year)
}

// FileName turns a document number into a path-safe file stem
func FileName(number string) string {
	return strings.ReplaceAll(number, "/", "-")
}
