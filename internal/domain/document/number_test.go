package document

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/garyjia/kelurahan-portal/internal/domain/entity"
)

func TestCodeFor(t *testing.T) {
	tests := []struct {
		serviceType entity.ServiceType
		want        string
	}{
		{entity.ServiceTypeDomicileLetter, "SKD"},
		{entity.ServiceTypeBusinessLetter, "SKU"},
		{entity.ServiceTypePoorCertificate, "SKTM"},
		{entity.ServiceTypeBirthCertificate, "SAL"},
		{entity.ServiceTypeOther, "LAIN"},
		{entity.ServiceType("marriage_letter"), "LAIN"},
	}

	for _, tt := range tests {
		t.Run(string(tt.serviceType), func(t *testing.T) {
			assert.Equal(t, tt.want, CodeFor(tt.serviceType))
		})
	}
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "004/SKD/2024", FormatNumber(4, "SKD", 2024))
	assert.Equal(t, "1234/SKU/2025", FormatNumber(1234, "SKU", 2025))
	assert.Regexp(t, regexp.MustCompile(`^\d{3}/SKTM/\d{4}$`), FormatNumber(17, "SKTM", 2026))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "004-SKD-2024", FileName("004/SKD/2024"))
}
