package entity

// ServiceType identifies the kind of letter a template produces
type ServiceType string

const (
	ServiceTypeDomicileLetter   ServiceType = "domicile_letter"
	ServiceTypeBusinessLetter   ServiceType = "business_letter"
	ServiceTypePoorCertificate  ServiceType = "poor_certificate"
	ServiceTypeBirthCertificate ServiceType = "birth_certificate"
	ServiceTypeOther            ServiceType = "other"
)

// ServiceTemplate is the offered service an application refers to
type ServiceTemplate struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	ServiceType ServiceType `json:"service_type"`
	IsActive    bool        `json:"is_active"`
}
