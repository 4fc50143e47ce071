package types

// Status represents the result status of a verification check
type Status string

const (
	// StatusOK indicates the component works as installed
	StatusOK Status = "OK"

	// StatusWarning indicates the component works but needs attention
	StatusWarning Status = "Warning"

	// StatusCritical indicates the component is missing or broken
	StatusCritical Status = "Critical"

	// StatusUnknown indicates the status could not be determined
	StatusUnknown Status = "Unknown"

	// StatusNotApplicable indicates the check does not apply to this installation
	StatusNotApplicable Status = "NotApplicable"
)

// Statuses lists every status in report order
var Statuses = []Status{StatusOK, StatusWarning, StatusCritical, StatusUnknown, StatusNotApplicable}

// ResultKey represents the level of importance for a result in a report summary
type ResultKey string

const (
	ResultKeyNoChange      ResultKey = "nochange"
	ResultKeyRecommended   ResultKey = "recommended"
	ResultKeyRequired      ResultKey = "required"
	ResultKeyAdvisory      ResultKey = "advisory"
	ResultKeyNotApplicable ResultKey = "na"
)

// Category represents a category of checks
type Category string

const (
	// CategoryOperators covers the OLM installed operators
	CategoryOperators Category = "Operators"

	// CategoryCentral covers the Central deployment and its API
	CategoryCentral Category = "Central"

	// CategorySecuredCluster covers sensor, collector and admission control
	CategorySecuredCluster Category = "SecuredCluster"

	// CategoryCertificates covers cert-manager issuers and certificates
	CategoryCertificates Category = "Certificates"

	// CategoryCompliance covers compliance scans
	CategoryCompliance Category = "Compliance"

	// CategoryMonitoring covers metrics and their collection
	CategoryMonitoring Category = "Monitoring"
)

// Categories lists every category in report order
var Categories = []Category{
	CategoryOperators,
	CategoryCentral,
	CategorySecuredCluster,
	CategoryCertificates,
	CategoryCompliance,
	CategoryMonitoring,
}

// ReportFormat defines the format of the generated report
type ReportFormat string

const (
	// FormatAsciiDoc generates an AsciiDoc report
	FormatAsciiDoc ReportFormat = "asciidoc"

	// FormatJSON generates a JSON report
	FormatJSON ReportFormat = "json"

	// FormatSummary generates a brief text summary
	FormatSummary ReportFormat = "summary"
)

// Check describes a verification check
type Check interface {
	// ID returns a unique identifier for the check
	ID() string

	// Name returns a human-readable name for the check
	Name() string

	// Description returns a description of what the check does
	Description() string

	// Category returns the category the check belongs to
	Category() Category
}
