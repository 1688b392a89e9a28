package scanning

import "fmt"

// ScanType selects which source scanners a job runs.
type ScanType string

const (
	// ScanTypeWeb runs only the web search scanner.
	ScanTypeWeb ScanType = "web"
	// ScanTypeSocial runs only the social media scanner.
	ScanTypeSocial ScanType = "social"
	// ScanTypeCombined runs both scanners, web first then social.
	ScanTypeCombined ScanType = "combined"
)

func (t ScanType) String() string { return string(t) }

// Validate returns an error if the scan type is not one of the supported values.
func (t ScanType) Validate() error {
	switch t {
	case ScanTypeWeb, ScanTypeSocial, ScanTypeCombined:
		return nil
	default:
		return fmt.Errorf("unsupported scan type: %q", t)
	}
}

// IncludesWeb reports whether the web phase should run for this scan type.
func (t ScanType) IncludesWeb() bool { return t == ScanTypeWeb || t == ScanTypeCombined }

// IncludesSocial reports whether the social phase should run for this scan type.
func (t ScanType) IncludesSocial() bool { return t == ScanTypeSocial || t == ScanTypeCombined }

// ParseScanType converts a string to a ScanType.
func ParseScanType(s string) ScanType {
	switch s {
	case "web":
		return ScanTypeWeb
	case "social":
		return ScanTypeSocial
	case "combined":
		return ScanTypeCombined
	default:
		return "" // represents unspecified
	}
}
