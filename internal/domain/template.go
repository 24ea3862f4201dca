package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// SupervisionURLDistribution selects how a station picks among multiple
// supervision URLs.
type SupervisionURLDistribution string

const (
	DistributionRoundRobin SupervisionURLDistribution = "round-robin"
	DistributionRandom     SupervisionURLDistribution = "random"
	DistributionAffinity   SupervisionURLDistribution = "affinity"
)

// ATGOptions configures the automatic transaction generator.
type ATGOptions struct {
	Enable                           bool    `json:"enable"`
	MinDuration                      float64 `json:"minDuration"`
	MaxDuration                      float64 `json:"maxDuration"`
	MinDelayBetweenTwoTransactions   float64 `json:"minDelayBetweenTwoTransactions"`
	MaxDelayBetweenTwoTransactions   float64 `json:"maxDelayBetweenTwoTransactions"`
	ProbabilityOfStart               float64 `json:"probabilityOfStart"`
	StopAfterHours                   float64 `json:"stopAfterHours"`
	// nil means authorize before starting, matching stations in the field.
	RequireAuthorize *bool `json:"requireAuthorize,omitempty"`
}

// Authorizes reports whether the generator runs the authorization pipeline
// before a start; omitted means yes.
func (o ATGOptions) Authorizes() bool {
	return o.RequireAuthorize == nil || *o.RequireAuthorize
}

// ConnectorOptions is the per-connector sampled-value template.
type ConnectorOptions struct {
	MeterValueSampleInterval int      `json:"meterValueSampleInterval,omitempty"`
	Measurands               []string `json:"measurands,omitempty"`
	MaxAmperage              float64  `json:"maxAmperage,omitempty"`
}

// SeedConfigurationKey is a configuration key seeded from the template.
type SeedConfigurationKey struct {
	Key            string `json:"key"`
	Value          string `json:"value"`
	Readonly       bool   `json:"readonly,omitempty"`
	Visible        *bool  `json:"visible,omitempty"`
	RebootRequired bool   `json:"rebootRequired,omitempty"`
}

// TemplateConfiguration is the seeded configuration section.
type TemplateConfiguration struct {
	ConfigurationKey []SeedConfigurationKey `json:"configurationKey,omitempty"`
}

// Template describes one station family; a concrete station is a template
// plus an index.
type Template struct {
	BaseName                 string                       `json:"baseName"`
	SupervisionUrls          []string                     `json:"supervisionUrls"`
	SupervisionUrlDistribution SupervisionURLDistribution `json:"supervisionUrlDistribution,omitempty"`
	OcppVersion              string                       `json:"ocppVersion"`
	ChargePointVendor        string                       `json:"chargePointVendor"`
	ChargePointModel         string                       `json:"chargePointModel"`
	ChargePointSerialNumber  string                       `json:"chargePointSerialNumber,omitempty"`
	FirmwareVersion          string                       `json:"firmwareVersion"`
	NumberOfConnectors       int                          `json:"numberOfConnectors"`
	Connectors               map[string]ConnectorOptions  `json:"Connectors,omitempty"`
	RandomConnectors         bool                         `json:"randomConnectors,omitempty"`
	AutomaticTransactionGenerator *ATGOptions             `json:"AutomaticTransactionGenerator,omitempty"`
	Configuration            *TemplateConfiguration       `json:"Configuration,omitempty"`
	IdTagsFile               string                       `json:"idTagsFile,omitempty"`
	AmperageLimitationOcppKey string                      `json:"amperageLimitationOcppKey,omitempty"`
	AmperageLimitationUnit   string                       `json:"amperageLimitationUnit,omitempty"`
	Power                    float64                      `json:"power"`
	PowerUnit                string                       `json:"powerUnit,omitempty"`
	VoltageOut               float64                      `json:"voltageOut,omitempty"`
	// Open upstream behavior exposed as configuration; see DESIGN.md.
	StopMeterValuesOnInoperative *bool `json:"stopMeterValuesOnInoperative,omitempty"`
}

// LoadTemplate reads and validates a station template file.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}
	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse template %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("template %s: %w", path, err)
	}
	return &t, nil
}

// Validate checks the fields every station needs.
func (t *Template) Validate() error {
	if t.BaseName == "" {
		return fmt.Errorf("baseName is required")
	}
	if len(t.SupervisionUrls) == 0 {
		return fmt.Errorf("supervisionUrls is required")
	}
	switch t.OcppVersion {
	case "1.6", "2.0.1":
	default:
		return fmt.Errorf("unsupported ocppVersion %q", t.OcppVersion)
	}
	if t.NumberOfConnectors < 1 {
		return fmt.Errorf("numberOfConnectors must be at least 1")
	}
	if atg := t.AutomaticTransactionGenerator; atg != nil && atg.Enable {
		if atg.ProbabilityOfStart < 0 || atg.ProbabilityOfStart > 1 {
			return fmt.Errorf("probabilityOfStart must be within [0,1]")
		}
		if atg.MaxDuration < atg.MinDuration {
			return fmt.Errorf("maxDuration must not be below minDuration")
		}
		if atg.MaxDelayBetweenTwoTransactions < atg.MinDelayBetweenTwoTransactions {
			return fmt.Errorf("maxDelayBetweenTwoTransactions must not be below minDelayBetweenTwoTransactions")
		}
	}
	return nil
}

// StationName derives the human id for one station instance.
func (t *Template) StationName(index int) string {
	return fmt.Sprintf("%s-%05d", t.BaseName, index)
}

// HashID derives the stable station hash id from template identity + index.
func (t *Template) HashID(index int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d", t.BaseName, t.ChargePointVendor, t.ChargePointModel, index)))
	return hex.EncodeToString(h[:])[:16]
}

// SupervisionURL picks the URL for the given station index.
func (t *Template) SupervisionURL(index int, randomPick func(n int) int) string {
	urls := t.SupervisionUrls
	switch t.SupervisionUrlDistribution {
	case DistributionRandom:
		return urls[randomPick(len(urls))]
	case DistributionAffinity:
		return urls[index%len(urls)]
	default: // round-robin
		return urls[index%len(urls)]
	}
}

// LoadIdTags reads the id-tag file referenced by the template: a JSON array
// of tag strings.
func LoadIdTags(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read id tags %s: %w", path, err)
	}
	var tags []string
	if err := json.Unmarshal(data, &tags); err != nil {
		return nil, fmt.Errorf("parse id tags %s: %w", path, err)
	}
	if len(tags) == 0 {
		return nil, fmt.Errorf("id tags file %s is empty", path)
	}
	return tags, nil
}
