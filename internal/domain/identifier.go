package domain

import "fmt"

// IdentifierType enumerates every authorization identifier kind across both
// protocol versions. 1.6 only ever produces IdTag; the rest are 2.0.1 token
// types plus Certificate for ISO 15118 contract certificates.
type IdentifierType string

const (
	IdentifierIdTag           IdentifierType = "IdTag"
	IdentifierCentral         IdentifierType = "Central"
	IdentifierLocal           IdentifierType = "Local"
	IdentifierEMAID           IdentifierType = "eMAID"
	IdentifierISO14443        IdentifierType = "ISO14443"
	IdentifierISO15693        IdentifierType = "ISO15693"
	IdentifierKeyCode         IdentifierType = "KeyCode"
	IdentifierMacAddress      IdentifierType = "MacAddress"
	IdentifierCertificate     IdentifierType = "Certificate"
	IdentifierNoAuthorization IdentifierType = "NoAuthorization"
	IdentifierMobileApp       IdentifierType = "MobileApp"
	IdentifierBiometric       IdentifierType = "Biometric"
)

// Length bounds per the wire formats.
const (
	MaxIdTagLength = 20
	MaxTokenLength = 36
)

// CertificateHashData fingerprints a certificate-based identifier.
type CertificateHashData struct {
	HashAlgorithm  string `json:"hashAlgorithm"`
	IssuerNameHash string `json:"issuerNameHash"`
	IssuerKeyHash  string `json:"issuerKeyHash"`
	SerialNumber   string `json:"serialNumber"`
}

// Identifier is the version-agnostic authorization identifier used by the
// authentication pipeline. Per-version adapters convert to and from the wire
// representation.
type Identifier struct {
	Type                IdentifierType        `json:"type"`
	Value               string                `json:"value"`
	OcppVersion         string                `json:"ocppVersion"`
	AdditionalInfo      map[string]string     `json:"additionalInfo,omitempty"`
	CertificateHashData []CertificateHashData `json:"certificateHashData,omitempty"`
}

// Validate enforces the per-version length bounds.
func (i Identifier) Validate() error {
	if i.Value == "" && i.Type != IdentifierNoAuthorization {
		return fmt.Errorf("identifier value is empty")
	}
	if i.Type == IdentifierIdTag && len(i.Value) > MaxIdTagLength {
		return fmt.Errorf("idTag exceeds %d chars", MaxIdTagLength)
	}
	if len(i.Value) > MaxTokenLength {
		return fmt.Errorf("token value exceeds %d chars", MaxTokenLength)
	}
	return nil
}

// AuthorizationStatus is the unified verdict taxonomy.
type AuthorizationStatus string

const (
	AuthAccepted     AuthorizationStatus = "Accepted"
	AuthBlocked      AuthorizationStatus = "Blocked"
	AuthExpired      AuthorizationStatus = "Expired"
	AuthInvalid      AuthorizationStatus = "Invalid"
	AuthConcurrentTx AuthorizationStatus = "ConcurrentTx"
	AuthUnknown      AuthorizationStatus = "Unknown"
)

// AuthorizationMethod names the strategy that produced a verdict.
type AuthorizationMethod string

const (
	MethodLocalList       AuthorizationMethod = "LocalList"
	MethodCache           AuthorizationMethod = "Cache"
	MethodRemote          AuthorizationMethod = "Remote"
	MethodCertificate     AuthorizationMethod = "Certificate"
	MethodOfflineFallback AuthorizationMethod = "OfflineFallback"
)

// AuthorizationContext tells strategies whether the check guards a
// transaction start or stop.
type AuthorizationContext string

const (
	ContextTransactionStart AuthorizationContext = "TransactionStart"
	ContextTransactionStop  AuthorizationContext = "TransactionStop"
)

// AuthorizationResult is a verdict plus the method that produced it.
type AuthorizationResult struct {
	Status AuthorizationStatus
	Method AuthorizationMethod
}
