package metadata

import "time"

// Record is the identity metadata stored for one slot.
type Record struct {
	// IdentityKey is the external identity key (the RG fragment without leading zeros).
	IdentityKey string `json:"identity_key"`
	// TaxID is the formatted CPF fragment, e.g. "123.456.789-01".
	TaxID       string `json:"tax_id"`
	DisplayName string `json:"display_name"`
	// OriginCode is the three digit source code from the artifact name.
	OriginCode string `json:"origin_code"`
	// Origin is the label the code maps to, or "unknown".
	Origin string `json:"origin"`
	// Filename is the unique stored filename.
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename"`
	ArtifactPath     string    `json:"artifact_path,omitempty"`
	IngestedAt       time.Time `json:"ingested_at"`
}
