package dtos

// QueryRequest describes one hierarchical query. Keys map an attribute keyword
// or hex tag to a matching value in C-FIND notation.
type QueryRequest struct {
	Level      string             `json:"level" validate:"required"`
	Keys       map[string]string  `json:"keys"`
	PatientIDs []PatientIDRequest `json:"patient_ids" validate:"dive"`

	// Optional overrides of the configured matching parameters.
	FuzzySemanticMatching    *bool `json:"fuzzy_semantic_matching,omitempty"`
	CombinedDatetimeMatching *bool `json:"combined_datetime_matching,omitempty"`
}

// PatientIDRequest is a Patient ID with its issuer in "local&uid&type" form.
type PatientIDRequest struct {
	ID     string `json:"id" validate:"required,max=64"`
	Issuer string `json:"issuer,omitempty"`
}
