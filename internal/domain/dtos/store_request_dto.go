package dtos

// StoreRequest carries the location of the objects stored in one session.
type StoreRequest struct {
	RetrieveAETs []string `json:"retrieve_aets" validate:"dive,required,max=16"`
	Availability string   `json:"availability" validate:"omitempty,oneof=ONLINE NEARLINE OFFLINE UNAVAILABLE"`
}

// StoreResult reports where an instance was filed.
type StoreResult struct {
	PatientID      string `json:"patient_id"`
	PatientCreated bool   `json:"patient_created"`
	StudyIUID      string `json:"study_iuid"`
	SeriesIUID     string `json:"series_iuid"`
	SOPIUID        string `json:"sop_iuid"`
}
