package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"imaging-archive-service/internal/dicom"
	"imaging-archive-service/internal/domain/entities"
	"imaging-archive-service/internal/domain/repositories"
	apperrors "imaging-archive-service/internal/errors"
)

// PatientServiceImpl implements PatientServiceContract.
type PatientServiceImpl struct {
	patientRepo repositories.PatientRepositoryContract
	issuerRepo  repositories.IssuerRepositoryContract
	codec       dicom.Codec
	filter      *dicom.AttributeFilter
	fuzzy       dicom.FuzzyStr
	logger      logrus.FieldLogger
}

// NewPatientService creates a new instance of PatientServiceImpl. filter
// selects the attributes stored with a patient and fuzzy derives the phonetic
// name codes.
func NewPatientService(
	patientRepo repositories.PatientRepositoryContract,
	issuerRepo repositories.IssuerRepositoryContract,
	codec dicom.Codec,
	filter *dicom.AttributeFilter,
	fuzzy dicom.FuzzyStr,
	logger logrus.FieldLogger,
) PatientServiceContract {
	if logger == nil {
		logger = logrus.New()
	}
	if fuzzy == nil {
		fuzzy = dicom.Soundex{}
	}
	return &PatientServiceImpl{
		patientRepo: patientRepo,
		issuerRepo:  issuerRepo,
		codec:       codec,
		filter:      filter,
		fuzzy:       fuzzy,
		logger:      logger,
	}
}

func (s *PatientServiceImpl) FindPatient(ctx context.Context, attrs *dicom.Attributes) (*entities.Patient, error) {
	pid := dicom.PatientIDOf(attrs)
	if pid == nil {
		patientResolutions.WithLabelValues("indeterminate").Inc()
		return nil, apperrors.ErrIdentityIndeterminate
	}
	ctx, span := otel.Tracer("archive").Start(ctx, "services.PatientService.FindPatient",
		trace.WithAttributes(attribute.String("patient_id", pid.String())))
	defer span.End()

	candidates, err := s.patientRepo.FindByPatientID(ctx, pid.ID)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("find patient %s: %w", pid, err))
	}
	if pid.Issuer != nil {
		candidates = removeConflictingIssuer(candidates, pid.Issuer)
	}

	logger := s.logger.WithField("patient_id", pid.String())
	switch len(candidates) {
	case 0:
		patientResolutions.WithLabelValues("none").Inc()
		logger.Debug("no matching patient")
		return nil, nil
	case 1:
		patientResolutions.WithLabelValues("unique").Inc()
		return candidates[0], nil
	}

	if pid.Issuer != nil {
		if withIssuer := removeWithoutIssuer(candidates); len(withIssuer) == 1 {
			patientResolutions.WithLabelValues("narrowed").Inc()
			logger.Debug("ambiguous patient id narrowed to the candidate with issuer")
			return withIssuer[0], nil
		}
	}
	patientResolutions.WithLabelValues("ambiguous").Inc()
	err = apperrors.NewAmbiguousPatientError(pid.String(), len(candidates))
	logger.WithError(err).Warn("patient identity is ambiguous")
	return nil, spanError(span, err)
}

func (s *PatientServiceImpl) CreatePatient(ctx context.Context, attrs *dicom.Attributes) (*entities.Patient, error) {
	ctx, span := otel.Tracer("archive").Start(ctx, "services.PatientService.CreatePatient")
	defer span.End()

	filtered := attrs.Filter(s.filter)
	blob, err := s.codec.Encode(filtered)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("encode patient attributes: %w", err))
	}
	name := filtered.GetString(dicom.TagPatientName)
	family, given := dicom.PersonNameFuzzy(name, s.fuzzy)
	patient := &entities.Patient{
		PatientName:       name,
		PatientNameFamily: family,
		PatientNameGiven:  given,
		PatientBirthDate:  filtered.GetString(dicom.TagPatientBirthDate),
		PatientSex:        filtered.GetString(dicom.TagPatientSex),
		EncodedAttributes: blob,
		Attributes:        filtered,
	}

	if pid := dicom.PatientIDOf(attrs); pid != nil {
		identifier := &entities.PatientIdentifier{PatID: pid.ID}
		if !pid.Issuer.IsEmpty() {
			issuer, err := s.issuerRepo.FindOrCreate(ctx, pid.Issuer)
			if err != nil {
				return nil, spanError(span, fmt.Errorf("register issuer %s: %w", pid.Issuer, err))
			}
			identifier.Issuer = issuer
		}
		patient.PatientIdentifier = identifier
	}

	if err := s.patientRepo.Create(ctx, patient); err != nil {
		return nil, spanError(span, fmt.Errorf("create patient: %w", err))
	}
	patientResolutions.WithLabelValues("created").Inc()
	s.logger.WithFields(logrus.Fields{
		"patient_pk": patient.ID,
		"patient_id": patient.IDWithIssuer().String(),
	}).Info("patient created")
	return patient, nil
}

func (s *PatientServiceImpl) GetPatient(ctx context.Context, id uuid.UUID) (*entities.Patient, error) {
	patient, err := s.patientRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	attrs, err := s.codec.Decode(patient.EncodedAttributes, nil)
	if err != nil {
		return nil, apperrors.NewDecodeError("patient", id, err)
	}
	patient.Attributes = attrs
	return patient, nil
}

// removeConflictingIssuer drops candidates whose stored issuer conflicts with
// issuer. Candidates without a stored issuer are kept.
func removeConflictingIssuer(candidates []*entities.Patient, issuer *dicom.Issuer) []*entities.Patient {
	out := candidates[:0:0]
	for _, p := range candidates {
		if stored := p.Issuer(); stored == nil || stored.Matches(issuer) {
			out = append(out, p)
		}
	}
	return out
}

func removeWithoutIssuer(candidates []*entities.Patient) []*entities.Patient {
	var out []*entities.Patient
	for _, p := range candidates {
		if p.Issuer() != nil {
			out = append(out, p)
		}
	}
	return out
}
