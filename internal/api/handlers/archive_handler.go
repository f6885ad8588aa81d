package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"imaging-archive-service/internal/dicom"
	"imaging-archive-service/internal/dicom/mappers"
	"imaging-archive-service/internal/domain/dtos"
	apperrors "imaging-archive-service/internal/errors"
	"imaging-archive-service/internal/services"
)

// ArchiveHandler serves the archive commands over the service layer.
type ArchiveHandler struct {
	storeService   services.StoreServiceContract
	queryService   services.QueryServiceContract
	patientService services.PatientServiceContract
	codec          dicom.Codec
	timeout        time.Duration
	logger         logrus.FieldLogger
}

func NewArchiveHandler(
	storeService services.StoreServiceContract,
	queryService services.QueryServiceContract,
	patientService services.PatientServiceContract,
	codec dicom.Codec,
	timeout time.Duration,
	logger logrus.FieldLogger,
) *ArchiveHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &ArchiveHandler{
		storeService:   storeService,
		queryService:   queryService,
		patientService: patientService,
		codec:          codec,
		timeout:        timeout,
		logger:         logger,
	}
}

func (h *ArchiveHandler) commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if h.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.timeout)
}

// Store ingests Part 10 files. Every file is attempted; the command fails if
// any of them was not stored.
func (h *ArchiveHandler) Store(cmd *cobra.Command, args []string) error {
	aets, _ := cmd.Flags().GetStringSlice("retrieve-aet")
	availability, _ := cmd.Flags().GetString("availability")
	session, err := services.NewStoreSession(dtos.StoreRequest{RetrieveAETs: aets, Availability: strings.ToUpper(availability)})
	if err != nil {
		return err
	}

	ctx, cancel := h.commandContext(cmd)
	defer cancel()

	out := json.NewEncoder(cmd.OutOrStdout())
	failed := 0
	for _, path := range args {
		result, err := h.storeFile(ctx, session, path)
		if err != nil {
			failed++
			entry := h.logger.WithError(err).WithField("file", path)
			var dup *apperrors.DuplicateInstanceError
			if errors.As(err, &dup) {
				entry.Warn("instance already stored")
			} else {
				entry.Error("store failed")
			}
			continue
		}
		if err := out.Encode(result); err != nil {
			return fmt.Errorf("write store result: %w", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files not stored", failed, len(args))
	}
	return nil
}

func (h *ArchiveHandler) storeFile(ctx context.Context, session *services.StoreSession, path string) (*dtos.StoreResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	dataset, tsuid, err := dicom.StripPart10Header(data)
	if err != nil {
		return nil, err
	}
	if tsuid != "" && tsuid != dicom.ExplicitVRLittleEndian {
		return nil, fmt.Errorf("unsupported transfer syntax %s", tsuid)
	}
	attrs, err := h.codec.Decode(dataset, nil)
	if err != nil {
		return nil, apperrors.NewDecodeError("file", path, err)
	}
	return h.storeService.Store(ctx, session, attrs)
}

// Query streams the matches as DICOM JSON, one object per line.
func (h *ArchiveHandler) Query(cmd *cobra.Command, args []string) error {
	request, err := queryRequestFromFlags(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := h.commandContext(cmd)
	defer cancel()

	results, err := h.queryService.Query(ctx, request)
	if err != nil {
		return err
	}
	defer results.Close()

	out := cmd.OutOrStdout()
	matches := 0
	for results.Next() {
		raw, err := mappers.MapAttributesToDicomJSON(results.Attributes())
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(out, "%s\n", raw); err != nil {
			return fmt.Errorf("write match: %w", err)
		}
		matches++
	}
	if err := results.Err(); err != nil {
		return err
	}

	for _, skipped := range results.Skipped() {
		h.logger.WithError(skipped).Warn("match skipped")
	}
	if tags := results.OptionalKeysNotSupported(); len(tags) > 0 {
		names := make([]string, len(tags))
		for i, tag := range tags {
			names[i] = tag.Keyword()
		}
		h.logger.WithField("keys", strings.Join(names, ",")).Warn("optional keys not supported")
	}
	h.logger.WithFields(logrus.Fields{"level": request.Level, "matches": matches}).Info("query completed")
	return nil
}

func queryRequestFromFlags(cmd *cobra.Command) (dtos.QueryRequest, error) {
	flags := cmd.Flags()
	level, _ := flags.GetString("level")
	keys, _ := flags.GetStringArray("key")
	pid, _ := flags.GetString("patient-id")
	issuer, _ := flags.GetString("issuer")

	request := dtos.QueryRequest{Level: level, Keys: make(map[string]string, len(keys))}
	for _, kv := range keys {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return request, apperrors.NewValidationError("key", "%q is not KEY=VALUE", kv)
		}
		request.Keys[name] = value
	}
	if pid != "" {
		request.PatientIDs = []dtos.PatientIDRequest{{ID: pid, Issuer: issuer}}
	} else if issuer != "" {
		return request, apperrors.NewValidationError("issuer", "requires --patient-id")
	}
	if flags.Changed("fuzzy") {
		fuzzy, _ := flags.GetBool("fuzzy")
		request.FuzzySemanticMatching = &fuzzy
	}
	if flags.Changed("combined-datetime") {
		combined, _ := flags.GetBool("combined-datetime")
		request.CombinedDatetimeMatching = &combined
	}
	return request, nil
}

// Resolve prints the patient a Patient ID resolves to.
func (h *ArchiveHandler) Resolve(cmd *cobra.Command, args []string) error {
	pid, _ := cmd.Flags().GetString("patient-id")
	issuer, _ := cmd.Flags().GetString("issuer")
	attrs := dicom.NewAttributes(3)
	if pid != "" {
		attrs.SetString(dicom.TagPatientID, dicom.VR_LO, pid)
	}
	dicom.SetIssuerOfPatientID(attrs, dicom.ParseIssuer(issuer))

	ctx, cancel := h.commandContext(cmd)
	defer cancel()

	found, err := h.patientService.FindPatient(ctx, attrs)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if found == nil {
		_, err := fmt.Fprintln(out, "no match")
		return err
	}
	patient, err := h.patientService.GetPatient(ctx, found.ID)
	if err != nil {
		return err
	}
	raw, err := mappers.MapAttributesToDicomJSON(patient.Attributes)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s\n", raw)
	return err
}

// Reject marks instances rejected with the given code, or clears the
// rejection when the code is empty.
func (h *ArchiveHandler) Reject(cmd *cobra.Command, args []string) error {
	code, _ := cmd.Flags().GetString("code")

	ctx, cancel := h.commandContext(cmd)
	defer cancel()

	for _, uid := range args {
		if err := h.storeService.Reject(ctx, uid, code); err != nil {
			return fmt.Errorf("reject %s: %w", uid, err)
		}
	}
	return nil
}

// RegisterArchiveCommands adds the archive commands to root.
func RegisterArchiveCommands(root *cobra.Command, ah func() (*ArchiveHandler, error)) {
	withHandler := func(run func(*ArchiveHandler, *cobra.Command, []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			h, err := ah()
			if err != nil {
				return err
			}
			return run(h, cmd, args)
		}
	}

	storeCmd := &cobra.Command{
		Use:   "store FILE...",
		Short: "Store DICOM Part 10 files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  withHandler((*ArchiveHandler).Store),
	}
	storeCmd.Flags().StringSlice("retrieve-aet", []string{"ARCHIVE"}, "AE titles the instances are retrievable from")
	storeCmd.Flags().String("availability", "ONLINE", "instance availability")

	queryCmd := &cobra.Command{
		Use:   "query",
		Short: "Run a hierarchical query and print DICOM JSON",
		Args:  cobra.NoArgs,
		RunE:  withHandler((*ArchiveHandler).Query),
	}
	queryCmd.Flags().String("level", "STUDY", "query level: PATIENT, STUDY, SERIES or IMAGE")
	queryCmd.Flags().StringArrayP("key", "k", nil, "matching key as KEY=VALUE, repeatable")
	queryCmd.Flags().String("patient-id", "", "restrict to a Patient ID")
	queryCmd.Flags().String("issuer", "", "issuer of the Patient ID as local&uid&type")
	queryCmd.Flags().Bool("fuzzy", false, "fuzzy semantic matching of person names")
	queryCmd.Flags().Bool("combined-datetime", false, "combined date and time range matching")

	resolveCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a Patient ID to a stored patient",
		Args:  cobra.NoArgs,
		RunE:  withHandler((*ArchiveHandler).Resolve),
	}
	resolveCmd.Flags().String("patient-id", "", "Patient ID")
	resolveCmd.Flags().String("issuer", "", "issuer of the Patient ID as local&uid&type")

	rejectCmd := &cobra.Command{
		Use:   "reject SOP_INSTANCE_UID...",
		Short: "Reject stored instances",
		Args:  cobra.MinimumNArgs(1),
		RunE:  withHandler((*ArchiveHandler).Reject),
	}
	rejectCmd.Flags().String("code", "113001", "rejection code, empty to restore")

	root.AddCommand(storeCmd, queryCmd, resolveCmd, rejectCmd)
}
