package handlers_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imaging-archive-service/internal/api/handlers"
	"imaging-archive-service/internal/app"
	"imaging-archive-service/internal/config"
	"imaging-archive-service/internal/dicom"
	"imaging-archive-service/internal/domain/dtos"
	apperrors "imaging-archive-service/internal/errors"
)

func newTestArchive(t *testing.T, refresh bool) *app.Archive {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg := config.Default()
	cfg.Database.DSN = "file:" + filepath.Join(t.TempDir(), "archive.db") + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	cfg.Refresh.Enabled = refresh
	a, err := app.New(cfg, logger, time.Minute)
	require.NoError(t, err)
	require.NoError(t, config.Migrate(a.DB))
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

// writePart10 writes attrs as an Explicit VR Little Endian Part 10 file.
func writePart10(t *testing.T, dir, name string, attrs *dicom.Attributes) string {
	t.Helper()
	dataset, err := dicom.NewBinaryCodec().Encode(attrs)
	require.NoError(t, err)

	ts := dicom.ExplicitVRLittleEndian + "\x00"
	buf := make([]byte, 128, 128+4+8+len(ts)+len(dataset))
	buf = append(buf, "DICM"...)
	buf = binary.LittleEndian.AppendUint16(buf, 0x0002)
	buf = binary.LittleEndian.AppendUint16(buf, 0x0010)
	buf = append(buf, "UI"...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(ts)))
	buf = append(buf, ts...)
	buf = append(buf, dataset...)

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf, 0o600))
	return path
}

func instance(pid, name, study, series, sop, modality string) *dicom.Attributes {
	attrs := dicom.NewAttributes(12)
	attrs.SetString(dicom.TagSOPClassUID, dicom.VR_UI, "1.2.840.10008.5.1.4.1.1.2")
	attrs.SetString(dicom.TagSOPInstanceUID, dicom.VR_UI, sop)
	attrs.SetString(dicom.TagStudyDate, dicom.VR_DA, "20240115")
	attrs.SetString(dicom.TagModality, dicom.VR_CS, modality)
	attrs.SetString(dicom.TagPatientName, dicom.VR_PN, name)
	attrs.SetString(dicom.TagPatientID, dicom.VR_LO, pid)
	dicom.SetIssuerOfPatientID(attrs, &dicom.Issuer{LocalNamespaceEntityID: "HOSP"})
	attrs.SetString(dicom.TagStudyInstanceUID, dicom.VR_UI, study)
	attrs.SetString(dicom.TagSeriesInstanceUID, dicom.VR_UI, series)
	return attrs
}

func run(t *testing.T, a *app.Archive, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "archivectl", SilenceUsage: true, SilenceErrors: true}
	handlers.RegisterArchiveCommands(root, func() (*handlers.ArchiveHandler, error) { return a.Handler, nil })
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func lines(s string) []string {
	return strings.Split(strings.TrimSpace(s), "\n")
}

func TestArchiveHandler_StoreQueryResolve(t *testing.T) {
	a := newTestArchive(t, false)
	dir := t.TempDir()
	files := []string{
		writePart10(t, dir, "1.dcm", instance("P1", "SMITH^JOHN", "1.2.3", "1.2.3.1", "1.2.3.1.1", "CT")),
		writePart10(t, dir, "2.dcm", instance("P1", "SMITH^JOHN", "1.2.3", "1.2.3.2", "1.2.3.2.1", "MR")),
		writePart10(t, dir, "3.dcm", instance("P2", "JONES^MARY", "4.5.6", "4.5.6.1", "4.5.6.1.1", "US")),
	}

	out, err := run(t, a, append([]string{"store", "--retrieve-aet", "ARCHIVE", "--availability", "online"}, files...)...)
	require.NoError(t, err)
	stored := lines(out)
	require.Len(t, stored, 3)
	var first dtos.StoreResult
	require.NoError(t, json.Unmarshal([]byte(stored[0]), &first))
	assert.True(t, first.PatientCreated)
	assert.Equal(t, "1.2.3.1.1", first.SOPIUID)

	out, err = run(t, a, "query", "--level", "study", "-k", "PatientName=SMITH*", "-k", "StudyDate=20240101-20241231")
	require.NoError(t, err)
	matches := lines(out)
	require.Len(t, matches, 1)
	var study map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(matches[0]), &study))
	assert.Equal(t, []interface{}{"1.2.3"}, study["0020000D"]["Value"])
	assert.Equal(t, []interface{}{"CT", "MR"}, study["00080061"]["Value"])
	assert.Equal(t, []interface{}{float64(2)}, study["00201208"]["Value"])

	out, err = run(t, a, "query", "--level", "SERIES", "--patient-id", "P2", "--issuer", "HOSP")
	require.NoError(t, err)
	require.Len(t, lines(out), 1)
	assert.Contains(t, out, `"4.5.6.1"`)

	out, err = run(t, a, "resolve", "--patient-id", "P1", "--issuer", "HOSP")
	require.NoError(t, err)
	assert.Contains(t, out, `"Alphabetic":"SMITH^JOHN"`)

	out, err = run(t, a, "resolve", "--patient-id", "P1", "--issuer", "OTHER")
	require.NoError(t, err)
	assert.Equal(t, "no match\n", out)
}

func TestArchiveHandler_StoreReportsFailures(t *testing.T) {
	a := newTestArchive(t, false)
	dir := t.TempDir()
	good := writePart10(t, dir, "good.dcm", instance("P1", "SMITH^JOHN", "1.2.3", "1.2.3.1", "1.2.3.1.1", "CT"))
	notDicom := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notDicom, []byte("hello"), 0o600))

	out, err := run(t, a, "store", good, notDicom, good)
	assert.ErrorContains(t, err, "2 of 3 files not stored")
	assert.Len(t, lines(out), 1, "only the first copy is stored")
}

func TestArchiveHandler_QueryValidation(t *testing.T) {
	a := newTestArchive(t, false)

	_, err := run(t, a, "query", "-k", "PatientName")
	assert.True(t, apperrors.IsValidation(err), "got %v", err)

	_, err = run(t, a, "query", "--issuer", "HOSP")
	assert.True(t, apperrors.IsValidation(err), "got %v", err)

	_, err = run(t, a, "query", "--level", "FRAME")
	assert.True(t, apperrors.IsValidation(err), "got %v", err)
}

func TestArchiveHandler_Reject(t *testing.T) {
	a := newTestArchive(t, false)
	dir := t.TempDir()
	file := writePart10(t, dir, "1.dcm", instance("P1", "SMITH^JOHN", "1.2.3", "1.2.3.1", "1.2.3.1.1", "CT"))
	_, err := run(t, a, "store", file)
	require.NoError(t, err)

	_, err = run(t, a, "reject", "1.2.3.1.1")
	require.NoError(t, err)

	_, err = run(t, a, "reject", "9.9.9")
	assert.True(t, apperrors.IsNotFound(err), "got %v", err)
}

func TestArchiveHandler_StoreWithRefresher(t *testing.T) {
	a := newTestArchive(t, true)
	dir := t.TempDir()
	var files []string
	for _, sop := range []string{"1.2.3.1.1", "1.2.3.1.2", "1.2.3.1.3"} {
		files = append(files, writePart10(t, dir, sop+".dcm", instance("P1", "SMITH^JOHN", "1.2.3", "1.2.3.1", sop, "CT")))
	}
	out, err := run(t, a, append([]string{"store"}, files...)...)
	require.NoError(t, err)
	assert.Len(t, lines(out), 3)

	// the job queued by the last store converges the aggregates
	require.Eventually(t, func() bool {
		out, err := run(t, a, "query", "-k", "StudyInstanceUID=1.2.3")
		return err == nil && strings.Contains(out, `"00201208":{"vr":"IS","Value":[3]}`)
	}, 5*time.Second, 50*time.Millisecond)
}
