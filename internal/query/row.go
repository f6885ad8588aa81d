package query

import (
	"database/sql"

	"github.com/google/uuid"
)

// Row receives the projected columns of one result row. Each level fills the
// subset it projects.
type Row struct {
	PatientPK    uuid.UUID
	PatientAttrs []byte
	NumStudies   sql.NullInt64

	StudyPK           uuid.UUID
	StudyAttrs        []byte
	StudyNumInstances sql.NullInt64
	StudyNumSeries    sql.NullInt64
	StudyModalities   sql.NullString
	StudySOPClasses   sql.NullString
	StudyRetrieveAETs sql.NullString
	StudyAvailability sql.NullString

	SeriesPK           uuid.UUID
	SeriesAttrs        []byte
	SeriesNumInstances sql.NullInt64
	SeriesRetrieveAETs sql.NullString
	SeriesAvailability sql.NullString

	InstancePK           uuid.UUID
	InstanceAttrs        []byte
	InstanceRetrieveAETs sql.NullString
	InstanceAvailability sql.NullString
}

// Cursor is a forward-only result set. *sql.Rows satisfies it.
type Cursor interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
	Close() error
}
