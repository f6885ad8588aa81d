package query

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"imaging-archive-service/internal/dicom"
	apperrors "imaging-archive-service/internal/errors"
)

// LevelQuery composes and assembles the query of one hierarchy level.
type LevelQuery interface {
	Level() Level
	// project returns the ordered output columns; scanTargets must match it.
	project() []string
	from(db *gorm.DB) *gorm.DB
	addJoins(db *gorm.DB, qc *QueryContext) *gorm.DB
	addPredicates(db *gorm.DB, qc *QueryContext) *gorm.DB
	orderBy() string
	scanTargets(row *Row) []interface{}
	// assemble returns nil attributes for a row that must not be yielded.
	assemble(a *rowAssembler, row *Row) (*dicom.Attributes, error)
}

func newLevelQuery(level Level) (LevelQuery, error) {
	switch level {
	case LevelPatient:
		return patientQuery{}, nil
	case LevelStudy:
		return studyQuery{}, nil
	case LevelSeries:
		return seriesQuery{}, nil
	case LevelImage:
		return instanceQuery{}, nil
	}
	return nil, apperrors.NewValidationError("QueryRetrieveLevel", "unsupported level %q", level)
}

// Executor runs a composed level query against the store.
type Executor interface {
	Execute(ctx context.Context, lq LevelQuery, qc *QueryContext) (Cursor, error)
}

// GormExecutor executes level queries through gorm.
type GormExecutor struct {
	db *gorm.DB
}

// NewGormExecutor creates an executor on db.
func NewGormExecutor(db *gorm.DB) *GormExecutor {
	return &GormExecutor{db: db}
}

// Execute composes the query and opens a cursor over its rows.
func (e *GormExecutor) Execute(ctx context.Context, lq LevelQuery, qc *QueryContext) (Cursor, error) {
	rows, err := compose(e.db.WithContext(ctx), lq, qc).Rows()
	if err != nil {
		return nil, apperrors.NewStoreFailure(fmt.Sprintf("%s query", strings.ToLower(string(lq.Level()))), err)
	}
	return rows, nil
}

// compose builds the statement of lq.
func compose(db *gorm.DB, lq LevelQuery, qc *QueryContext) *gorm.DB {
	tx := lq.from(db).Select(strings.Join(lq.project(), ", "))
	tx = lq.addJoins(tx, qc)
	tx = lq.addPredicates(tx, qc)
	return tx.Order(lq.orderBy())
}

// joinPatientIdentifiers joins patient_ids and issuers only when the query
// filters on patient identifiers.
func joinPatientIdentifiers(db *gorm.DB, qc *QueryContext) *gorm.DB {
	if len(qc.patientIDs) == 0 {
		return db
	}
	return db.
		Joins("JOIN patient_ids ON patient_ids.id = patients.patient_identifier_id").
		Joins("LEFT JOIN issuers ON issuers.id = patient_ids.issuer_id")
}

// wherePatientIDs matches any of the identifiers. A stored identifier without
// issuer, or with an issuer that does not conflict, is compatible.
func wherePatientIDs(db *gorm.DB, qc *QueryContext) *gorm.DB {
	if len(qc.patientIDs) == 0 {
		return db
	}
	var clauses []string
	var args []interface{}
	for _, pid := range qc.patientIDs {
		clause := "patient_ids.pat_id = ?"
		args = append(args, pid.ID)
		if issuer := pid.Issuer; !issuer.IsEmpty() {
			var conds []string
			if issuer.LocalNamespaceEntityID != "" {
				conds = append(conds, "(issuers.entity_id IS NULL OR issuers.entity_id = '' OR issuers.entity_id = ?)")
				args = append(args, issuer.LocalNamespaceEntityID)
			}
			if issuer.UniversalEntityID != "" {
				uid := "issuers.entity_uid = ?"
				args = append(args, issuer.UniversalEntityID)
				if issuer.UniversalEntityIDType != "" {
					uid += " AND (issuers.entity_uid_type IS NULL OR issuers.entity_uid_type = '' OR issuers.entity_uid_type = ?)"
					args = append(args, issuer.UniversalEntityIDType)
				}
				conds = append(conds, "(issuers.entity_uid IS NULL OR issuers.entity_uid = '' OR ("+uid+"))")
			}
			clause += " AND (patient_ids.issuer_id IS NULL OR (" + strings.Join(conds, " AND ") + "))"
		}
		clauses = append(clauses, "("+clause+")")
	}
	return db.Where("("+strings.Join(clauses, " OR ")+")", args...)
}

// whereKeys adds the predicates of all active keys owned by level. Keys of one
// level are AND-ed; values of one key are OR-ed.
func whereKeys(db *gorm.DB, level Level, qc *QueryContext) *gorm.DB {
	combined := level == LevelStudy && combinedDatetime(qc)
	if combined {
		db = whereCombinedDatetime(db, qc)
	}
	for _, key := range qc.keys {
		def, ok := keyDefs[key.Tag]
		if !ok || def.level != level || key.IsUniversal() {
			continue
		}
		if combined && (key.Tag == dicom.TagStudyDate || key.Tag == dicom.TagStudyTime) {
			continue
		}
		if def.kind == keyModalitiesInStudy {
			sql, args := keyPredicate("ms.modality", key)
			db = db.Where("EXISTS (SELECT 1 FROM series ms WHERE ms.study_id = studies.id AND ("+sql+"))", args...)
			continue
		}
		if key.Type == MatchFuzzy && def.familyFuzzy != "" {
			db = whereFuzzyName(db, def, key, qc.fuzzy)
			continue
		}
		sql, args := keyPredicate(def.column, key)
		db = db.Where(sql, args...)
	}
	return db
}

func keyPredicate(column string, key MatchingKey) (string, []interface{}) {
	switch key.Type {
	case MatchRange:
		lower, upper, _ := parseRange(key.Values[0])
		switch {
		case lower == upper:
			return column + " = ?", []interface{}{lower}
		case lower == "":
			return column + " <= ?", []interface{}{upper}
		case upper == "":
			return column + " >= ?", []interface{}{lower}
		default:
			return column + " BETWEEN ? AND ?", []interface{}{lower, upper}
		}
	case MatchWildcard:
		var parts []string
		var args []interface{}
		for _, v := range key.Values {
			if strings.ContainsAny(v, "*?") {
				parts = append(parts, column+" LIKE ? ESCAPE '!'")
				args = append(args, likePattern(v))
			} else {
				parts = append(parts, column+" = ?")
				args = append(args, v)
			}
		}
		return "(" + strings.Join(parts, " OR ") + ")", args
	default:
		if len(key.Values) == 1 {
			return column + " = ?", []interface{}{key.Values[0]}
		}
		return column + " IN ?", []interface{}{key.Values}
	}
}

// likePattern translates DICOM wildcards to SQL LIKE with '!' as escape.
func likePattern(v string) string {
	var b strings.Builder
	for _, r := range v {
		switch r {
		case '!', '%', '_':
			b.WriteRune('!')
			b.WriteRune(r)
		case '*':
			b.WriteRune('%')
		case '?':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func whereFuzzyName(db *gorm.DB, def keyDef, key MatchingKey, f dicom.FuzzyStr) *gorm.DB {
	alphabetic, _, _ := strings.Cut(key.Values[0], "=")
	parts := strings.Split(alphabetic, "^")
	if code := f.ToFuzzy(parts[0]); code != "" {
		db = db.Where(def.familyFuzzy+" = ?", code)
	}
	if len(parts) > 1 {
		if code := f.ToFuzzy(parts[1]); code != "" {
			db = db.Where(def.givenFuzzy+" = ?", code)
		}
	}
	return db
}

func combinedDatetime(qc *QueryContext) bool {
	if !qc.param.CombinedDatetimeMatching {
		return false
	}
	date, ok1 := qc.key(dicom.TagStudyDate)
	tm, ok2 := qc.key(dicom.TagStudyTime)
	return ok1 && ok2 && date.Type == MatchRange && tm.Type == MatchRange
}

// whereCombinedDatetime treats StudyDate and StudyTime as one timestamp range.
func whereCombinedDatetime(db *gorm.DB, qc *QueryContext) *gorm.DB {
	date, _ := qc.key(dicom.TagStudyDate)
	tm, _ := qc.key(dicom.TagStudyTime)
	d1, d2, _ := parseRange(date.Values[0])
	t1, t2, _ := parseRange(tm.Values[0])
	if d1 != "" {
		if t1 == "" {
			db = db.Where("studies.study_date >= ?", d1)
		} else {
			db = db.Where("(studies.study_date > ? OR (studies.study_date = ? AND studies.study_time >= ?))", d1, d1, t1)
		}
	}
	if d2 != "" {
		if t2 == "" {
			db = db.Where("studies.study_date <= ?", d2)
		} else {
			db = db.Where("(studies.study_date < ? OR (studies.study_date = ? AND studies.study_time <= ?))", d2, d2, t2)
		}
	}
	return db
}

// whereVisibility filters instances by rejection state.
func whereVisibility(db *gorm.DB, param *QueryParam) *gorm.DB {
	switch {
	case param.HideRejectedInstances:
		return db.Where("instances.rejection_code = ''")
	case param.HideNotRejectedInstances:
		return db.Where("instances.rejection_code <> ''")
	}
	return db
}
