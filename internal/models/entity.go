// -----------------------------------------------------------------------
// Entity - one business unit (CNPJ) whose DARF guide must be retrieved
// -----------------------------------------------------------------------

package models

import (
	"strings"
)

// TaxID is the normalized tax identifier of an entity (CNPJ).
// It is always kept in string form so leading zeros and punctuation survive.
type TaxID string

// NormalizeTaxID trims a raw cell value. NaN and blank cells become the empty id.
func NormalizeTaxID(raw string) TaxID {
	return TaxID(NormalizeCell(raw))
}

// String returns the identifier as written in the workbook
func (t TaxID) String() string {
	return string(t)
}

// NormalizeCell trims a loosely typed tabular value and maps NaN/None/blank to "".
func NormalizeCell(raw string) string {
	v := strings.TrimSpace(raw)
	switch strings.ToLower(v) {
	case "nan", "none", "null", "<nil>":
		return ""
	}
	return v
}

// Status is the processing label persisted in the STATUS column.
// Values reuse the workbook vocabulary so existing spreadsheets keep working.
type Status string

const (
	StatusPending         Status = ""
	StatusCompleted       Status = "Guia baixada"
	StatusNotFound        Status = "Nenhuma declaração encontrada"
	StatusDownloadError   Status = "Erro no download"
	StatusUnexpectedError Status = "Erro inesperado"
)

// AllStatuses lists every status in report order
var AllStatuses = []Status{
	StatusCompleted,
	StatusNotFound,
	StatusDownloadError,
	StatusUnexpectedError,
	StatusPending,
}

// ParseStatus normalizes a STATUS cell. Unknown non-empty labels are kept verbatim
// so a later run overwrites them like any other incomplete status.
func ParseStatus(raw string) Status {
	v := NormalizeCell(raw)
	for _, s := range AllStatuses {
		if v == string(s) {
			return s
		}
	}
	return Status(v)
}

// IsDone reports whether the status makes the entity eligible for the skip policy.
// Only Completed counts; NotFound is retried on every run.
func (s Status) IsDone() bool {
	return s == StatusCompleted
}

// IsPending reports whether the entity was never processed
func (s Status) IsPending() bool {
	return s == StatusPending
}

// Label returns a human readable name for logs and reports
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusCompleted:
		return "Completed"
	case StatusNotFound:
		return "NotFound"
	case StatusDownloadError:
		return "DownloadError"
	case StatusUnexpectedError:
		return "UnexpectedError"
	default:
		return string(s)
	}
}

// Entity is one row of the batch
type Entity struct {
	ID     TaxID  `json:"id"`
	Code   string `json:"code"`
	Status Status `json:"status"`

	// Row is the 1-based worksheet row the entity was read from (0 when not backed by a sheet)
	Row int `json:"row,omitempty"`
}

// ArtifactName returns the canonical file name of the guide for this entity and period
func (e Entity) ArtifactName(period string) string {
	return ArtifactName(e.Code, period)
}

// ArtifactName builds "<code> DARFWEB <period>.pdf". The period is not validated.
func ArtifactName(code, period string) string {
	return code + " DARFWEB " + period + ".pdf"
}
