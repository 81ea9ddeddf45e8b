package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTaxID(t *testing.T) {
	assert.Equal(t, TaxID("01.234.567/0001-89"), NormalizeTaxID("  01.234.567/0001-89 "))
	assert.Equal(t, TaxID("01234567000189"), NormalizeTaxID("01234567000189"))
	assert.Equal(t, TaxID(""), NormalizeTaxID("NaN"))
	assert.Equal(t, TaxID(""), NormalizeTaxID("   "))
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{"", StatusPending},
		{"nan", StatusPending},
		{" Guia baixada ", StatusCompleted},
		{"Nenhuma declaração encontrada", StatusNotFound},
		{"Erro no download", StatusDownloadError},
		{"Erro inesperado", StatusUnexpectedError},
		{"Revisar manualmente", Status("Revisar manualmente")},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStatus(tt.raw))
		})
	}
}

func TestStatus_IsDone(t *testing.T) {
	assert.True(t, StatusCompleted.IsDone())
	for _, s := range []Status{StatusPending, StatusNotFound, StatusDownloadError, StatusUnexpectedError, Status("other")} {
		assert.False(t, s.IsDone(), s.Label())
	}
}

func TestArtifactName(t *testing.T) {
	e := Entity{ID: "11.111.111/0001-11", Code: "A1"}
	assert.Equal(t, "A1 DARFWEB 06 2025.pdf", e.ArtifactName("06 2025"))
}

func TestCountStatuses(t *testing.T) {
	counts := CountStatuses([]Entity{
		{Status: StatusCompleted},
		{Status: StatusCompleted},
		{Status: StatusDownloadError},
		{},
	})
	assert.Equal(t, 2, counts["Completed"])
	assert.Equal(t, 1, counts["DownloadError"])
	assert.Equal(t, 1, counts["Pending"])
}
