package csvimport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExportDate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2026-03-31", "2026-03-31", false},
		{"31.03.2026", "2026-03-31", false},
		{"1.4.2026", "2026-04-01", false},
		{"3/31/2026", "2026-03-31", false},
		{"2026-03-31T23:30:00-02:00", "2026-04-01", false},
		{"", "", false},
		{"31/03/2026", "", true},
		{"tomorrow", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseExportDate(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			assert.Equal(t, tt.want, got.Format("2006-01-02"))
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"1234.5", "1234.5", false},
		{"1.234,50", "1234.5", false},
		{"1,234.50", "1234.5", false},
		{"12,5", "12.5", false},
		{"12,500", "12500", false},
		{"1.234.567", "1234567", false},
		{"€ 12.000,00", "12000", false},
		{"€ 12.000", "12000", false},
		{"12.000", "12000", false},
		{"12,000", "12000", false},
		{"-12.000", "-12000", false},
		{"1.5", "1.5", false},
		{"0.125", "0.125", false},
		{"0,125", "0.125", false},
		{"1234.567", "1234.567", false},
		{"1234,567", "1234.567", false},
		{"$1,000", "1000", false},
		{"-250", "-250", false},
		{"", "", false},
		{"   ", "", false},
		{"n/a", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestExternalIDFromLink(t *testing.T) {
	tests := []struct {
		link string
		want string
	}{
		{"https://crm.example.com/opportunities/OPP-9", "OPP-9"},
		{"https://crm.example.com/opportunities/OPP-9/", "OPP-9"},
		{"https://acme.lightning.force.com/lightning/r/Opportunity/0065g00000AbCdE/view", "0065g00000AbCdE"},
		{"https://crm.example.com/opp/OPP-4?tab=details#notes", "OPP-4"},
		{"OPP-4", "OPP-4"},
		{"https://crm.example.com", ""},
		{"https://crm.example.com/", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.link, func(t *testing.T) {
			assert.Equal(t, tt.want, ExternalIDFromLink(tt.link))
		})
	}
}
