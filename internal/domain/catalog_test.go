package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSegment(t *testing.T) {
	tests := []struct {
		raw     string
		want    Segment
		known   bool
	}{
		{"Commercial", SegmentCommercial, true},
		{"commercial", SegmentCommercial, true},
		{"  Corporate ", SegmentCommercial, true},
		{"Education", SegmentEducation, true},
		{"Academic", SegmentEducation, true},
		{"Charity", SegmentCharity, true},
		{"Nonprofit", SegmentCharity, true},
		{"Unknown", SegmentCommercial, false},
		{"", SegmentCommercial, false},
	}

	for _, tt := range tests {
		got, ok := NormalizeSegment(tt.raw)
		assert.Equal(t, tt.want, got, "raw=%q", tt.raw)
		assert.Equal(t, tt.known, ok, "raw=%q", tt.raw)
	}
}

func TestNormalizeBillingPlan(t *testing.T) {
	tests := []struct {
		raw   string
		want  BillingPlan
		known bool
	}{
		{"Monthly", BillingPlanMonthly, true},
		{"monthly", BillingPlanMonthly, true},
		{"P1M", BillingPlanMonthly, true},
		{"Annual", BillingPlanAnnual, true},
		{"P1Y", BillingPlanAnnual, true},
		{"Triennial", BillingPlanAnnual, false},
		{"", BillingPlanAnnual, false},
	}

	for _, tt := range tests {
		got, ok := NormalizeBillingPlan(tt.raw)
		assert.Equal(t, tt.want, got, "raw=%q", tt.raw)
		assert.Equal(t, tt.known, ok, "raw=%q", tt.raw)
	}
}

func TestAllServicesStableOrder(t *testing.T) {
	assert.Len(t, AllServices, 9)
	assert.Equal(t, ServiceExchange, AllServices[0])
	assert.Equal(t, ServicePhoneSystem, AllServices[8])
}
