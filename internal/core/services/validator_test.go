package services

import (
	"testing"

	"github.com/manthysbr/skywatch/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Coordinates(t *testing.T) {
	v := NewInputValidator(testLogger())

	tests := []struct {
		name    string
		pair    []string
		wantRA  float64
		wantDec float64
	}{
		{"decimal degrees", []string{"187.5", "-12.25"}, 187.5, -12.25},
		{"colon sexagesimal", []string{"12:30:00", "+45:30:00"}, 187.5, 45.5},
		{"space sexagesimal", []string{"01 00 00", "-05 30 00"}, 15, -5.5},
		{"hours and minutes only", []string{"06:15", "10:06"}, 93.75, 10.1},
		{"padded", []string{"  0  ", " 90 "}, 0, 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Validate(domain.CoordinatesInput{Pair: tt.pair})
			require.True(t, got.Valid, got.Reason)
			assert.Equal(t, domain.InputModeCoordinates, got.Mode)
			c := got.Value.(domain.Coordinates)
			assert.InDelta(t, tt.wantRA, c.RA, 1e-9)
			assert.InDelta(t, tt.wantDec, c.Dec, 1e-9)
		})
	}
}

func TestValidate_CoordinatesRejected(t *testing.T) {
	v := NewInputValidator(testLogger())

	tests := []struct {
		name string
		pair []string
	}{
		{"no components", nil},
		{"single component", []string{"12:30:00"}},
		{"three components", []string{"1", "2", "3"}},
		{"unparsable ra", []string{"abc", "10"}},
		{"unparsable dec", []string{"10", "north"}},
		{"ra out of range", []string{"360", "0"}},
		{"ra hours out of range", []string{"24:00:00", "0"}},
		{"negative ra", []string{"-1", "0"}},
		{"dec out of range", []string{"10", "90.5"}},
		{"minutes overflow", []string{"12:75:00", "0"}},
		{"too many fields", []string{"1:2:3:4", "0"}},
		{"empty component", []string{"", "0"}},
		{"nan", []string{"NaN", "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Validate(domain.CoordinatesInput{Pair: tt.pair})
			assert.False(t, got.Valid)
			assert.Nil(t, got.Value)
			assert.NotEmpty(t, got.Reason)
		})
	}
}

func TestValidate_CoordinatesRoundTrip(t *testing.T) {
	v := NewInputValidator(testLogger())

	for _, ra := range []float64{0, 0.001, 15, 83.633, 187.5, 270.25, 359.9} {
		for _, dec := range []float64{-89.99, -45.5, -0.5, 0, 22.0145, 60, 90} {
			got := v.Validate(domain.CoordinatesInput{Pair: []string{FormatRA(ra), FormatDec(dec)}})
			require.True(t, got.Valid, "%s %s: %s", FormatRA(ra), FormatDec(dec), got.Reason)
			c := got.Value.(domain.Coordinates)
			assert.InDelta(t, ra, c.RA, 1e-5)
			assert.InDelta(t, dec, c.Dec, 1e-5)
		}
	}
}

func TestFormatSexagesimal(t *testing.T) {
	assert.Equal(t, "12:30:00.000", FormatRA(187.5))
	assert.Equal(t, "-05:30:00.00", FormatDec(-5.5))
	assert.Equal(t, "+00:00:00.00", FormatDec(0))
	// 59.9999s rounds up into the next minute.
	assert.Equal(t, "+01:00:00.00", FormatDec(1-0.0001/3600))
	// Right ascension wraps at 24h instead of producing an out-of-range value.
	assert.Equal(t, "00:00:00.000", FormatRA(359.9999999))
}

func TestValidate_FormattedRAEndOfCircle(t *testing.T) {
	v := NewInputValidator(testLogger())

	got := v.Validate(domain.CoordinatesInput{Pair: []string{FormatRA(359.9999999), FormatDec(10)}})
	require.True(t, got.Valid, got.Reason)
	assert.InDelta(t, 0, got.Value.(domain.Coordinates).RA, 1e-9)
}

func TestValidate_Path(t *testing.T) {
	v := NewInputValidator(testLogger())

	for _, raw := range []string{"/data/frames", "relative/dir", "/data/../frames/", " /padded "} {
		got := v.Validate(domain.PathInput{Raw: raw})
		assert.True(t, got.Valid, raw)
		assert.Equal(t, domain.InputModePath, got.Mode)
	}

	got := v.Validate(domain.PathInput{Raw: "/data/../frames/"})
	assert.Equal(t, "/frames", got.Value)

	for _, raw := range []string{"", " ", "\t\n"} {
		got := v.Validate(domain.PathInput{Raw: raw})
		assert.False(t, got.Valid, "%q", raw)
		assert.Nil(t, got.Value)
	}
}

func TestValidate_Generic(t *testing.T) {
	v := NewInputValidator(testLogger())

	tests := []struct {
		raw   string
		valid bool
		value any
	}{
		{"1.5", true, 1.5},
		{" -3 ", true, -3.0},
		{"12:30:00", true, "12:30:00"},
		{"+45:00", true, "+45:00"},
		{"", false, nil},
		{"   ", false, nil},
		{"abc", false, nil},
		{"1.2.3", false, nil},
	}

	for _, tt := range tests {
		got := v.Validate(domain.GenericInput{Raw: tt.raw})
		assert.Equal(t, tt.valid, got.Valid, "%q", tt.raw)
		assert.Equal(t, tt.value, got.Value, "%q", tt.raw)
	}
}

func TestValidateSubmission(t *testing.T) {
	v := NewInputValidator(testLogger())

	params, errs := v.ValidateSubmission(domain.Submission{
		RA:          "12:30:00",
		Dec:         "-05:30:00",
		InputDir:    "/data/frames/",
		MatchRadius: "2.5",
	})
	require.Empty(t, errs)
	assert.InDelta(t, 187.5, params.RA, 1e-9)
	assert.InDelta(t, -5.5, params.Dec, 1e-9)
	assert.Equal(t, "/data/frames", params.InputDir)
	assert.Equal(t, 2.5, params.MatchRadius)
	assert.Equal(t, domain.DefaultTuning(), params.Tuning)
}

func TestValidateSubmission_DefaultMatchRadius(t *testing.T) {
	v := NewInputValidator(testLogger())

	params, errs := v.ValidateSubmission(domain.Submission{RA: "10", Dec: "10", InputDir: "/d"})
	require.Empty(t, errs)
	assert.Equal(t, DefaultMatchRadius, params.MatchRadius)
	assert.Equal(t, 10000, params.Tuning.PeriodTests)
	assert.Equal(t, -99.9, params.Tuning.PeriodLower)
}

func TestValidateSubmission_Errors(t *testing.T) {
	v := NewInputValidator(testLogger())

	tests := []struct {
		name   string
		sub    domain.Submission
		fields []string
	}{
		{"missing everything", domain.Submission{}, []string{"ra", "dec", "indir"}},
		{"non numeric radius", domain.Submission{RA: "1", Dec: "1", InputDir: "/d", MatchRadius: "wide"}, []string{"matchradius"}},
		{"zero radius", domain.Submission{RA: "1", Dec: "1", InputDir: "/d", MatchRadius: "0"}, []string{"matchradius"}},
		{"bad coordinates", domain.Submission{RA: "25:00:00", Dec: "1", InputDir: "/d"}, []string{"coordinates"}},
		{"blank dir", domain.Submission{RA: "1", Dec: "1", InputDir: "   "}, []string{"indir"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := v.ValidateSubmission(tt.sub)
			var fields []string
			for _, e := range errs {
				fields = append(fields, e.Field)
				assert.NotEmpty(t, e.Message)
			}
			assert.ElementsMatch(t, tt.fields, fields)
		})
	}
}
