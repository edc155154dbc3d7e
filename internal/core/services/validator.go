package services

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/manthysbr/skywatch/internal/core/domain"
)

// DefaultMatchRadius is used when the form leaves matchradius empty.
const DefaultMatchRadius = 1.0

// InputValidator coerces raw form values. Invalid input is reported through
// the Valid flag and a reason, never as an error.
type InputValidator struct {
	logger   *slog.Logger
	validate *validator.Validate
}

func NewInputValidator(logger *slog.Logger) *InputValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &InputValidator{logger: logger, validate: v}
}

// Validate dispatches on the input's variant.
func (v *InputValidator) Validate(in domain.Input) domain.ValidatedInput {
	var out domain.ValidatedInput
	switch in := in.(type) {
	case domain.CoordinatesInput:
		out = validateCoordinates(in)
	case domain.PathInput:
		out = validatePath(in)
	case domain.GenericInput:
		out = validateGeneric(in)
	default:
		out = domain.ValidatedInput{Reason: fmt.Sprintf("unsupported input %T", in)}
	}
	if !out.Valid {
		v.logger.Warn("input rejected", "mode", out.Mode, "raw", out.Raw, "reason", out.Reason)
	}
	return out
}

func validateCoordinates(in domain.CoordinatesInput) domain.ValidatedInput {
	out := domain.ValidatedInput{Mode: domain.InputModeCoordinates, Raw: strings.Join(in.Pair, " ")}
	if len(in.Pair) != 2 {
		out.Reason = fmt.Sprintf("expected 2 coordinate components, got %d", len(in.Pair))
		return out
	}
	ra, err := ParseRA(in.Pair[0])
	if err != nil {
		out.Reason = err.Error()
		return out
	}
	dec, err := ParseDec(in.Pair[1])
	if err != nil {
		out.Reason = err.Error()
		return out
	}
	out.Value = domain.Coordinates{RA: ra, Dec: dec}
	out.Valid = true
	return out
}

func validatePath(in domain.PathInput) domain.ValidatedInput {
	out := domain.ValidatedInput{Mode: domain.InputModePath, Raw: in.Raw}
	trimmed := strings.TrimSpace(in.Raw)
	if trimmed == "" {
		out.Reason = "path is empty"
		return out
	}
	out.Value = filepath.Clean(trimmed)
	out.Valid = true
	return out
}

func validateGeneric(in domain.GenericInput) domain.ValidatedInput {
	out := domain.ValidatedInput{Mode: domain.InputModeGeneric, Raw: in.Raw}
	trimmed := strings.TrimSpace(in.Raw)
	switch {
	case trimmed == "":
		out.Reason = "value is empty"
	case strings.Contains(trimmed, ":"):
		out.Value = trimmed
		out.Valid = true
	default:
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			out.Reason = fmt.Sprintf("%q is neither sexagesimal nor a number", trimmed)
			return out
		}
		out.Value = f
		out.Valid = true
	}
	return out
}

// ValidateSubmission checks the raw form and builds job parameters carrying
// the default tuning. A non-empty error list means no job may be admitted.
func (v *InputValidator) ValidateSubmission(sub domain.Submission) (domain.JobParams, []domain.FieldError) {
	var fieldErrs []domain.FieldError

	if err := v.validate.Struct(sub); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return domain.JobParams{}, []domain.FieldError{{Field: "form", Message: err.Error()}}
		}
		for _, fe := range verrs {
			fieldErrs = append(fieldErrs, domain.FieldError{Field: fe.Field(), Message: describeTag(fe)})
		}
		return domain.JobParams{}, fieldErrs
	}

	params := domain.JobParams{MatchRadius: DefaultMatchRadius, Tuning: domain.DefaultTuning()}

	coords := v.Validate(domain.CoordinatesInput{Pair: []string{sub.RA, sub.Dec}})
	if coords.Valid {
		c := coords.Value.(domain.Coordinates)
		params.RA, params.Dec = c.RA, c.Dec
	} else {
		fieldErrs = append(fieldErrs, domain.FieldError{Field: "coordinates", Message: coords.Reason})
	}

	dir := v.Validate(domain.PathInput{Raw: sub.InputDir})
	if dir.Valid {
		params.InputDir = dir.Value.(string)
	} else {
		fieldErrs = append(fieldErrs, domain.FieldError{Field: "indir", Message: dir.Reason})
	}

	if strings.TrimSpace(sub.MatchRadius) != "" {
		radius := v.Validate(domain.GenericInput{Raw: sub.MatchRadius})
		r, isNum := radius.Value.(float64)
		switch {
		case !radius.Valid || !isNum:
			fieldErrs = append(fieldErrs, domain.FieldError{Field: "matchradius", Message: "must be a number"})
		case r <= 0:
			fieldErrs = append(fieldErrs, domain.FieldError{Field: "matchradius", Message: "must be greater than zero"})
		default:
			params.MatchRadius = r
		}
	}

	if len(fieldErrs) > 0 {
		return domain.JobParams{}, fieldErrs
	}
	return params, nil
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "numeric":
		return "must be a number"
	default:
		return fmt.Sprintf("failed %s check", fe.Tag())
	}
}

// ParseRA parses right ascension. Sexagesimal input is in hours
// ("12:30:00", "12 30 00"); a plain number is decimal degrees.
func ParseRA(s string) (float64, error) {
	s = strings.TrimSpace(s)
	var deg float64
	if isSexagesimal(s) {
		hours, err := parseSexagesimal(s)
		if err != nil {
			return 0, fmt.Errorf("invalid right ascension %q: %w", s, err)
		}
		deg = hours * 15
	} else {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid right ascension %q", s)
		}
		deg = f
	}
	if math.IsNaN(deg) || deg < 0 || deg >= 360 {
		return 0, fmt.Errorf("right ascension %q out of range", s)
	}
	return deg, nil
}

// ParseDec parses declination in sexagesimal ("-05:30:00") or decimal degrees.
func ParseDec(s string) (float64, error) {
	s = strings.TrimSpace(s)
	var deg float64
	if isSexagesimal(s) {
		d, err := parseSexagesimal(s)
		if err != nil {
			return 0, fmt.Errorf("invalid declination %q: %w", s, err)
		}
		deg = d
	} else {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid declination %q", s)
		}
		deg = f
	}
	if math.IsNaN(deg) || deg < -90 || deg > 90 {
		return 0, fmt.Errorf("declination %q out of range", s)
	}
	return deg, nil
}

func isSexagesimal(s string) bool {
	return strings.ContainsAny(s, ": ")
}

// parseSexagesimal reads "[+-]a:b:c" or "[+-]a b c" as a + b/60 + c/3600.
// Minutes and seconds are optional but must be in [0, 60).
func parseSexagesimal(s string) (float64, error) {
	sign := 1.0
	switch {
	case strings.HasPrefix(s, "-"):
		sign, s = -1, s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == ' ' })
	if len(parts) == 0 || len(parts) > 3 {
		return 0, errors.New("expected 1 to 3 sexagesimal fields")
	}

	var total float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil || f < 0 || math.IsInf(f, 0) {
			return 0, fmt.Errorf("bad field %q", p)
		}
		if i > 0 && f >= 60 {
			return 0, fmt.Errorf("field %q must be below 60", p)
		}
		total += f / math.Pow(60, float64(i))
	}
	return sign * total, nil
}

// FormatRA renders degrees as "hh:mm:ss.sss".
func FormatRA(deg float64) string {
	return formatSexagesimal(deg/15, false)
}

// FormatDec renders degrees as "+dd:mm:ss.ss".
func FormatDec(deg float64) string {
	return formatSexagesimal(deg, true)
}

func formatSexagesimal(v float64, signed bool) string {
	sign := "+"
	if v < 0 {
		sign, v = "-", -v
	}
	prec, scale := 3, 1000.0
	if signed {
		prec, scale = 2, 100.0
	}
	// Work in integer units of the last decimal so rounding never yields 60s.
	units := int64(math.Round(v * 3600 * scale))
	whole := units / int64(3600*scale)
	if !signed {
		// Right ascension rounds up into 24h at the end of the circle.
		whole %= 24
	}
	rem := units % int64(3600*scale)
	minutes := rem / int64(60*scale)
	seconds := float64(rem%int64(60*scale)) / scale

	out := fmt.Sprintf("%02d:%02d:%0*.*f", whole, minutes, prec+3, prec, seconds)
	if signed {
		return sign + out
	}
	return out
}
