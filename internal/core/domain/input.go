package domain

// InputMode names the validation rule applied to a raw form field.
type InputMode string

const (
	InputModeCoordinates InputMode = "coordinates"
	InputModePath        InputMode = "path"
	InputModeGeneric     InputMode = "generic"
)

// Input is a raw form value tagged with the rule that validates it.
// The set of implementations is closed: CoordinatesInput, PathInput, GenericInput.
type Input interface {
	Mode() InputMode
	isInput()
}

// CoordinatesInput is a right-ascension / declination pair as typed by the user.
// Pair must hold exactly two components.
type CoordinatesInput struct {
	Pair []string
}

func (CoordinatesInput) Mode() InputMode { return InputModeCoordinates }
func (CoordinatesInput) isInput()        {}

// PathInput is a filesystem path.
type PathInput struct {
	Raw string
}

func (PathInput) Mode() InputMode { return InputModePath }
func (PathInput) isInput()        {}

// GenericInput is a numeric or sexagesimal string.
type GenericInput struct {
	Raw string
}

func (GenericInput) Mode() InputMode { return InputModeGeneric }
func (GenericInput) isInput()        {}

// Coordinates is a sky position in decimal degrees.
type Coordinates struct {
	RA  float64 `json:"ra"`
	Dec float64 `json:"dec"`
}

// ValidatedInput is the outcome of validating one Input.
// Value holds Coordinates, a cleaned path string, or a float64/string for
// generic input; it is nil when Valid is false.
type ValidatedInput struct {
	Mode   InputMode
	Raw    string
	Value  any
	Valid  bool
	Reason string
}

// Submission is the raw job form.
type Submission struct {
	RA          string `form:"ra" validate:"required"`
	Dec         string `form:"dec" validate:"required"`
	InputDir    string `form:"indir" validate:"required"`
	MatchRadius string `form:"matchradius" validate:"omitempty,numeric"`
}

// FieldError reports a rejected form field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
