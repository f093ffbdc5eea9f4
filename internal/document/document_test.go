package document

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cadence/internal/schedule"
)

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestLoad_Breakfast(t *testing.T) {
	for _, name := range []string{"breakfast.yaml", "breakfast.json"} {
		t.Run(name, func(t *testing.T) {
			p, err := Load(filepath.Join("testdata", name))
			require.NoError(t, err)

			assert.Equal(t, "breakfast", p.ID)
			assert.Equal(t, "Breakfast", p.Name)
			assert.Equal(t, "kitchen", p.EnvironmentType)
			assert.Equal(t, schedule.SchemaVersion, p.Version)
			assert.Equal(t, schedule.StartAutomatic, p.StartTrigger.Mode)
			require.Len(t, p.Tracks, 2)
			assert.Equal(t, "toast", p.Tracks[1].Name)

			boil, ok := p.Step("boil")
			require.True(t, ok)
			assert.Equal(t, schedule.ProgramStart{}, boil.Trigger)
			assert.Equal(t, schedule.Fixed{D: 5 * time.Minute}, boil.Duration)
			assert.Equal(t, []string{"stove-burner"}, boil.Resources)

			peel, _ := p.Step("peel")
			assert.Equal(t, schedule.AfterStep{StepID: "boil", Offset: time.Minute}, peel.Trigger)
			assert.Equal(t, schedule.Fixed{D: 2 * time.Minute}, peel.Duration)
			assert.Equal(t, "peel", peel.Name)

			toast, _ := p.Step("toast")
			assert.Equal(t, schedule.Manual{}, toast.Trigger)
			assert.Equal(t, schedule.Variable{Min: time.Minute, Max: 3 * time.Minute}, toast.Duration)
			assert.Equal(t, []string{"toaster", "stove-burner"}, toast.Resources)

			coffee, _ := p.Step("coffee")
			assert.Equal(t, schedule.AtOffset{Offset: 90 * time.Second}, coffee.Trigger)
			assert.Empty(t, coffee.Resources)

			assert.Equal(t, schedule.Capacities{"stove-burner": 1, "toaster": 1, "prep": 2}, p.Capacities())
		})
	}
}

func TestLoad_YAMLAndJSONAgree(t *testing.T) {
	y, err := Load("testdata/breakfast.yaml")
	require.NoError(t, err)
	j, err := Load("testdata/breakfast.json")
	require.NoError(t, err)
	assert.Equal(t, y, j)
}

func TestLoad_Strict(t *testing.T) {
	_, err := Load("testdata/breakfast.yaml", WithStrict())
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 1)
	assert.Equal(t, ErrCodeUndefinedTask, verrs[0].Code)
	assert.Contains(t, verrs[0].Message, `"prep"`)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "program.txt")
	require.NoError(t, os.WriteFile(txt, []byte("programId: x"), 0o644))

	_, err := Load(txt)
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, []string{ErrCodeFormat}, codes(verrs))

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, []string{ErrCodeRead}, codes(verrs))
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
		ok   bool
	}{
		{"a.yaml", FormatYAML, true},
		{"a.YML", FormatYAML, true},
		{"dir/a.json", FormatJSON, true},
		{"a.toml", "", false},
		{"noext", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatFromPath(tt.path)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "valid minimal",
			doc:  "programId: p\ntracks: []\n",
		},
		{
			name: "missing programId",
			doc:  "tracks: []\n",
			want: ErrCodeSchema,
		},
		{
			name: "unknown trigger type",
			doc: `programId: p
tracks:
  - trackId: t
    steps:
      - stepId: a
        startTrigger: {type: sometime}
        duration: 10
`,
			want: ErrCodeSchema,
		},
		{
			name: "negative capacity",
			doc: `programId: p
tracks: []
resourceConstraints:
  - task: oven
    maxConcurrent: -1
`,
			want: ErrCodeSchema,
		},
		{
			name: "malformed time",
			doc: `programId: p
tracks:
  - trackId: t
    steps:
      - stepId: a
        duration: 5 minutes
`,
			want: ErrCodeSchema,
		},
		{
			name: "afterStep without stepId",
			doc: `programId: p
tracks:
  - trackId: t
    steps:
      - stepId: a
        startTrigger: {type: afterStep}
        duration: 10
`,
			want: ErrCodeMissingReference,
		},
		{
			name: "min exceeds max",
			doc: `programId: p
tracks:
  - trackId: t
    steps:
      - stepId: a
        duration: {type: variable, minSeconds: 60, maxSeconds: 30}
`,
			want: ErrCodeInvalidTime,
		},
		{
			name: "not yaml",
			doc:  "programId: [unterminated\n",
			want: ErrCodeParse,
		},
		{
			name: "empty",
			doc:  "",
			want: ErrCodeParse,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate([]byte(tt.doc))
			if tt.want == "" {
				assert.Empty(t, errs)
				return
			}
			require.NotEmpty(t, errs)
			assert.Equal(t, tt.want, errs[0].Code, "%v", errs)
		})
	}
}

func TestValidate_UnknownField(t *testing.T) {
	data, err := os.ReadFile("testdata/unknown_field.yaml")
	require.NoError(t, err)

	errs := Validate(data)
	require.NotEmpty(t, errs)
	assert.Equal(t, ErrCodeSchema, errs[0].Code)
}

func TestValidate_ReportsEveryConversionProblem(t *testing.T) {
	doc := `programId: p
tracks:
  - trackId: t
    steps:
      - stepId: a
        startTrigger: {type: afterStep}
        duration: {type: variable, minSeconds: 9, maxSeconds: 1}
`
	errs := Validate([]byte(doc))
	assert.Equal(t, []string{ErrCodeMissingReference, ErrCodeInvalidTime}, codes(errs))
	assert.Equal(t, "tracks.0.steps.0.startTrigger.stepId", errs[0].Field)
	assert.Equal(t, "tracks.0.steps.0.duration.minSeconds", errs[1].Field)
}

func TestParse_ProgramStartTriggers(t *testing.T) {
	doc := `programId: p
startTrigger: {type: offset, offsetSeconds: 1h}
tracks:
  - trackId: t
    steps:
      - stepId: a
        duration: 1
      - stepId: b
        startTrigger: {type: programStart, offsetSeconds: 20}
        duration: 1
`
	p, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, schedule.ProgramTrigger{Mode: schedule.StartOffset, Offset: time.Hour}, p.StartTrigger)
	a, _ := p.Step("a")
	assert.Equal(t, schedule.ProgramStart{}, a.Trigger)
	b, _ := p.Step("b")
	assert.Equal(t, schedule.AtOffset{Offset: 20 * time.Second}, b.Trigger)
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"", 0, true},
		{"90", 90 * time.Second, true},
		{" 45s ", 45 * time.Second, true},
		{"5m", 5 * time.Minute, true},
		{"1h30m", 90 * time.Minute, true},
		{"1h30m10s", time.Hour + 30*time.Minute + 10*time.Second, true},
		{"-5", 0, false},
		{"5 minutes", 0, false},
		{"30s1m", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTime(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "0s", FormatTime(0))
	assert.Equal(t, "45s", FormatTime(45*time.Second))
	assert.Equal(t, "1h30m", FormatTime(90*time.Minute))
	assert.Equal(t, "1h1s", FormatTime(time.Hour+time.Second))
	assert.Equal(t, "500ms", FormatTime(500*time.Millisecond))
}

func TestEncode_RoundTrip(t *testing.T) {
	orig, err := Load("testdata/breakfast.yaml")
	require.NoError(t, err)
	orig.StartTrigger = schedule.ProgramTrigger{Mode: schedule.StartOffset, Offset: 10 * time.Second}

	for _, format := range []Format{FormatYAML, FormatJSON} {
		t.Run(string(format), func(t *testing.T) {
			data, err := Encode(orig, format)
			require.NoError(t, err)

			back, err := Parse(data)
			require.NoError(t, err)
			assert.Equal(t, orig, back)
		})
	}
}

func TestEncode_FixedDurationIsBare(t *testing.T) {
	p := &schedule.Program{
		ID:      "p",
		Name:    "p",
		Version: schedule.SchemaVersion,
		Tracks: []schedule.Track{{ID: "t", Name: "t", Steps: []schedule.Step{
			{ID: "a", Name: "a", Trigger: schedule.ProgramStart{}, Duration: schedule.Fixed{D: 1500 * time.Millisecond}},
		}}},
	}

	data, err := Encode(p, FormatJSON)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"duration": 1.5`)

	data, err = Encode(p, FormatYAML)
	require.NoError(t, err)
	assert.Contains(t, string(data), "duration: 1.5")
}

func TestEncode_UnknownFormat(t *testing.T) {
	_, err := Encode(&schedule.Program{ID: "p"}, Format("toml"))
	require.Error(t, err)
}
