package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lnkbike/crashes/internal/logging"
	"github.com/lnkbike/crashes/internal/model"
	"github.com/lnkbike/crashes/internal/store"
)

func testViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	require.NoError(t, registerDefaults(v))
	v.SetEnvPrefix("CRASHES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(testViper(t))
	require.NoError(t, err)
	assert.Equal(t, model.DefaultConfig(), cfg)
}

func TestLoadConfig_Layers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
paths:
  data: /srv/crashes
geocode:
  min_delay: 2s
  max_delay: 3s
  bounds:
    min_lat: 40.5
logging:
  format: json
`), 0o644))
	t.Setenv("CRASHES_GEOCODE_EMAIL", "ops@example.org")
	t.Setenv("CRASHES_PARSE_WORKERS", "3")

	v := testViper(t)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "/srv/crashes", cfg.Paths.Data)
	assert.Equal(t, "data/reports", cfg.Paths.Documents, "unset keys keep their default")
	assert.Equal(t, 2*time.Second, cfg.Geocode.MinDelay)
	assert.Equal(t, 40.5, cfg.Geocode.Bounds.MinLat)
	assert.Equal(t, 40.93, cfg.Geocode.Bounds.MaxLat)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "ops@example.org", cfg.Geocode.Email)
	assert.Equal(t, 3, cfg.Parse.Workers)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("CRASHES_GEOCODE_EMAIL", "not-an-address")
	_, err := loadConfig(testViper(t))
	assert.Error(t, err)
}

func TestLoadConfig_APIKeyFallback(t *testing.T) {
	t.Setenv("CRASHES_LLM_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	cfg, err := loadConfig(testViper(t))
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-test", cfg.LLM.APIKey)
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, writeDefaultConfig(path))
	assert.Error(t, writeDefaultConfig(path), "existing file is not overwritten")

	v := testViper(t)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultConfig(), cfg)
}

func TestReparseTargets(t *testing.T) {
	file := filepath.Join(t.TempDir(), "cases.txt")
	require.NoError(t, os.WriteFile(file, []byte("# redo\nB2035865\nb3-063805\n"), 0o644))

	reparseCases = []string{"b3063805", "B1-000001"}
	reparseFile = file
	t.Cleanup(func() { reparseCases, reparseFile = nil, "" })

	got, err := reparseTargets()
	require.NoError(t, err)
	assert.Equal(t, []string{"B3-063805", "B1-000001", "B2-035865"}, got)

	reparseCases = []string{"nonsense"}
	_, err = reparseTargets()
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("# nothing yet\n"), 0o644))
	reparseCases, reparseFile = nil, empty
	_, err = reparseTargets()
	assert.ErrorContains(t, err, "no case numbers")
}

func TestBuildStatus(t *testing.T) {
	log := logging.Discard()
	s, err := store.Open(t.TempDir(), log)
	require.NoError(t, err)

	add := func(caseNo string, status model.ParseStatus, cat model.Category) {
		s.Merge(&model.Report{CaseNo: caseNo, ReportText: "bike", ParseStatus: status}, false)
		if cat == "" {
			return
		}
		s.EnsureCandidate(caseNo)
		if cat != model.CategoryUnclassified {
			require.NoError(t, s.SetCategory(caseNo, cat, false))
		}
	}
	add("B1-000001", model.StatusUnparseable, "")
	add("B1-000002", model.StatusPartial, model.CategoryUnclassified)
	add("B1-000003", model.StatusComplete, model.CategoryRoad)
	add("B1-000004", model.StatusComplete, model.CategorySidewalk)
	add("B1-000005", model.StatusComplete, model.CategoryCrosswalk)
	add("B1-000006", model.StatusComplete, model.CategoryNotInvolved)

	require.NoError(t, s.SetLocation(&model.Location{CaseNo: "B1-000003", Latitude: 41.2, Longitude: -95.9, OutOfBounds: true, ResolutionMethod: model.ResolutionManual}))
	require.NoError(t, s.Skip("B1-000005"))
	s.EnsureHitAndRun("B1-000004")

	st := buildStatus(s, model.DefaultConfig(), log)
	assert.Equal(t, 6, st.Reports)
	assert.Equal(t, 4, st.ByStatus[model.StatusComplete])
	assert.Equal(t, []string{"B1-000001"}, st.Unparseable)
	assert.Equal(t, []string{"B1-000002"}, st.Unclassified)
	assert.Equal(t, []string{"B1-000004"}, st.Ungeocoded)
	assert.Equal(t, []string{"B1-000005"}, st.Skipped)
	assert.Equal(t, []string{"B1-000003"}, st.OutOfBounds)
	assert.Equal(t, 1, st.Located)
	assert.Equal(t, 1, st.ByCategory[model.CategoryNotInvolved])
	assert.Equal(t, []string{"B1-000004"}, st.HitAndRun)

	var buf bytes.Buffer
	printStatus(&buf, st, "data")
	assert.Contains(t, buf.String(), "Ungeocoded (1): B1-000004")
	assert.Contains(t, buf.String(), "crashes geocode --force")
	assert.Contains(t, buf.String(), "Hit-and-run unreviewed (1): B1-000004")
}
