package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitecopy/logger"
)

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "html", cfg.CopyPath)
	assert.Equal(t, "copy.log", cfg.LogFile)
	assert.Equal(t, "copy_out.log", cfg.OutLog)
	assert.Equal(t, ":8000", cfg.Serve.Addr)
	assert.Equal(t, "wget", cfg.Wget.Binary)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.DryRun)
	assert.Nil(t, cfg.TrackingParams)
}

func TestSetup_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sitecopy.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
url: https://site.ac.uk/
copy_path: mirror
tracking_params: [ref]
wget:
  args: ["--wait=1"]
serve:
  addr: ":9000"
`), 0o644))
	t.Setenv("SITECOPY_SERVE_ADDR", ":7000")
	t.Setenv("SITECOPY_DRY_RUN", "true")

	v := viper.New()
	require.NoError(t, Setup(v, file))
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "https://site.ac.uk/", cfg.URL)
	assert.Equal(t, "mirror", cfg.CopyPath)
	assert.Equal(t, []string{"ref"}, cfg.TrackingParams)
	assert.Equal(t, []string{"--wait=1"}, cfg.Wget.Args)
	assert.Equal(t, ":7000", cfg.Serve.Addr)
	assert.True(t, cfg.DryRun)

	d := cfg.Downloader()
	assert.Equal(t, "mirror", d.CopyPath)
	assert.Equal(t, []string{"--wait=1"}, d.ExtraArgs)
}

func TestSetup_MissingExplicitFile(t *testing.T) {
	v := viper.New()
	err := Setup(v, filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, ErrConfigLoadFailed)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"empty copy path", Config{}, "copy_path"},
		{"relative url", Config{CopyPath: "html", URL: "site.ac.uk"}, "url"},
		{"bad log format", Config{CopyPath: "html", Log: logger.Config{Format: "xml"}}, "log.format"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			require.ErrorIs(t, err, ErrConfigInvalid)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}

	ok := Config{CopyPath: "html", URL: "https://site.ac.uk/"}
	assert.NoError(t, ok.Validate())
}
