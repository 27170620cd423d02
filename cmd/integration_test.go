package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blendCSV = "ID,Component1_fraction,Component2_fraction,BlendProperty1,BlendProperty2\n" +
	"b1,0.2,0.8,10,20\n" +
	"b2,0.6,0.4,12,18\n" +
	"b3,0.5,0.5,11,25\n"

// resetFlags clears values and Changed state left behind by an earlier run.
func resetFlags(c *cobra.Command) {
	reset := func(fl *pflag.Flag) {
		if sv, ok := fl.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = fl.Value.Set(fl.DefValue)
		}
		fl.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execCmd executes the root command with args and returns its stdout.
func execCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	color.NoColor = true
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// runCmd is a helper to execute the root command with args.
func runCmd(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execCmd(t, args...)
	if err != nil {
		t.Fatalf("command %v failed: %v", args, err)
	}
	return out
}

// isolatedHome points HOME at a temp dir so config never leaks between tests.
func isolatedHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestCLI_AnalyzeWritesReport(t *testing.T) {
	home := isolatedHome(t)
	csv := writeFile(t, home, "blend.csv", blendCSV)
	outPath := filepath.Join(home, "reports", "blend.md")

	runCmd(t, "analyze", csv, "-o", outPath)

	b, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	md := string(b)
	for _, want := range []string{"[DATASET SUMMARY]", "File: blend.csv", "Rows: 3", "BlendProperty2"} {
		if !strings.Contains(md, want) {
			t.Fatalf("report missing %q:\n%s", want, md)
		}
	}
}

func TestCLI_AnalyzeJSONMultipleFiles(t *testing.T) {
	home := isolatedHome(t)
	writeFile(t, home, "a.csv", blendCSV)
	writeFile(t, home, "b.csv", "name,label\nx,y\n")

	out := runCmd(t, "analyze", filepath.Join(home, "*.csv"), "--json", "--quiet")

	var reports []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &reports), out)
	require.Len(t, reports, 2)
	assert.Equal(t, "a.csv", reports[0]["name"])
	assert.Equal(t, false, reports[0]["not_enough_data"])
	assert.Equal(t, true, reports[1]["not_enough_data"])
}

func TestCLI_CorrelateAndProject(t *testing.T) {
	home := isolatedHome(t)
	csv := writeFile(t, home, "blend.csv", blendCSV)

	out := runCmd(t, "correlate", csv, "--top", "1")
	assert.Contains(t, out, "Component1_fraction ~ Component2_fraction: r=-1.000")

	out = runCmd(t, "project", csv)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "x,y,label", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], ",ID: b1"), lines[1])

	mixed := writeFile(t, home, "mixed.csv", "a,b\n1,x\n")
	_, err := execCmd(t, "correlate", mixed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not enough data")
}

func TestCLI_MatchPicksClosestRow(t *testing.T) {
	home := isolatedHome(t)
	ref := writeFile(t, home, "ref.csv", blendCSV)

	out := runCmd(t, "match", ref, "--target", "1=11.9", "--target", "2=18.2")
	assert.Contains(t, out, "Best match: row 2 (ID b2)")
	assert.Contains(t, out, "BlendProperty1: target 11.9, actual 12")

	_, err := execCmd(t, "match", ref)
	assert.Error(t, err)
}

func TestCLI_ValidateReportsMissingColumns(t *testing.T) {
	home := isolatedHome(t)
	bad := writeFile(t, home, "bad.csv", "ID,Component1_fracton\n1,0.5\n")

	out, err := execCmd(t, "validate", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required column(s) missing")
	assert.Contains(t, out, "Component1_fraction (did you mean Component1_fracton")

	_, err = execCmd(t, "validate", bad, "--kind", "bogus")
	assert.ErrorContains(t, err, "unsupported --kind")
}

func TestCLI_ConfigSetAndShow(t *testing.T) {
	home := isolatedHome(t)

	runCmd(t, "config", "set", "service_url", "http://trainer:9000/")
	runCmd(t, "config", "set", "poll_interval_ms", "250")
	if _, err := os.Stat(filepath.Join(home, ".blendlab", "config.yaml")); err != nil {
		t.Fatalf("config not saved: %v", err)
	}
	out := runCmd(t, "config", "show")
	assert.Contains(t, out, "service_url: http://trainer:9000\n")
	assert.Contains(t, out, "poll_interval_ms: 250\n")

	_, err := execCmd(t, "config", "set", "validation_split", "1.5")
	assert.Error(t, err)
	_, err = execCmd(t, "config", "set", "nope", "1")
	assert.ErrorContains(t, err, "unknown key")
}

type fakeTrainer struct {
	mu      sync.Mutex
	submits int
	dataset string
	body    map[string]any
}

func (f *fakeTrainer) handler() http.Handler {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/start_training", func(c *gin.Context) {
		var body map[string]any
		_ = c.ShouldBindJSON(&body)
		f.mu.Lock()
		f.submits++
		f.dataset = c.Query("dataset_filename")
		f.body = body
		f.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"message": "Training started", "job_id": "job-1", "status": "pending"})
	})
	r.GET("/training_status/:id", func(c *gin.Context) {
		if c.Param("id") != "job-1" {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Job not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"job_id": "job-1", "status": "completed", "progress": 1.0,
			"message": "Training completed successfully", "metrics": gin.H{"r2": 0.91},
		})
	})
	r.GET("/training_jobs", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"jobs": []gin.H{{"job_id": "job-1", "status": "completed", "progress": 1.0, "message": "done"}}})
	})
	return r
}

func (f *fakeTrainer) snapshot() (int, string, map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits, f.dataset, f.body
}

func TestCLI_TrainSubmitAndWatch(t *testing.T) {
	isolatedHome(t)
	fake := &fakeTrainer{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	out := runCmd(t, "train", "submit", "train.csv", "-m", "blend-v1", "--split", "0.25", "--watch", "--service-url", srv.URL)
	assert.Contains(t, out, "Submitted training job job-1")
	assert.Contains(t, out, "Job job-1: completed (100%)")
	assert.Contains(t, out, "r2: 0.9100")

	n, ds, body := fake.snapshot()
	assert.Equal(t, 1, n)
	assert.Equal(t, "train.csv", ds)
	assert.Equal(t, "blend-v1", body["model_name"])
	assert.Equal(t, 0.25, body["validation_split"])
	assert.Equal(t, "power", body["target_transformation"])

	out = runCmd(t, "train", "jobs", "--service-url", srv.URL)
	assert.Contains(t, out, "- job-1: completed 100% done")

	_, err := execCmd(t, "train", "status", "missing", "--service-url", srv.URL, "--retry-max", "1")
	assert.ErrorContains(t, err, "not found")
}

func TestCLI_TrainSubmitRejectsInvalidConfig(t *testing.T) {
	isolatedHome(t)
	fake := &fakeTrainer{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	_, err := execCmd(t, "train", "submit", "train.csv", "-m", "x", "--split", "1.5", "--service-url", srv.URL)
	require.Error(t, err)
	_, err = execCmd(t, "train", "submit", "train.csv", "--service-url", srv.URL)
	require.Error(t, err)

	n, _, _ := fake.snapshot()
	assert.Equal(t, 0, n)
}
