package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/docscan/internal/config"
	"github.com/MeKo-Tech/docscan/internal/engine"
	"github.com/MeKo-Tech/docscan/internal/engine/enginetest"
	"github.com/MeKo-Tech/docscan/internal/testutil"
)

// cliScenario holds the state of one scenario. Every scenario runs in its
// own working directory.
type cliScenario struct {
	dir      string
	prevDir  string
	restore  map[string]*string
	local    *enginetest.Fake
	fallback *enginetest.Fake

	stdout string
	err    error
}

func (s *cliScenario) begin() error {
	prev, err := os.Getwd()
	if err != nil {
		return err
	}
	dir, err := os.MkdirTemp("", "docscan-cli-*")
	if err != nil {
		return err
	}
	*s = cliScenario{dir: dir, prevDir: prev, restore: map[string]*string{}}
	return os.Chdir(dir)
}

func (s *cliScenario) end() error {
	for key, val := range s.restore {
		if val == nil {
			_ = os.Unsetenv(key)
		} else {
			_ = os.Setenv(key, *val)
		}
	}
	if err := os.Chdir(s.prevDir); err != nil {
		return err
	}
	return os.RemoveAll(s.dir)
}

func (s *cliScenario) engines(*config.Config, *slog.Logger) (engine.Engine, engine.Engine, error) {
	if s.fallback == nil {
		return s.local, nil, nil
	}
	return s.local, s.fallback, nil
}

func (s *cliScenario) localReadsInvoice(confidence float64) error {
	s.local = enginetest.New(engine.NameTesseract, testutil.InvoiceText, confidence)
	return nil
}

func (s *cliScenario) localReads(text string, confidence float64) error {
	s.local = enginetest.New(engine.NameTesseract, text, confidence)
	return nil
}

func (s *cliScenario) fallbackReadsInvoice(confidence float64) error {
	s.fallback = enginetest.New(engine.NameGoogleVision, testutil.InvoiceText, confidence)
	return nil
}

func (s *cliScenario) documentPhoto(name string) error {
	img := testutil.CreateTestImage(64, 64, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return err
	}
	return os.WriteFile(name, buf.Bytes(), 0o600)
}

func (s *cliScenario) envIsSetTo(key, value string) error {
	if _, seen := s.restore[key]; !seen {
		if old, ok := os.LookupEnv(key); ok {
			s.restore[key] = &old
		} else {
			s.restore[key] = nil
		}
	}
	return os.Setenv(key, value)
}

func (s *cliScenario) iRun(command string) error {
	args := strings.Fields(command)
	if len(args) == 0 || args[0] != "docscan" {
		return fmt.Errorf("commands must start with docscan: %q", command)
	}
	root := newRootCommand(s.engines)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args[1:])
	s.err = root.ExecuteContext(context.Background())
	s.stdout = out.String()
	return nil
}

func (s *cliScenario) commandShouldSucceed() error {
	if s.err != nil {
		return fmt.Errorf("command failed: %w", s.err)
	}
	return nil
}

func (s *cliScenario) commandShouldFail() error {
	if s.err == nil {
		return errors.New("command succeeded")
	}
	return nil
}

func (s *cliScenario) errorShouldMention(text string) error {
	if s.err == nil || !strings.Contains(s.err.Error(), text) {
		return fmt.Errorf("error %v does not mention %q", s.err, text)
	}
	return nil
}

func (s *cliScenario) outputShouldBeJSON() error {
	if !json.Valid([]byte(s.stdout)) {
		return fmt.Errorf("output is not JSON: %s", s.stdout)
	}
	return nil
}

func (s *cliScenario) jsonFieldShouldBe(field, want string) error {
	var out map[string]any
	if err := json.Unmarshal([]byte(s.stdout), &out); err != nil {
		return err
	}
	if got := fmt.Sprint(out[field]); got != want {
		return fmt.Errorf("%s = %s, want %s", field, got, want)
	}
	return nil
}

func (s *cliScenario) outputShouldHaveLines(n int) error {
	lines := strings.Split(strings.TrimSpace(s.stdout), "\n")
	if len(lines) != n {
		return fmt.Errorf("got %d lines, want %d:\n%s", len(lines), n, s.stdout)
	}
	return nil
}

func (s *cliScenario) fileShouldContain(name, text string) error {
	data, err := os.ReadFile(name)
	if err != nil {
		return err
	}
	if !strings.Contains(string(data), text) {
		return fmt.Errorf("%s does not contain %q", name, text)
	}
	return nil
}

func (s *cliScenario) localCalled(n int) error {
	if got := s.local.Calls(); got != n {
		return fmt.Errorf("local engine called %d times, want %d", got, n)
	}
	return nil
}

func (s *cliScenario) fallbackCalled(n int) error {
	if s.fallback == nil {
		return errors.New("no fallback engine configured")
	}
	if got := s.fallback.Calls(); got != n {
		return fmt.Errorf("fallback engine called %d times, want %d", got, n)
	}
	return nil
}

func (s *cliScenario) localAskedFor(langs string) error {
	if got := engine.TesseractString(s.local.LastLanguages()); got != langs {
		return fmt.Errorf("local engine asked for %q, want %q", got, langs)
	}
	return nil
}

// InitializeCLIScenario registers the command line steps.
func InitializeCLIScenario(sc *godog.ScenarioContext) {
	s := &cliScenario{}
	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		return ctx, s.begin()
	})
	sc.After(func(ctx context.Context, _ *godog.Scenario, _ error) (context.Context, error) {
		return ctx, s.end()
	})

	sc.Step(`^the local engine reads the sample invoice with confidence (\d+)$`, s.localReadsInvoice)
	sc.Step(`^the local engine reads "([^"]*)" with confidence (\d+)$`, s.localReads)
	sc.Step(`^the fallback engine reads the sample invoice with confidence (\d+)$`, s.fallbackReadsInvoice)
	sc.Step(`^a document photo "([^"]*)"$`, s.documentPhoto)
	sc.Step(`^the environment variable "([^"]*)" is set to "([^"]*)"$`, s.envIsSetTo)
	sc.Step(`^I run "([^"]*)"$`, s.iRun)
	sc.Step(`^the command should succeed$`, s.commandShouldSucceed)
	sc.Step(`^the command should fail$`, s.commandShouldFail)
	sc.Step(`^the error should mention "([^"]*)"$`, s.errorShouldMention)
	sc.Step(`^the output should be valid JSON$`, s.outputShouldBeJSON)
	sc.Step(`^the JSON field "([^"]*)" should be "([^"]*)"$`, s.jsonFieldShouldBe)
	sc.Step(`^the output should have (\d+) lines$`, s.outputShouldHaveLines)
	sc.Step(`^the file "([^"]*)" should contain "([^"]*)"$`, s.fileShouldContain)
	sc.Step(`^the local engine should have been called (\d+) times?$`, s.localCalled)
	sc.Step(`^the fallback engine should have been called (\d+) times?$`, s.fallbackCalled)
	sc.Step(`^the local engine should have been asked for "([^"]*)"$`, s.localAskedFor)
}

func TestCLIFeatures(t *testing.T) {
	root, err := testutil.GetProjectRoot()
	if err != nil {
		t.Fatal(err)
	}
	features := filepath.Join(root, "cmd", "docscan", "cmd", "features")
	// Scenarios must not see a config file from the developer's home.
	sandbox(t)

	format := os.Getenv("GODOG_FORMAT")
	if format == "" {
		format = "pretty"
	}
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeCLIScenario,
		Options: &godog.Options{
			Format:   format,
			Tags:     os.Getenv("GODOG_TAGS"),
			Paths:    []string{features},
			TestingT: t,
			Strict:   true,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run CLI feature tests")
	}
}
