package dockerfile

import (
	"os"
	"path/filepath"
	"testing"
)

// TestParseTestdataFiles runs Parse against every fixture Dockerfile in
// testdata/, checking only that parsing succeeds and produces at least one
// stage. Per-instruction assertions live in parser_test.go; these fixtures
// exist to exercise realistic, multi-instruction Dockerfiles end to end.
func TestParseTestdataFiles(t *testing.T) {
	testdataDir := "testdata"

	files, err := os.ReadDir(testdataDir)
	if err != nil {
		t.Fatalf("failed to read testdata directory: %v", err)
	}

	found := 0
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".dockerfile" {
			continue
		}
		found++
		t.Run(f.Name(), func(t *testing.T) {
			path := filepath.Join(testdataDir, f.Name())
			content, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("failed to read file: %v", err)
			}

			df, err := Parse(content)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}

			if len(df.Stages) == 0 {
				t.Error("expected at least one stage")
			}
			for _, w := range df.Warnings {
				t.Logf("warning: %s", w)
			}
		})
	}
	if found == 0 {
		t.Fatal("expected at least one .dockerfile fixture in testdata/")
	}
}
