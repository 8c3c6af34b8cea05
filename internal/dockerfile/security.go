package dockerfile

import (
	"path"
	"path/filepath"
	"strings"
)

// ValidateDockerfileSize checks that the input doesn't exceed the maximum size.
func ValidateDockerfileSize(data []byte) error {
	if len(data) > MaxDockerfileSize {
		return ErrDockerfileTooLarge
	}
	return nil
}

// ValidatePath ensures a path stays within the context root.
// It prevents path traversal attacks via ".." components.
func ValidatePath(contextRoot, p string) error {
	if strings.Contains(p, "\x00") {
		return &ParseError{Message: "path contains null byte"}
	}

	cleaned := filepath.Clean(p)

	if filepath.IsAbs(cleaned) {
		// COPY/ADD source paths are relative to the build context; strip
		// a leading separator rather than rejecting outright.
		cleaned = strings.TrimPrefix(cleaned, string(filepath.Separator))
		cleaned = filepath.Clean(cleaned)
	}

	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return ErrPathTraversal
	}

	for _, part := range strings.Split(cleaned, string(filepath.Separator)) {
		if part == ".." {
			return ErrPathTraversal
		}
	}

	if contextRoot != "" {
		abs := filepath.Join(contextRoot, cleaned)
		rel, err := filepath.Rel(contextRoot, abs)
		if err != nil {
			return &ParseError{Message: "cannot resolve path"}
		}
		if strings.HasPrefix(rel, "..") {
			return ErrPathTraversal
		}
	}

	return nil
}

// ValidateDestPath validates a destination path inside the container.
func ValidateDestPath(p string) error {
	if strings.Contains(p, "\x00") {
		return &ParseError{Message: "destination path contains null byte"}
	}
	return nil
}

// MaterializeGlob expands a COPY/ADD source pattern against the build
// context directory, per spec.md §6: "wildcards expand against the
// directory listing when available, otherwise the literal is used."
//
// contextRoot may be empty (no build context supplied), in which case the
// literal source is returned unexpanded — extraction must still be able to
// produce a best-effort FileAssertion without a build context on disk.
func MaterializeGlob(contextRoot, src string) []string {
	if contextRoot == "" || !strings.ContainsAny(src, "*?[") {
		return []string{src}
	}
	if err := ValidatePath(contextRoot, src); err != nil {
		return []string{src}
	}
	pattern := filepath.Join(contextRoot, filepath.Clean(src))
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return []string{src}
	}
	rel := make([]string, 0, len(matches))
	for _, m := range matches {
		r, err := filepath.Rel(contextRoot, m)
		if err != nil {
			continue
		}
		rel = append(rel, filepath.ToSlash(r))
	}
	if len(rel) == 0 {
		return []string{src}
	}
	return rel
}

// cleanContainerPath lexically cleans a container-side path using POSIX
// (forward-slash) semantics, independent of the host OS running dgossgen.
// Identity keys are normalised this way per spec.md §3.
func cleanContainerPath(p string) string {
	if p == "" {
		return "/"
	}
	cleaned := path.Clean(p)
	return cleaned
}
