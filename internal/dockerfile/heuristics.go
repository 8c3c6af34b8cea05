package dockerfile

import (
	"regexp"
	"strings"
)

// ServiceHint maps a base-image substring to a human-readable hint plus up
// to three assertions to contribute when it matches: a process, a canonical
// config file, and a version-probe command. Process/ConfigFile/VersionCommand
// are each optional; an empty one is simply skipped. Policy's ServicePatterns
// field lets a caller extend this table via .dgossgen.yml, per spec.md
// §4.4's closing sentence.
type ServiceHint struct {
	ImageSubstring string
	Hint           string
	Process        string
	ConfigFile     string
	VersionCommand string
}

var defaultServiceHints = []ServiceHint{
	{ImageSubstring: "nginx", Hint: "nginx web server: likely listens on 80/tcp, config under /etc/nginx",
		Process: "nginx", ConfigFile: "/etc/nginx/nginx.conf", VersionCommand: "nginx -v"},
	{ImageSubstring: "postgres", Hint: "PostgreSQL database: likely listens on 5432/tcp, data under /var/lib/postgresql",
		Process: "postgres", ConfigFile: "/var/lib/postgresql/data/postgresql.conf", VersionCommand: "postgres --version"},
	{ImageSubstring: "mysql", Hint: "MySQL/MariaDB database: likely listens on 3306/tcp",
		Process: "mysqld", ConfigFile: "/etc/mysql/my.cnf", VersionCommand: "mysqld --version"},
	{ImageSubstring: "redis", Hint: "Redis: likely listens on 6379/tcp",
		Process: "redis-server", ConfigFile: "/etc/redis/redis.conf", VersionCommand: "redis-server --version"},
	{ImageSubstring: "node", Hint: "Node.js runtime: process likely runs under the node user",
		Process: "node", VersionCommand: "node --version"},
	{ImageSubstring: "python", Hint: "Python runtime",
		Process: "python3", VersionCommand: "python3 --version"},
	{ImageSubstring: "php", Hint: "PHP runtime: FPM listens on 9000/tcp by default",
		Process: "php-fpm", ConfigFile: "/usr/local/etc/php/php.ini", VersionCommand: "php --version"},
	{ImageSubstring: "httpd", Hint: "Apache httpd: likely listens on 80/tcp, config under /usr/local/apache2/conf",
		Process: "httpd", ConfigFile: "/usr/local/apache2/conf/httpd.conf", VersionCommand: "httpd -v"},
	{ImageSubstring: "golang", Hint: "Go build toolchain image, usually a builder stage rather than the final runtime"},
	{ImageSubstring: "alpine", Hint: "Alpine base: BusyBox userland, apk package manager"},
	{ImageSubstring: "debian", Hint: "Debian base: apt package manager"},
	{ImageSubstring: "ubuntu", Hint: "Ubuntu base: apt package manager"},
}

// ApplyServiceHints appends every hint whose substring matches the base
// image, in table order (built-ins first, then policy-supplied extras),
// deduplicated against hints already present. Each match also contributes
// up to three Medium-confidence assertions with provenance "<substring>
// service pattern", per spec.md §4.4.
func ApplyServiceHints(rcm *RuntimeContractModel, extra []ServiceHint) {
	image := strings.ToLower(rcm.BaseImage)
	for _, h := range defaultServiceHints {
		applyOneServiceHint(rcm, image, h)
	}
	for _, h := range extra {
		applyOneServiceHint(rcm, image, h)
	}
}

func applyOneServiceHint(rcm *RuntimeContractModel, lowerImage string, h ServiceHint) {
	if h.ImageSubstring == "" || !strings.Contains(lowerImage, strings.ToLower(h.ImageSubstring)) {
		return
	}

	found := false
	for _, existing := range rcm.ServiceHints {
		if existing == h.Hint {
			found = true
			break
		}
	}
	if !found {
		rcm.ServiceHints = append(rcm.ServiceHints, h.Hint)
	}

	reason := h.ImageSubstring + " service pattern"
	if h.Process != "" {
		rcm.Put(&Assertion{
			Key:         ProcessKey(h.Process),
			Kind:        KindProcess,
			Confidence:  ConfidenceMedium,
			Provenance:  Provenance{Reasons: []string{reason}},
			ProcessName: h.Process,
			Running:     true,
		})
	}
	if h.ConfigFile != "" {
		rcm.Put(&Assertion{
			Key:        FileKey(h.ConfigFile),
			Kind:       KindFile,
			Confidence: ConfidenceMedium,
			Provenance: Provenance{Reasons: []string{reason}},
			Path:       cleanContainerPath(h.ConfigFile),
			Exists:     true,
			FileType:   "file",
		})
	}
	if h.VersionCommand != "" {
		label := deriveCommandLabel(h.ImageSubstring + "-version")
		rcm.Put(&Assertion{
			Key:          CommandKey(label),
			Kind:         KindCommand,
			Confidence:   ConfidenceMedium,
			Provenance:   Provenance{Reasons: []string{reason}},
			Label:        label,
			Exec:         h.VersionCommand,
			ExpectedExit: 0,
		})
	}
}

// packageInstallPattern recognizes the common package-manager install verbs
// across apt, apk, yum/dnf, pip, npm, and composer, capturing the manager
// name and the package list tail separately so the fallback existence check
// can be rendered in that manager's own syntax.
var packageInstallPattern = regexp.MustCompile(
	`\b(apt-get|apt|apk|yum|dnf)\s+(?:-\S+\s+)*(?:install|add)\s+(?:-\S+\s+)*([^&|;]+)|` +
		`\b(pip[23]?)\s+install\s+(?:-\S+\s+)*([^&|;]+)|` +
		`\b(npm)\s+install\s+(?:-\S+\s+)*(?:-g\s+)?([^&|;]+)|` +
		`\b(composer)\s+(?:global\s+)?require\s+(?:-\S+\s+)*([^&|;]+)`)

var useraddPattern = regexp.MustCompile(`\b(?:useradd|adduser)\b([^&|;]*)`)
var userFlagPattern = regexp.MustCompile(`(?:^|\s)(-u|--uid)\s+(\d+)`)

// versionCheckCommands hardcodes a version-check invocation for the handful
// of packages common enough to warrant one directly, mirroring
// original_source's extractor/heuristics.rs table. Everything else falls
// back to packageManagerCheckCommand's generic existence check.
var versionCheckCommands = map[string]string{
	"nginx": "nginx -v",
	"curl":  "curl --version",
	"git":   "git --version",
}

// packageManagerCheckCommand renders a package-manager-native existence
// check for a package with no hardcoded version command, per
// original_source's generator/mod.rs PackageInstalled variant.
func packageManagerCheckCommand(manager, pkg string) string {
	switch manager {
	case "apt-get", "apt":
		return "dpkg -s " + pkg
	case "apk":
		return "apk info -e " + pkg
	case "yum", "dnf":
		return "rpm -q " + pkg
	case "pip", "pip2", "pip3":
		return "pip show " + pkg
	case "npm":
		return "npm list -g " + pkg
	case "composer":
		return "composer show " + pkg
	default:
		return ""
	}
}

// applyRunHeuristics inspects a RUN instruction's already-expanded shell
// text for package installs and user creation, producing Low-confidence
// assertions: these are inferences from shell text, not explicit Dockerfile
// declarations, so they sit below the Medium tier that direct instructions
// get (spec.md §4.4's confidence-ordering intent).
func applyRunHeuristics(rcm *RuntimeContractModel, instr Instruction) {
	text := strings.Join(instr.Args, " ")

	for _, m := range packageInstallPattern.FindAllStringSubmatch(text, -1) {
		manager := firstNonEmpty(m[1], m[3], m[5], m[7])
		pkgList := firstNonEmpty(m[2], m[4], m[6], m[8])
		for _, pkg := range strings.Fields(pkgList) {
			pkg = strings.Trim(pkg, "\"'")
			if pkg == "" || strings.HasPrefix(pkg, "-") {
				continue
			}
			check := versionCheckCommands[pkg]
			if check == "" {
				check = packageManagerCheckCommand(manager, pkg)
			}
			if check == "" {
				continue
			}
			label := deriveCommandLabel("package-" + pkg)
			rcm.Put(&Assertion{
				Key:          CommandKey(label),
				Kind:         KindCommand,
				Confidence:   ConfidenceLow,
				Provenance:   Provenance{SourceLine: instr.Line, Reasons: []string{"package installed by RUN: " + pkg}},
				Label:        label,
				Exec:         check,
				ExpectedExit: 0,
			})
		}
	}

	for _, m := range useraddPattern.FindAllStringSubmatch(text, -1) {
		rest := strings.TrimSpace(m[1])
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		name := fields[len(fields)-1]
		if strings.HasPrefix(name, "-") {
			continue
		}
		spec := name
		if fm := userFlagPattern.FindStringSubmatch(rest); fm != nil {
			spec = fm[2]
		}
		rcm.Put(&Assertion{
			Key:        UserKey(spec),
			Kind:       KindUser,
			Confidence: ConfidenceLow,
			Provenance: Provenance{SourceLine: instr.Line, Reasons: []string{"user created by RUN: " + name}},
			UserSpec:   spec,
		})
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
