// Package doctor runs local diagnostics before a share is attempted: are the
// helper binaries present, can a port be allocated, is a previous session
// still lingering, and is the configuration safe.
package doctor

import (
	"fmt"
	"sort"

	"github.com/treykane/termshare/internal/appconfig"
	"github.com/treykane/termshare/internal/binlocate"
	"github.com/treykane/termshare/internal/portalloc"
	"github.com/treykane/termshare/internal/procgroup"
	"github.com/treykane/termshare/internal/security"
	"github.com/treykane/termshare/internal/supervisor"
	"github.com/treykane/termshare/internal/tools"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Issue struct {
	Severity       Severity `json:"severity"`
	Check          string   `json:"check"`
	Target         string   `json:"target"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

// Binary is a resolved helper tool.
type Binary struct {
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
}

type Report struct {
	Binaries []Binary `json:"binaries"`
	Issues   []Issue  `json:"issues"`
}

// Run loads the config file and checks it.
func Run() (Report, error) {
	cfg, err := appconfig.Load()
	if err != nil {
		return Report{}, err
	}
	runtimePath, err := appconfig.RuntimeFilePath()
	if err != nil {
		return Report{}, err
	}
	report := Check(cfg, runtimePath)
	if audit, err := security.RunLocalAudit(); err == nil {
		report.Issues = appendAudit(report.Issues, audit.Findings)
	} else {
		report.Issues = appendAudit(report.Issues, security.AuditConfig(cfg))
	}
	sortIssues(report.Issues)
	return report, nil
}

// Check runs every diagnostic that does not depend on the config directory
// layout. Security findings are added by Run.
func Check(cfg appconfig.Config, runtimePath string) Report {
	var report Report
	loc := binlocate.FromConfig(cfg.Binaries)
	for _, name := range []string{tools.TerminalServerName, tools.TunnelClientName} {
		p, err := loc.Resolve(name)
		if err != nil {
			report.Issues = append(report.Issues, Issue{
				Severity:       SeverityHigh,
				Check:          "binary",
				Target:         name,
				Message:        security.RedactMessage(err.Error()),
				Recommendation: fmt.Sprintf("install %s or set binaries.%s in config.yaml", name, name),
			})
			report.Binaries = append(report.Binaries, Binary{Name: name})
			continue
		}
		report.Binaries = append(report.Binaries, Binary{Name: name, Path: p})
	}

	if _, err := portalloc.Allocate(supervisor.ProbeHost(cfg.Terminal.BindAddress)); err != nil {
		report.Issues = append(report.Issues, Issue{
			Severity:       SeverityHigh,
			Check:          "port-allocation",
			Target:         cfg.Terminal.BindAddress,
			Message:        err.Error(),
			Recommendation: "check terminal.bind_address names a local interface",
		})
	}

	report.Issues = append(report.Issues, runtimeIssues(runtimePath)...)
	sortIssues(report.Issues)
	return report
}

func runtimeIssues(path string) []Issue {
	rec, err := supervisor.LoadRuntime(path)
	if err != nil {
		return []Issue{{
			Severity:       SeverityMedium,
			Check:          "runtime-unreadable",
			Target:         path,
			Message:        security.RedactMessage(err.Error()),
			Recommendation: "remove the runtime file; it is rewritten on the next start",
		}}
	}
	if rec == nil {
		return nil
	}
	if procgroup.Alive(rec.OwnerPID) {
		return []Issue{{
			Severity:       SeverityLow,
			Check:          "session-active",
			Target:         rec.SessionID,
			Message:        fmt.Sprintf("a session is running under pid %d", rec.OwnerPID),
			Recommendation: "stop it before starting another share",
		}}
	}
	terminal, tunnel := supervisor.RecordAlive(*rec)
	if terminal || tunnel {
		return []Issue{{
			Severity:       SeverityMedium,
			Check:          "runtime-orphan",
			Target:         rec.SessionID,
			Message:        fmt.Sprintf("helper processes outlived their session (terminal=%v tunnel=%v)", terminal, tunnel),
			Recommendation: "the next start reaps them; run `termshare stop` to do it now",
		}}
	}
	return []Issue{{
		Severity:       SeverityLow,
		Check:          "runtime-stale",
		Target:         rec.SessionID,
		Message:        "runtime file refers to a session that is no longer running",
		Recommendation: "no action needed; the next start removes it",
	}}
}

func appendAudit(issues []Issue, findings []security.Finding) []Issue {
	for _, f := range findings {
		sev := SeverityLow
		if f.Severity == security.SeverityMedium {
			sev = SeverityMedium
		}
		if f.Severity == security.SeverityHigh {
			sev = SeverityHigh
		}
		issues = append(issues, Issue{
			Severity:       sev,
			Check:          "security-audit",
			Target:         f.Target,
			Message:        f.Message,
			Recommendation: f.Recommendation,
		})
	}
	return issues
}

func sortIssues(issues []Issue) {
	sort.Slice(issues, func(i, j int) bool {
		ri := severityRank(issues[i].Severity)
		rj := severityRank(issues[j].Severity)
		if ri != rj {
			return ri > rj
		}
		if issues[i].Check != issues[j].Check {
			return issues[i].Check < issues[j].Check
		}
		if issues[i].Target != issues[j].Target {
			return issues[i].Target < issues[j].Target
		}
		return issues[i].Message < issues[j].Message
	})
}

func severityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}
