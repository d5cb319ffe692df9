package observability

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	jobmetrics "github.com/keystone-admin/keystone/internal/jobs"
)

type ruleFile struct {
	Groups []struct {
		Name  string `yaml:"name"`
		Rules []struct {
			Alert       string            `yaml:"alert"`
			Expr        string            `yaml:"expr"`
			For         string            `yaml:"for"`
			Labels      map[string]string `yaml:"labels"`
			Annotations map[string]string `yaml:"annotations"`
		} `yaml:"rules"`
	} `yaml:"groups"`
}

var metricRef = regexp.MustCompile(`keystone_[a-z_]+`)

// exportedNames lists every series name the API and worker can expose.
func exportedNames(t *testing.T) map[string]bool {
	t.Helper()
	m := NewMetrics()
	m.ObserveDecision("authorized")
	m.ObserveLogin(true)
	m.requests.WithLabelValues("/", "GET", "200").Inc()
	m.latency.WithLabelValues("/").Observe(0)
	jobmetrics.NewMetrics(m.Registerer())

	families, err := m.Gatherer().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, fam := range families {
		names[fam.GetName()] = true
	}
	// Vectors without children are not gathered.
	names["keystone_jobs_total"] = true
	return names
}

func TestAlertRulesReferenceRealSeriesAndRunbooks(t *testing.T) {
	root := filepath.Join("..", "..")
	data, err := os.ReadFile(filepath.Join(root, "deploy", "prometheus", "alerts", "keystone.yml"))
	require.NoError(t, err)
	runbook, err := os.ReadFile(filepath.Join(root, "docs", "runbook.md"))
	require.NoError(t, err)

	var file ruleFile
	require.NoError(t, yaml.Unmarshal(data, &file))
	require.Len(t, file.Groups, 1)
	require.Equal(t, "keystone", file.Groups[0].Name)

	names := exportedNames(t)
	seen := map[string]bool{}
	for _, rule := range file.Groups[0].Rules {
		t.Run(rule.Alert, func(t *testing.T) {
			require.False(t, seen[rule.Alert], "duplicate alert")
			seen[rule.Alert] = true

			require.Contains(t, []string{"critical", "warning"}, rule.Labels["severity"])
			require.NotEmpty(t, rule.For)
			require.NotEmpty(t, rule.Annotations["summary"])
			require.NotEmpty(t, rule.Annotations["description"])

			refs := metricRef.FindAllString(rule.Expr, -1)
			require.NotEmpty(t, refs)
			for _, ref := range refs {
				require.True(t, names[ref], "%s is not exported", ref)
			}

			link := rule.Annotations["runbook"]
			require.True(t, strings.HasPrefix(link, "docs/runbook.md#"), link)
			anchor := strings.TrimPrefix(link, "docs/runbook.md#")
			require.Contains(t, string(runbook), "\n## "+anchor+"\n")
		})
	}
	require.Len(t, seen, 4)
}
