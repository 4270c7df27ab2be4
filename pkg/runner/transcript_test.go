package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTranscriptBuckets(t *testing.T) {
	lines := []string{
		"PLAY [all] *********************************************************",
		"TASK [Gathering Facts] *********************************************",
		"ok: [web1]",
		"PLAY RECAP *********************************************************",
		"web1      : ok=3    changed=1    unreachable=0    failed=0    skipped=0",
		"web2      : ok=2    changed=0    unreachable=0    failed=1    skipped=0",
		"web3      : ok=0    changed=0    unreachable=1    failed=0    skipped=0",
	}

	summary := ParseTranscript(lines)

	assert.Equal(t, []string{"web1"}, summary.Success)
	assert.Equal(t, []string{"web2"}, summary.Failed)
	assert.Equal(t, []string{"web3"}, summary.Unreachable)
}

func TestParseTranscriptFailedLineIsNotSuccess(t *testing.T) {
	// ok counts appear on the same line as the failure marker
	summary := ParseTranscript([]string{
		"web1 : ok=5    changed=2    unreachable=0    failed=2",
	})

	assert.Empty(t, summary.Success)
	assert.Equal(t, []string{"web1"}, summary.Failed)
}

func TestParseTranscriptDeduplicatesAndKeepsOrder(t *testing.T) {
	summary := ParseTranscript([]string{
		"web2 : ok=1    changed=0    unreachable=0    failed=0",
		"web1 : ok=1    changed=0    unreachable=0    failed=0",
		"web2 : ok=1    changed=0    unreachable=0    failed=0",
	})

	assert.Equal(t, []string{"web2", "web1"}, summary.Success)
}

func TestParseTranscriptContradictoryLines(t *testing.T) {
	// two recap lines disagree about the same host; both observations are kept
	summary := ParseTranscript([]string{
		"web1 : ok=3    changed=1    unreachable=0    failed=0",
		"web1 : ok=0    changed=0    unreachable=0    failed=1",
	})

	assert.Equal(t, []string{"web1"}, summary.Success)
	assert.Equal(t, []string{"web1"}, summary.Failed)
}

func TestParseTranscriptIdempotent(t *testing.T) {
	lines := []string{
		"web1 : ok=3    changed=1    unreachable=0    failed=0",
		"web1 : ok=0    changed=0    unreachable=0    failed=1",
		"web2 : ok=0    changed=0    unreachable=1    failed=0",
	}

	first := ParseTranscript(lines)
	second := ParseTranscript(lines)

	assert.Equal(t, first, second)
}

func TestParseTranscriptIgnoresNonRecapLines(t *testing.T) {
	summary := ParseTranscript([]string{
		"TASK [deploy : copy artifact] **************************",
		"changed: [web1]",
		"fatal: [web2]: FAILED! => {\"msg\": \"boom\"}",
	})

	assert.Empty(t, summary.Success)
	assert.Empty(t, summary.Failed)
	assert.Empty(t, summary.Unreachable)
}

func TestParseTranscriptEmpty(t *testing.T) {
	summary := ParseTranscript(nil)

	assert.NotNil(t, summary.Success)
	assert.Empty(t, summary.Success)
	assert.Empty(t, summary.Failed)
	assert.Empty(t, summary.Unreachable)
}
