package runner

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// Summary is the reduction of an interpreter transcript down to per-host
// outcomes, extracted from the recap lines.
type Summary struct {
	Success     []string `json:"success"`
	Failed      []string `json:"failed"`
	Unreachable []string `json:"unreachable"`
}

var (
	recapOKRe          = regexp.MustCompile(`^(\S+)\s+:.*ok=\d+`)
	recapFailedRe      = regexp.MustCompile(`^(\S+)\s+:.*failed=[1-9]\d*`)
	recapUnreachableRe = regexp.MustCompile(`^(\S+)\s+:.*unreachable=[1-9]\d*`)
)

// ParseTranscript scans transcript lines for recap entries and buckets each
// mentioned host. A host counts as a success only when its recap line shows
// ok counts without failed or unreachable counts on the same line. Hosts are
// kept in first-occurrence order and deduplicated per bucket; a host that
// appears on contradictory lines lands in every bucket it matched, which is
// surfaced at debug level for operators reading raw transcripts.
func ParseTranscript(lines []string) Summary {
	summary := Summary{
		Success:     []string{},
		Failed:      []string{},
		Unreachable: []string{},
	}
	seenOK := map[string]bool{}
	seenFailed := map[string]bool{}
	seenUnreachable := map[string]bool{}

	for _, raw := range lines {
		line := strings.TrimSpace(raw)

		if m := recapFailedRe.FindStringSubmatch(line); m != nil {
			if !seenFailed[m[1]] {
				seenFailed[m[1]] = true
				summary.Failed = append(summary.Failed, m[1])
			}
		}
		if m := recapUnreachableRe.FindStringSubmatch(line); m != nil {
			if !seenUnreachable[m[1]] {
				seenUnreachable[m[1]] = true
				summary.Unreachable = append(summary.Unreachable, m[1])
			}
		}
		if m := recapOKRe.FindStringSubmatch(line); m != nil {
			failed := recapFailedRe.MatchString(line)
			unreachable := recapUnreachableRe.MatchString(line)
			if !failed && !unreachable && !seenOK[m[1]] {
				seenOK[m[1]] = true
				summary.Success = append(summary.Success, m[1])
			}
		}
	}

	for _, host := range summary.Success {
		if seenFailed[host] || seenUnreachable[host] {
			log.Debug().Str("host", host).Msg("host appears in multiple recap buckets")
		}
	}
	return summary
}
