// Package parser turns raw access-log lines into typed request records.
//
// A raw line is five "##"-separated fields: hash, user, country, city and the
// web-server request. The request part follows the usual combined-log shape:
//
//	[timestamp] "METHOD endpoint HTTP/x.y" status length "referrer" "agent" rt
//
// Lines that do not match the grammar, or that carry no parseable timestamp,
// yield no record; the caller decides whether dropped lines are tolerated.
package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/dhlab/gallicanav/internal/model"
)

const (
	fieldSep        = "##"
	timestampLayout = "02/Jan/2006:15:04:05 -0700"
	absentField     = "-"
)

var requestRE = regexp.MustCompile(`(?i)^\[(?P<timestamp>.*?)\]\s+"(?P<method>\w+)\s+(?P<endpoint>.*?)\s+(?P<version>HTTP/\d\.\d)+"\s+(?P<status>\d+)?\s*(?P<length>\d+|-)?\s+"(?P<referrer>.*?)"\s+"(?P<agent>.*?)"?"?\s*(?P<elapsed>\d+)?$`)

var (
	idxTimestamp = requestRE.SubexpIndex("timestamp")
	idxEndpoint  = requestRE.SubexpIndex("endpoint")
	idxReferrer  = requestRE.SubexpIndex("referrer")
	idxAgent     = requestRE.SubexpIndex("agent")
)

// ParseLine parses one raw log line. ok is false when the line does not
// match the grammar; no error is returned because a malformed line is data,
// not a fault (the caller counts drops and may run in strict mode).
func ParseLine(raw string) (model.ParsedRequest, bool) {
	parts := strings.SplitN(raw, fieldSep, 5)
	if len(parts) != 5 {
		return model.ParsedRequest{}, false
	}

	// Some upstream collectors prepend "- " noise before the bracket.
	request := strings.TrimLeft(parts[4], " -")

	m := requestRE.FindStringSubmatch(request)
	if m == nil {
		return model.ParsedRequest{}, false
	}

	ts, err := time.Parse(timestampLayout, m[idxTimestamp])
	if err != nil {
		// A record without a timestamp cannot be sessionized.
		return model.ParsedRequest{}, false
	}

	return model.ParsedRequest{
		Timestamp: ts,
		User:      parts[1],
		Endpoint:  m[idxEndpoint],
		Referrer:  normalizeOptional(m[idxReferrer]),
		UserAgent: normalizeOptional(m[idxAgent]),
		Country:   parts[2],
		City:      parts[3],
	}, true
}

// normalizeOptional maps the log convention "-" (field absent) to "".
func normalizeOptional(v string) string {
	if v == absentField {
		return ""
	}
	return v
}
