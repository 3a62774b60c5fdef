// Package email reads the inbox, reconstructs conversation threads, and
// drafts retrieval-grounded replies through the decoder.
package email

import (
	"fmt"
	"strings"
	"time"
)

// Message is one inbox email reduced to what the agent needs. Body holds
// the first text/plain part; attachments are never read.
type Message struct {
	UID     uint32
	From    string
	To      []string
	Subject string
	Date    time.Time
	Body    string
}

// NormalizeSubject lowers the subject and strips reply and forward
// prefixes, repeatedly, so "RE: Fwd: Beca" and "beca" compare equal.
func NormalizeSubject(subject string) string {
	s := strings.ToLower(strings.TrimSpace(subject))
	for {
		trimmed := s
		for _, prefix := range []string{"re:", "fw:", "fwd:"} {
			trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, prefix))
		}
		if trimmed == s {
			return s
		}
		s = trimmed
	}
}

// StripQuoted removes quoted reply text: "> " lines and everything from
// an "On ... wrote:" attribution line onward.
func StripQuoted(body string) string {
	var kept []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		lower := strings.ToLower(trimmed)
		if strings.HasPrefix(lower, "on ") && strings.HasSuffix(lower, "wrote:") {
			break
		}
		if strings.HasPrefix(lower, "el ") && strings.HasSuffix(lower, "escribió:") {
			break
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// QuoteBody prefixes every line with "> " for inclusion under a reply.
func QuoteBody(body string) string {
	lines := strings.Split(strings.TrimSpace(body), "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}

// ReplySubject prepends "Re: " unless the subject already carries it.
func ReplySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(subject)), "re:") {
		return subject
	}
	return "Re: " + subject
}

func (m Message) String() string {
	return fmt.Sprintf("%s | %s | %s", m.From, m.Subject, m.Date.Format("2006-01-02"))
}
