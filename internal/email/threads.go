package email

import (
	"sort"
	"strings"
)

// Thread is one reconstructed conversation, oldest message first. The
// first message is taken as the thread root; replies go to the newest
// message's sender.
type Thread struct {
	Messages []Message
}

// Root returns the oldest message of the thread.
func (t Thread) Root() Message {
	return t.Messages[0]
}

// Latest returns the newest message of the thread.
func (t Thread) Latest() Message {
	return t.Messages[len(t.Messages)-1]
}

// GroupThreads reconstructs threads from loose messages: two messages
// belong together when their normalized subjects match and they share at
// least one participant. This is a heuristic; modified subjects split
// threads and busy subjects can merge unrelated ones.
func GroupThreads(messages []Message) []Thread {
	ordered := append([]Message(nil), messages...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.Before(ordered[j].Date)
	})

	var threads []Thread
	for _, msg := range ordered {
		placed := false
		for i := range threads {
			if sameThread(threads[i], msg) {
				threads[i].Messages = append(threads[i].Messages, msg)
				placed = true
				break
			}
		}
		if !placed {
			threads = append(threads, Thread{Messages: []Message{msg}})
		}
	}
	return threads
}

func sameThread(t Thread, msg Message) bool {
	if NormalizeSubject(t.Root().Subject) != NormalizeSubject(msg.Subject) {
		return false
	}
	for _, existing := range t.Messages {
		if shareParticipant(existing, msg) {
			return true
		}
	}
	return false
}

func shareParticipant(a, b Message) bool {
	seen := make(map[string]bool, len(a.To)+1)
	seen[strings.ToLower(a.From)] = true
	for _, addr := range a.To {
		seen[strings.ToLower(addr)] = true
	}
	if seen[strings.ToLower(b.From)] {
		return true
	}
	for _, addr := range b.To {
		if seen[strings.ToLower(addr)] {
			return true
		}
	}
	return false
}

// ThreadContext renders every message before the latest one, quoted text
// stripped, for the reply prompt. Empty when the thread has no history.
func ThreadContext(t Thread) string {
	if len(t.Messages) < 2 {
		return "None."
	}
	var b strings.Builder
	for _, msg := range t.Messages[:len(t.Messages)-1] {
		b.WriteString("From: " + msg.From + "\n")
		b.WriteString("Subject: " + msg.Subject + "\n")
		b.WriteString(StripQuoted(msg.Body) + "\n\n")
	}
	return strings.TrimSpace(b.String())
}
