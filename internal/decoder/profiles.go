package decoder

import "fmt"

// Kind tags a decoding profile. Dispatch on it is always an explicit
// switch; adding a profile means extending every switch.
type Kind int

const (
	// DataCleaner turns a raw page chunk into abstract, summary, cleaned
	// text, and question/answer pairs.
	DataCleaner Kind = iota
	// EmailWriter drafts a reply to an inbound email, or declines.
	EmailWriter
	// ThreadGrouper groups loose emails into conversation threads.
	ThreadGrouper
)

func (k Kind) String() string {
	switch k {
	case DataCleaner:
		return "data_cleaner"
	case EmailWriter:
		return "email_writer"
	case ThreadGrouper:
		return "thread_grouper"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Tag names used in model responses.
const (
	TagAbstract    = "abstract"
	TagSummary     = "summary"
	TagCleanedText = "cleanedtext"
	TagQuestion    = "question"
	TagAnswer      = "answer"
	TagMessage     = "message"
	TagNoMessage   = "nomessage"
	TagThread      = "thread"
	TagFrom        = "from"
	TagTo          = "to"
	TagSubject     = "subject"
	TagBody        = "body"
)

// DataCleanerMaxChunkTokens is the decoder-facing chunk budget: pages are
// split to this size before refinement.
const DataCleanerMaxChunkTokens = 1024

// ThreadGrouperMaxEmails caps how many emails one grouping call sees.
const ThreadGrouperMaxEmails = 20

// Profile bundles everything one decoding task needs.
type Profile struct {
	Kind     Kind
	System   string
	Template *Template
	Params   Params
}

const dataCleanerSystem = `You clean web pages from a university master's programme site into material for a retrieval system. For the text you are given, respond with exactly these tagged sections:

<abstract>One or two sentences stating what this text covers.</abstract>
<summary>A faithful condensed version of the text.</summary>
<cleanedtext>The text itself, with navigation debris, duplicated headings, and broken markdown removed. Keep every fact. Do not add anything.</cleanedtext>
<questions>
<question>A question a prospective student could ask that this text answers.</question>
<answer>The answer, using only this text.</answer>
</questions>

Write questions and answers in the language of the text. Emit the same number of <question> and <answer> tags, answers in the same order as their questions.`

var dataCleanerTemplate = MustTemplate("data_cleaner",
	`Current date and time: {datetime}

Previously processed chunks from this page:
{page_history_context}

Cleaned text of the previous chunk:
{previous_chunk_context}

Text to process:
{text}`,
	"datetime", "page_history_context", "previous_chunk_context", "text")

const emailWriterSystem = `You draft email replies on behalf of the person introduced in the prompt.

Decide whether the email deserves a reply from them. If it does, write the reply in the sender's language, grounded strictly on the reference material, and wrap it in <message></message>. If it does not (spam, newsletters, automated notices, or anything needing information you do not have), respond with <nomessage></nomessage> and nothing else. Never invent facts; if the reference material does not answer the question, say so in the reply.`

var emailWriterTemplate = MustTemplate("email_writer",
	`You are assisting {my_name}. {my_description}

Reference material:
{rag_context}

Earlier messages in this conversation:
{thread_context}

From: {sender}
Subject: {subject}

{body}`,
	"my_name", "my_description", "rag_context", "thread_context", "sender", "subject", "body")

const threadGrouperSystem = `You sort emails into conversation threads. Emails belong to the same thread when they continue one exchange: same underlying topic and overlapping participants, including replies with modified subjects. Respond only with the grouping, in this form:

<thread>
<message><from>sender</from><to>recipients</to><subject>subject</subject><body>body</body></message>
</thread>

Repeat <thread> for each conversation. Every input email must appear in exactly one thread, unchanged.`

var threadGrouperTemplate = MustTemplate("thread_grouper",
	`Emails to group:
{emails}`,
	"emails")

// ProfileFor returns the profile for a kind.
func ProfileFor(k Kind) (Profile, error) {
	switch k {
	case DataCleaner:
		return Profile{
			Kind:     DataCleaner,
			System:   dataCleanerSystem,
			Template: dataCleanerTemplate,
			Params: Params{
				MaxNewTokens:   8192,
				Temperature:    0.7,
				TopP:           0.8,
				TopK:           20,
				EnableThinking: true,
			},
		}, nil
	case EmailWriter:
		return Profile{
			Kind:     EmailWriter,
			System:   emailWriterSystem,
			Template: emailWriterTemplate,
			Params: Params{
				MaxNewTokens:   2048,
				Temperature:    0.7,
				TopP:           0.8,
				TopK:           20,
				EnableThinking: true,
			},
		}, nil
	case ThreadGrouper:
		return Profile{
			Kind:     ThreadGrouper,
			System:   threadGrouperSystem,
			Template: threadGrouperTemplate,
			Params: Params{
				MaxNewTokens:   4096,
				Temperature:    0.7,
				TopP:           0.8,
				TopK:           20,
				EnableThinking: false,
			},
		}, nil
	default:
		return Profile{}, fmt.Errorf("unknown profile kind %d", int(k))
	}
}

// Cleaned is the parsed output of a data-cleaner response.
type Cleaned struct {
	Abstract    string
	Summary     string
	CleanedText string
	Questions   []string
	Answers     []string
}

// ParseCleaned extracts the data-cleaner sections from a raw response.
// Absent singleton tags come back empty; the caller decides what a usable
// result requires.
func ParseCleaned(raw string) Cleaned {
	s := RemoveThink(raw)
	out := Cleaned{
		Questions: ExtractAll(s, TagQuestion),
		Answers:   ExtractAll(s, TagAnswer),
	}
	out.Abstract, _ = ExtractFirst(s, TagAbstract)
	out.Summary, _ = ExtractFirst(s, TagSummary)
	out.CleanedText, _ = ExtractFirst(s, TagCleanedText)
	return out
}

// ParseMessage extracts an email-writer reply. ok is false when the model
// declined with <nomessage> or produced no <message> block.
func ParseMessage(raw string) (string, bool) {
	s := RemoveThink(raw)
	if HasTag(s, TagNoMessage) {
		return "", false
	}
	msg, ok := ExtractFirst(s, TagMessage)
	if !ok || msg == "" {
		return "", false
	}
	return msg, true
}

// ThreadMessage is one email inside a parsed thread grouping.
type ThreadMessage struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Thread is one conversation from a thread-grouper response.
type Thread struct {
	Messages []ThreadMessage
}

// ParseThreads extracts the thread grouping from a raw response.
func ParseThreads(raw string) []Thread {
	s := RemoveThink(raw)
	var threads []Thread
	for _, block := range ExtractAll(s, TagThread) {
		var thread Thread
		for _, msg := range ExtractAll(block, TagMessage) {
			m := ThreadMessage{}
			m.From, _ = ExtractFirst(msg, TagFrom)
			m.To, _ = ExtractFirst(msg, TagTo)
			m.Subject, _ = ExtractFirst(msg, TagSubject)
			m.Body, _ = ExtractFirst(msg, TagBody)
			thread.Messages = append(thread.Messages, m)
		}
		if len(thread.Messages) > 0 {
			threads = append(threads, thread)
		}
	}
	return threads
}
