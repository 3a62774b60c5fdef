package email

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/dia-upm/muia-rag/internal/config"
	"github.com/dia-upm/muia-rag/internal/decoder"
	"github.com/dia-upm/muia-rag/internal/index"
)

// Mailbox is the inbox boundary the agent drives.
type Mailbox interface {
	Unseen(lastNDays int) ([]Message, error)
	MarkSeen(uid uint32) error
	AppendDraft(folder string, raw []byte) error
	Close() error
}

// Sender delivers finished replies.
type Sender interface {
	Send(to, subject, body string) error
}

// Retriever pulls knowledge-base context for a query. Nil disables
// grounding.
type Retriever interface {
	Retrieve(ctx context.Context, query, variant, encoderName string, topK int) ([]index.Scored, error)
}

// ragContextTopK bounds the retrieved passages per reply.
const ragContextTopK = 5

// Agent reads unread mail, reconstructs threads, and answers each thread
// once through the decoder's email-writer profile. Threads the model
// declines are marked read without a reply; decoder failures leave the
// thread unread for the next run.
type Agent struct {
	mailbox   Mailbox
	sender    Sender
	client    decoder.Client
	retriever Retriever
	writer    decoder.Profile
	grouper   decoder.Profile
	cfg       config.EmailConfig
	variant   string
	encoder   string
	logger    *zap.Logger
}

// AgentOptions wires an Agent.
type AgentOptions struct {
	Mailbox   Mailbox
	Sender    Sender
	Client    decoder.Client
	Retriever Retriever
	Config    config.EmailConfig
	// Variant and Encoder select the collection and vector used for
	// reply grounding.
	Variant string
	Encoder string
	Logger  *zap.Logger
}

// NewAgent builds an Agent.
func NewAgent(opts AgentOptions) (*Agent, error) {
	writer, err := decoder.ProfileFor(decoder.EmailWriter)
	if err != nil {
		return nil, err
	}
	grouper, err := decoder.ProfileFor(decoder.ThreadGrouper)
	if err != nil {
		return nil, err
	}
	return &Agent{
		mailbox:   opts.Mailbox,
		sender:    opts.Sender,
		client:    opts.Client,
		retriever: opts.Retriever,
		writer:    writer,
		grouper:   grouper,
		cfg:       opts.Config,
		variant:   opts.Variant,
		encoder:   opts.Encoder,
		logger:    opts.Logger,
	}, nil
}

// Run processes the inbox once and returns the number of replies
// written.
func (a *Agent) Run(ctx context.Context) (int, error) {
	messages, err := a.mailbox.Unseen(a.cfg.LastNDays)
	if err != nil {
		return 0, err
	}

	kept := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if a.blacklisted(msg.From) {
			a.logger.Info("skipping blacklisted sender", zap.String("from", msg.From))
			continue
		}
		kept = append(kept, msg)
	}
	if a.cfg.MaxEmails > 0 && len(kept) > a.cfg.MaxEmails {
		kept = kept[:a.cfg.MaxEmails]
	}
	if len(kept) == 0 {
		return 0, nil
	}

	replies := 0
	for _, thread := range a.groupThreads(ctx, kept) {
		if err := ctx.Err(); err != nil {
			return replies, err
		}
		sent, err := a.answerThread(ctx, thread)
		if err != nil {
			a.logger.Warn("thread left unread",
				zap.String("subject", thread.Root().Subject),
				zap.Error(err),
			)
			continue
		}
		if sent {
			replies++
		}
	}
	return replies, nil
}

// groupThreads asks the decoder's thread-grouper profile for a grouping
// and matches it back to the fetched messages; any failure falls back to
// the subject/participant heuristic.
func (a *Agent) groupThreads(ctx context.Context, messages []Message) []Thread {
	if len(messages) < 2 || len(messages) > decoder.ThreadGrouperMaxEmails {
		return GroupThreads(messages)
	}

	prompt, err := a.grouper.Template.Render(map[string]string{
		"emails": formatForGrouping(messages),
	})
	if err != nil {
		return GroupThreads(messages)
	}
	raw, err := a.client.Generate(ctx, decoder.Request{
		System: a.grouper.System,
		Prompt: prompt,
		Params: a.grouper.Params,
	})
	if err != nil {
		a.logger.Warn("decoder grouping failed, using heuristic", zap.Error(err))
		return GroupThreads(messages)
	}

	threads := matchThreads(decoder.ParseThreads(raw), messages)
	if threads == nil {
		a.logger.Warn("decoder grouping did not cover the inbox, using heuristic")
		return GroupThreads(messages)
	}
	return threads
}

func formatForGrouping(messages []Message) string {
	var b strings.Builder
	for i, msg := range messages {
		fmt.Fprintf(&b, "Email %d\nFrom: %s\nTo: %s\nSubject: %s\n%s\n\n",
			i+1, msg.From, strings.Join(msg.To, ", "), msg.Subject, StripQuoted(msg.Body))
	}
	return strings.TrimSpace(b.String())
}

// matchThreads maps a parsed grouping back onto the fetched messages by
// subject and sender. Returns nil unless every message lands in exactly
// one thread.
func matchThreads(parsed []decoder.Thread, messages []Message) []Thread {
	remaining := make(map[int]Message, len(messages))
	for i, msg := range messages {
		remaining[i] = msg
	}

	var threads []Thread
	for _, p := range parsed {
		var thread Thread
		for _, pm := range p.Messages {
			found := -1
			for i, msg := range remaining {
				if strings.EqualFold(msg.From, pm.From) &&
					NormalizeSubject(msg.Subject) == NormalizeSubject(pm.Subject) {
					found = i
					break
				}
			}
			if found < 0 {
				return nil
			}
			thread.Messages = append(thread.Messages, remaining[found])
			delete(remaining, found)
		}
		if len(thread.Messages) > 0 {
			sort.SliceStable(thread.Messages, func(i, j int) bool {
				return thread.Messages[i].Date.Before(thread.Messages[j].Date)
			})
			threads = append(threads, thread)
		}
	}
	if len(remaining) > 0 {
		return nil
	}
	return threads
}

// answerThread drafts one reply for a thread. sent reports whether a
// reply was produced; a nil error with sent=false means the model
// declined and the thread was marked read.
func (a *Agent) answerThread(ctx context.Context, thread Thread) (bool, error) {
	latest := thread.Latest()
	question := StripQuoted(latest.Body)

	prompt, err := a.writer.Template.Render(map[string]string{
		"my_name":        a.cfg.MyName,
		"my_description": a.cfg.MyDescription,
		"rag_context":    a.ragContext(ctx, latest.Subject+"\n"+question),
		"thread_context": ThreadContext(thread),
		"sender":         latest.From,
		"subject":        latest.Subject,
		"body":           question,
	})
	if err != nil {
		return false, err
	}

	raw, err := a.client.Generate(ctx, decoder.Request{
		System: a.writer.System,
		Prompt: prompt,
		Params: a.writer.Params,
	})
	if err != nil {
		return false, fmt.Errorf("decoder call: %w", err)
	}

	reply, ok := decoder.ParseMessage(raw)
	if !ok {
		a.logger.Info("model declined to reply", zap.String("subject", latest.Subject))
		return false, a.markThreadSeen(thread)
	}

	to := latest.From
	if a.cfg.SendToSelf {
		to = a.cfg.SMTPAddress
	}
	subject := ReplySubject(latest.Subject)
	body := reply + "\n\n" + QuoteBody(latest.Body)

	if a.cfg.SaveAsDraft {
		draft := FormatDraft(a.cfg.SMTPAddress, to, subject, body)
		if err := a.mailbox.AppendDraft(a.cfg.DraftsFolder, draft); err != nil {
			return false, err
		}
	} else {
		if err := a.sender.Send(to, subject, body); err != nil {
			return false, err
		}
	}

	totalRepliesWritten.Inc()
	return true, a.markThreadSeen(thread)
}

func (a *Agent) markThreadSeen(thread Thread) error {
	for _, msg := range thread.Messages {
		if err := a.mailbox.MarkSeen(msg.UID); err != nil {
			return fmt.Errorf("marking %d seen: %w", msg.UID, err)
		}
	}
	return nil
}

// ragContext retrieves grounding passages for the reply prompt. Without
// a retriever, or when retrieval fails, the prompt states that no
// reference material is available.
func (a *Agent) ragContext(ctx context.Context, query string) string {
	if a.retriever == nil {
		return "None."
	}
	hits, err := a.retriever.Retrieve(ctx, query, a.variant, a.encoder, ragContextTopK)
	if err != nil {
		a.logger.Warn("retrieval failed, replying ungrounded", zap.Error(err))
		return "None."
	}
	if len(hits) == 0 {
		return "None."
	}

	var b strings.Builder
	for _, hit := range hits {
		text, _ := hit.Payload["text"].(string)
		if text == "" {
			continue
		}
		b.WriteString("- " + text + "\n")
	}
	if b.Len() == 0 {
		return "None."
	}
	return strings.TrimSpace(b.String())
}

func (a *Agent) blacklisted(address string) bool {
	addr := strings.ToLower(strings.TrimSpace(address))
	for _, blocked := range a.cfg.BlacklistedEmails {
		if addr == strings.ToLower(blocked) {
			return true
		}
	}
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return true
	}
	domain := addr[at+1:]
	for _, blocked := range a.cfg.BlacklistedDomains {
		if domain == strings.ToLower(blocked) {
			return true
		}
	}
	return false
}
