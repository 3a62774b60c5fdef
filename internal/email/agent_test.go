package email

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dia-upm/muia-rag/internal/config"
	"github.com/dia-upm/muia-rag/internal/decoder"
	"github.com/dia-upm/muia-rag/internal/index"
)

type fakeMailbox struct {
	messages []Message
	seen     map[uint32]bool
	drafts   [][]byte
	err      error
}

func newFakeMailbox(messages ...Message) *fakeMailbox {
	return &fakeMailbox{messages: messages, seen: make(map[uint32]bool)}
}

func (f *fakeMailbox) Unseen(int) ([]Message, error) { return f.messages, f.err }

func (f *fakeMailbox) MarkSeen(uid uint32) error {
	f.seen[uid] = true
	return nil
}

func (f *fakeMailbox) AppendDraft(_ string, raw []byte) error {
	f.drafts = append(f.drafts, raw)
	return nil
}

func (f *fakeMailbox) Close() error { return nil }

type fakeSender struct {
	to       []string
	subjects []string
	bodies   []string
	err      error
}

func (f *fakeSender) Send(to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.to = append(f.to, to)
	f.subjects = append(f.subjects, subject)
	f.bodies = append(f.bodies, body)
	return nil
}

type fakeRetriever struct {
	hits  []index.Scored
	query string
}

func (f *fakeRetriever) Retrieve(_ context.Context, query, _, _ string, _ int) ([]index.Scored, error) {
	f.query = query
	return f.hits, nil
}

func testEmailConfig() config.EmailConfig {
	return config.EmailConfig{
		SMTPAddress:        "muia@fi.upm.es",
		MyName:             "Coordinación MUIA",
		MyDescription:      "Coordina el master universitario en inteligencia artificial.",
		MaxEmails:          10,
		BlacklistedEmails:  []string{"spam@example.com"},
		BlacklistedDomains: []string{"notifications.example.org"},
	}
}

func newTestAgent(t *testing.T, mailbox Mailbox, sender Sender, client decoder.Client, retriever Retriever, cfg config.EmailConfig) *Agent {
	t.Helper()
	a, err := NewAgent(AgentOptions{
		Mailbox:   mailbox,
		Sender:    sender,
		Client:    client,
		Retriever: retriever,
		Config:    cfg,
		Variant:   "lm_cleaned_text_subchunks",
		Encoder:   "bge_small",
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)
	return a
}

func inboundMessage() Message {
	return Message{
		UID:     7,
		From:    "alumno@example.com",
		To:      []string{"muia@fi.upm.es"},
		Subject: "Plazo de admisión",
		Date:    day(1),
		Body:    "¿Cuándo abre el plazo de admisión?",
	}
}

func TestAgentSendsGroundedReply(t *testing.T) {
	mailbox := newFakeMailbox(inboundMessage())
	sender := &fakeSender{}
	client := &decoder.ScriptedClient{Responses: []string{
		"<message>El plazo de admisión abre en marzo.</message>",
	}}
	retriever := &fakeRetriever{hits: []index.Scored{
		{ID: 0, Score: 0.9, Payload: map[string]any{"text": "el plazo de admision abre en marzo"}},
	}}

	a := newTestAgent(t, mailbox, sender, client, retriever, testEmailConfig())
	replies, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, replies)

	require.Len(t, sender.to, 1)
	assert.Equal(t, "alumno@example.com", sender.to[0])
	assert.Equal(t, "Re: Plazo de admisión", sender.subjects[0])
	assert.Contains(t, sender.bodies[0], "El plazo de admisión abre en marzo.")
	assert.Contains(t, sender.bodies[0], "> ¿Cuándo abre el plazo de admisión?")
	assert.True(t, mailbox.seen[7], "answered message marked read")

	// The reply prompt carried the retrieved passage.
	require.Len(t, client.Requests, 1)
	assert.Contains(t, client.Requests[0].Prompt, "el plazo de admision abre en marzo")
	assert.Contains(t, client.Requests[0].Prompt, "Coordinación MUIA")
	assert.Contains(t, retriever.query, "¿Cuándo abre el plazo de admisión?")
}

func TestAgentDeclinedReplyMarksSeen(t *testing.T) {
	mailbox := newFakeMailbox(inboundMessage())
	sender := &fakeSender{}
	client := &decoder.ScriptedClient{Responses: []string{"<nomessage></nomessage>"}}

	a := newTestAgent(t, mailbox, sender, client, nil, testEmailConfig())
	replies, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, replies)
	assert.Empty(t, sender.to)
	assert.True(t, mailbox.seen[7], "declined message still marked read")
}

func TestAgentDecoderFailureLeavesUnread(t *testing.T) {
	mailbox := newFakeMailbox(inboundMessage())
	sender := &fakeSender{}
	client := &decoder.ScriptedClient{Err: fmt.Errorf("decoder down")}

	a := newTestAgent(t, mailbox, sender, client, nil, testEmailConfig())
	replies, err := a.Run(context.Background())
	require.NoError(t, err, "a failed thread is skipped, not fatal")
	assert.Zero(t, replies)
	assert.False(t, mailbox.seen[7], "failed thread stays unread for the next run")
}

func TestAgentSkipsBlacklisted(t *testing.T) {
	spam := inboundMessage()
	spam.UID = 8
	spam.From = "spam@example.com"
	robot := inboundMessage()
	robot.UID = 9
	robot.From = "noreply@notifications.example.org"

	mailbox := newFakeMailbox(spam, robot)
	sender := &fakeSender{}
	client := &decoder.ScriptedClient{Responses: []string{"<message>hola</message>"}}

	a := newTestAgent(t, mailbox, sender, client, nil, testEmailConfig())
	replies, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, replies)
	assert.Empty(t, client.Requests, "blacklisted mail never reaches the decoder")
}

func TestAgentMaxEmailsCap(t *testing.T) {
	var messages []Message
	for i := 0; i < 5; i++ {
		m := inboundMessage()
		m.UID = uint32(10 + i)
		m.From = fmt.Sprintf("alumno%d@example.com", i)
		m.Subject = fmt.Sprintf("Consulta %d", i)
		messages = append(messages, m)
	}
	cfg := testEmailConfig()
	cfg.MaxEmails = 2

	mailbox := newFakeMailbox(messages...)
	sender := &fakeSender{}
	client := &decoder.ScriptedClient{Responses: []string{
		"<thread><message><from>alumno0@example.com</from><subject>Consulta 0</subject><body>x</body></message></thread>" +
			"<thread><message><from>alumno1@example.com</from><subject>Consulta 1</subject><body>x</body></message></thread>",
		"<message>respuesta</message>",
	}}

	a := newTestAgent(t, mailbox, sender, client, nil, cfg)
	replies, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, replies)
	assert.Len(t, sender.to, 2)
}

func TestAgentSaveAsDraft(t *testing.T) {
	cfg := testEmailConfig()
	cfg.SaveAsDraft = true
	cfg.DraftsFolder = "Drafts"

	mailbox := newFakeMailbox(inboundMessage())
	sender := &fakeSender{}
	client := &decoder.ScriptedClient{Responses: []string{"<message>borrador</message>"}}

	a := newTestAgent(t, mailbox, sender, client, nil, cfg)
	replies, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, replies)
	assert.Empty(t, sender.to, "draft mode must not send")
	require.Len(t, mailbox.drafts, 1)
	assert.Contains(t, string(mailbox.drafts[0]), "To: alumno@example.com")
	assert.Contains(t, string(mailbox.drafts[0]), "borrador")
}

func TestAgentSendToSelf(t *testing.T) {
	cfg := testEmailConfig()
	cfg.SendToSelf = true

	mailbox := newFakeMailbox(inboundMessage())
	sender := &fakeSender{}
	client := &decoder.ScriptedClient{Responses: []string{"<message>prueba</message>"}}

	a := newTestAgent(t, mailbox, sender, client, nil, cfg)
	_, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, sender.to, 1)
	assert.Equal(t, "muia@fi.upm.es", sender.to[0])
}

func TestAgentThreadReplyCarriesHistory(t *testing.T) {
	first := inboundMessage()
	second := Message{
		UID:     8,
		From:    "alumno@example.com",
		To:      []string{"muia@fi.upm.es"},
		Subject: "Re: Plazo de admisión",
		Date:    day(2),
		Body:    "¿Y cuándo cierra?",
	}

	mailbox := newFakeMailbox(first, second)
	sender := &fakeSender{}
	grouping := "<thread>" +
		"<message><from>alumno@example.com</from><subject>Plazo de admisión</subject><body>a</body></message>" +
		"<message><from>alumno@example.com</from><subject>Re: Plazo de admisión</subject><body>b</body></message>" +
		"</thread>"
	client := &decoder.ScriptedClient{Responses: []string{
		grouping,
		"<message>Cierra en junio.</message>",
	}}

	a := newTestAgent(t, mailbox, sender, client, nil, testEmailConfig())
	replies, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, replies, "one reply per thread, not per message")

	require.Len(t, client.Requests, 2)
	replyPrompt := client.Requests[1].Prompt
	assert.Contains(t, replyPrompt, "¿Y cuándo cierra?", "latest message is the one answered")
	assert.Contains(t, replyPrompt, "¿Cuándo abre el plazo de admisión?", "earlier message rides along as history")
	assert.True(t, mailbox.seen[7])
	assert.True(t, mailbox.seen[8])

	require.Len(t, sender.bodies, 1)
	assert.False(t, strings.Contains(sender.bodies[0], "<message>"), "tags never leak into the reply")
}
