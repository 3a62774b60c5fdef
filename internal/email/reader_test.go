package email

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawMessage joins header and body lines into an RFC 5322 message.
func rawMessage(lines ...string) string {
	return strings.Join(lines, "\r\n") + "\r\n"
}

func TestExtractPlainTextSinglePart(t *testing.T) {
	raw := rawMessage(
		"From: alumno@example.com",
		"To: muia@fi.upm.es",
		"Subject: Plazos",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Hola, ¿cuándo abre el plazo?",
	)
	text, err := extractPlainText(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "Hola, ¿cuándo abre el plazo?", text)
}

func TestExtractPlainTextPrefersPlainOverHTML(t *testing.T) {
	raw := rawMessage(
		"From: alumno@example.com",
		"To: muia@fi.upm.es",
		"Subject: Plazos",
		"Content-Type: multipart/alternative; boundary=frontera",
		"",
		"--frontera",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>hola</p>",
		"--frontera",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"hola",
		"--frontera--",
	)
	text, err := extractPlainText(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "hola", text)
}

func TestExtractPlainTextDiscardsMessageWithAttachment(t *testing.T) {
	raw := rawMessage(
		"From: alumno@example.com",
		"To: muia@fi.upm.es",
		"Subject: Expediente",
		"Content-Type: multipart/mixed; boundary=frontera",
		"",
		"--frontera",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Adjunto mi expediente.",
		"--frontera",
		"Content-Type: application/pdf",
		"Content-Disposition: attachment; filename=\"expediente.pdf\"",
		"",
		"JVBERi0xLjQK",
		"--frontera--",
	)
	_, err := extractPlainText(strings.NewReader(raw))
	require.ErrorIs(t, err, errHasAttachment, "a single attachment discards the whole message")
}
