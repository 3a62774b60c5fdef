package crawler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleReaderOutput = `Title: Máster Universitario en Inteligencia Artificial

Markdown Content:

[Saltar al contenido](https://muia.dia.fi.upm.es/es/#main)

Alternar menú

*   [Presentación](https://muia.dia.fi.upm.es/es/presentacion/)
*   [Admisión](https://muia.dia.fi.upm.es/es/admision/)

[![Logo UPM](https://muia.dia.fi.upm.es/logo.png)](https://muia.dia.fi.upm.es/es/)

El máster forma investigadores en inteligencia artificial.

----------

Más información en la [guía docente](https://muia.dia.fi.upm.es/es/guia/).

![decoración](https://muia.dia.fi.upm.es/deco.jpg)

<< 1 2 3 >>

Copyright © 2026 UPM. Aviso legal.

Scroll al inicio`

func TestCleanMarkdownRemovesChrome(t *testing.T) {
	got := CleanMarkdown(sampleReaderOutput)

	require.NotContains(t, got, "Markdown Content:")
	require.NotContains(t, got, "Alternar menú")
	require.NotContains(t, got, "Saltar al contenido")
	require.NotContains(t, got, "logo.png")
	require.NotContains(t, got, "deco.jpg")
	require.NotContains(t, got, "Copyright")
	require.NotContains(t, got, "Scroll al inicio")
	require.NotContains(t, got, "<< 1 2 3 >>")

	// Body text and content links survive.
	require.Contains(t, got, "El máster forma investigadores en inteligencia artificial.")
	require.Contains(t, got, "[guía docente](https://muia.dia.fi.upm.es/es/guia/)")
}

func TestCleanMarkdownIdempotent(t *testing.T) {
	once := CleanMarkdown(sampleReaderOutput)
	twice := CleanMarkdown(once)
	require.Equal(t, once, twice)
}

func TestCleanMarkdownSquashesRules(t *testing.T) {
	got := CleanMarkdown("a\n----------\nb\n==========\nc")
	require.Contains(t, got, "-----")
	require.NotContains(t, got, "------")
	require.Contains(t, got, "=====")
	require.NotContains(t, got, "======")
}

func TestCleanMarkdownSquashesBlankRuns(t *testing.T) {
	got := CleanMarkdown("uno\n\n\n\n\ndos")
	require.Equal(t, "uno\n\ndos", got)
}

func TestCleanMarkdownTrimsLines(t *testing.T) {
	got := CleanMarkdown("   texto con sangría   \notra línea\t")
	require.Equal(t, "texto con sangría\notra línea", got)
}

func TestCleanMarkdownEmpty(t *testing.T) {
	require.Equal(t, "", CleanMarkdown(""))
	require.Equal(t, "", CleanMarkdown(strings.Repeat("\n", 10)))
}
