package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultStyles_RenderText(t *testing.T) {
	// Given: default styles
	styles := DefaultStyles()

	// When/Then: every style keeps the text
	for _, rendered := range []string{
		styles.Header.Render("Test"),
		styles.Score.Render("0.912"),
		styles.Path.Render("docs/a.md"),
		styles.Panel.Render("excerpt"),
	} {
		assert.NotEmpty(t, rendered)
	}
	assert.Contains(t, styles.Header.Render("Test"), "Test")
}

func TestGetStyles_WithNoColor(t *testing.T) {
	// When: getting styles with noColor=true
	styles := GetStyles(true)

	// Then: text renders unchanged
	assert.Equal(t, "test", styles.Success.Render("test"))
	assert.Equal(t, "[docs]", styles.Index.Render("[docs]"))
}

func TestGetStyles_WithColor(t *testing.T) {
	// When: getting styles with noColor=false
	styles := GetStyles(false)

	// Then: text is still present; exact ANSI codes depend on the terminal
	assert.Contains(t, styles.Success.Render("test"), "test")
}
