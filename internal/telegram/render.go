package telegram

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"ragchat/internal/chat"
	"ragchat/internal/session"
)

const (
	// Telegram rejects messages above 4096 characters.
	maxMessageRunes  = 4000
	evidencePreview  = 200
	historyTailLimit = 6
)

var youtubeIDPattern = regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/)([a-zA-Z0-9_-]{11})`)

// youtubeID extracts the video ID from the URL forms the backend accepts.
func youtubeID(url string) (string, bool) {
	m := youtubeIDPattern.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func (b *Bot) parseModeValue() string {
	switch strings.ToLower(b.parseMode) {
	case "html":
		return tgbotapi.ModeHTML
	case "markdown":
		return tgbotapi.ModeMarkdown
	case "markdownv2":
		return tgbotapi.ModeMarkdownV2
	default:
		return ""
	}
}

// escapeIfNeeded escapes plain text for the strict parse modes. Legacy
// Markdown is passed through so answers keep their own formatting.
func (b *Bot) escapeIfNeeded(s string) string {
	switch mode := b.parseModeValue(); mode {
	case tgbotapi.ModeHTML, tgbotapi.ModeMarkdownV2:
		return tgbotapi.EscapeText(mode, s)
	default:
		return s
	}
}

func (b *Bot) bold(s string) string {
	switch b.parseModeValue() {
	case tgbotapi.ModeHTML:
		return "<b>" + b.escapeIfNeeded(s) + "</b>"
	case tgbotapi.ModeMarkdown, tgbotapi.ModeMarkdownV2:
		return "*" + b.escapeIfNeeded(s) + "*"
	default:
		return s
	}
}

func (b *Bot) code(s string) string {
	switch b.parseModeValue() {
	case tgbotapi.ModeHTML:
		return "<code>" + b.escapeIfNeeded(s) + "</code>"
	case tgbotapi.ModeMarkdown, tgbotapi.ModeMarkdownV2:
		return "`" + strings.ReplaceAll(s, "`", "'") + "`"
	default:
		return s
	}
}

func (b *Bot) link(label, url string) string {
	if b.parseModeValue() == tgbotapi.ModeHTML {
		return fmt.Sprintf(`<a href="%s">%s</a>`, b.escapeIfNeeded(url), b.escapeIfNeeded(label))
	}
	return b.escapeIfNeeded(label + ": " + url)
}

func capitalize(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}

// truncate shortens s to limit runes, marking the cut with "...".
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}

// splitMessage cuts text into chunks Telegram accepts, preferring line breaks.
func splitMessage(text string, limit int) []string {
	var chunks []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
		for len(runes) > 0 && runes[0] == '\n' {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 || len(chunks) == 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

// sourceToken is a fixed-length handle for a source ID that fits into callback
// data, which Telegram caps at 64 bytes.
func sourceToken(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()
}

func findSource(sources []chat.Source, token string) (chat.Source, bool) {
	for _, s := range sources {
		if sourceToken(s.ID) == token {
			return s, true
		}
	}
	return chat.Source{}, false
}

func kindIcon(k chat.SourceKind) string {
	switch k {
	case chat.KindVideoTranscript:
		return "🎬"
	case chat.KindTabular:
		return "📊"
	default:
		return "📄"
	}
}

func (b *Bot) renderSources(snap session.Snapshot) (string, tgbotapi.InlineKeyboardMarkup) {
	var sb strings.Builder
	sb.WriteString(b.bold("Your sources") + "\n\n")
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, src := range snap.Sources {
		active := snap.ActiveSource != nil && snap.ActiveSource.ID == src.ID
		mark := ""
		if active {
			mark = " ✅"
		}
		line := fmt.Sprintf("%s %s (%s)", kindIcon(src.Kind), src.ID, src.Kind.Label())
		if !src.CreatedAt.IsZero() {
			line += ", " + src.CreatedAt.Format("2006-01-02")
		}
		sb.WriteString(b.escapeIfNeeded(line) + mark + "\n")

		tok := sourceToken(src.ID)
		label := truncate(src.ID, 28)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(kindIcon(src.Kind)+" "+label, selectPrefix+tok),
			tgbotapi.NewInlineKeyboardButtonData("🗑", deletePrefix+tok),
		))
	}
	if len(snap.Sources) == 0 {
		sb.WriteString(b.escapeIfNeeded("Nothing here yet. Send a PDF or CSV file, or use /youtube <url>."))
	}
	return sb.String(), tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// renderEvidence lists the passages behind the last answer, each cut to a
// short preview. Each returned block is formatted on its own.
func (b *Bot) renderEvidence(ev []chat.EvidenceChunk) []string {
	if len(ev) == 0 {
		return []string{b.escapeIfNeeded("No sources for the last answer.")}
	}
	blocks := []string{b.bold(fmt.Sprintf("Sources (%d)", len(ev)))}
	for i, c := range ev {
		var meta []string
		if c.Page != nil {
			meta = append(meta, fmt.Sprintf("page %d", *c.Page))
		}
		if c.Source != nil && *c.Source != "" {
			meta = append(meta, *c.Source)
		}
		head := fmt.Sprintf("%d.", i+1)
		if len(meta) > 0 {
			head += " [" + strings.Join(meta, ", ") + "]"
		}
		blocks = append(blocks, "\n"+b.bold(head)+"\n"+b.escapeIfNeeded(truncate(c.Text, evidencePreview)))
	}
	return blocks
}

// renderAnswer splits the plain answer before escaping, so a cut never lands
// inside an entity or tag.
func (b *Bot) renderAnswer(ans chat.Answer) []string {
	raw := splitMessage(ans.Text, maxMessageRunes)
	parts := make([]string, len(raw))
	for i, r := range raw {
		parts[i] = b.escapeIfNeeded(r)
	}
	n := len(ans.Evidence)
	if n == 0 {
		return parts
	}
	footer := fmt.Sprintf("📎 %d source passages: /sources", n)
	last := len(raw) - 1
	if utf8.RuneCountInString(raw[last])+utf8.RuneCountInString(footer)+2 <= maxMessageRunes {
		parts[last] += "\n\n" + b.escapeIfNeeded(footer)
		return parts
	}
	return append(parts, b.escapeIfNeeded(footer))
}

// renderTranscript shows the last few messages of the active source, one
// formatted block per message.
func (b *Bot) renderTranscript(snap session.Snapshot, limit int) []string {
	if snap.ActiveSource == nil {
		return []string{b.escapeIfNeeded("No source selected.")}
	}
	head := b.bold(snap.ActiveSource.ID)
	msgs := snap.Transcript
	if len(msgs) == 0 {
		return []string{head + "\n" + b.escapeIfNeeded("No messages yet. Ask a question.")}
	}
	if limit > 0 && len(msgs) > limit {
		head += "\n" + b.escapeIfNeeded(fmt.Sprintf("… %d earlier messages", len(msgs)-limit))
		msgs = msgs[len(msgs)-limit:]
	}
	blocks := []string{head}
	for _, m := range msgs {
		who := "🧑"
		if m.Role == chat.RoleAssistant {
			who = "🤖"
		}
		blocks = append(blocks, "\n"+who+" "+b.escapeIfNeeded(truncate(m.Content, 600)))
	}
	return blocks
}

// packBlocks joins formatted blocks into as few messages as fit the limit.
// Blocks are never cut, so markup stays balanced.
func packBlocks(blocks []string, limit int) []string {
	var (
		out []string
		cur strings.Builder
		n   int
	)
	for _, blk := range blocks {
		size := utf8.RuneCountInString(blk) + 1
		if n > 0 && n+size > limit {
			out = append(out, cur.String())
			cur.Reset()
			n = 0
		}
		if n > 0 {
			cur.WriteString("\n")
		}
		cur.WriteString(blk)
		n += size
	}
	if n > 0 || len(out) == 0 {
		out = append(out, cur.String())
	}
	return out
}

func (b *Bot) renderProfile(snap session.Snapshot) string {
	p := snap.Profile
	var sb strings.Builder
	sb.WriteString(b.bold("Profile") + "\n")
	name := p.DisplayName
	if name == "" {
		name = "not set (/name <display name>)"
	}
	key := "not set (/apikey <key>)"
	if snap.HasCredential {
		key = "set"
		if p.CredentialHint != "" {
			key += " " + p.CredentialHint
		}
	}
	lines := []string{
		"Email: " + p.Email,
		"Name: " + name,
		"API key: " + key,
		"Model: " + snap.Model,
		fmt.Sprintf("Sources: %d", len(snap.Sources)),
	}
	for _, l := range lines {
		sb.WriteString(b.escapeIfNeeded(l) + "\n")
	}
	return sb.String()
}

func (b *Bot) renderModels(snap session.Snapshot) string {
	if len(snap.Models) == 0 {
		return b.escapeIfNeeded("The model list is unavailable right now. Current model: " + snap.Model)
	}
	var sb strings.Builder
	sb.WriteString(b.bold("Models") + "\n")
	for _, m := range snap.Models {
		mark := ""
		if m == snap.Model {
			mark = " ✅"
		}
		sb.WriteString(b.code(m) + mark + "\n")
	}
	sb.WriteString("\n" + b.escapeIfNeeded("Switch with /model <name>."))
	return sb.String()
}

func (b *Bot) modelKeyboard(snap session.Snapshot) *tgbotapi.InlineKeyboardMarkup {
	if len(snap.Models) == 0 {
		return nil
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, m := range snap.Models {
		label := m
		if m == snap.Model {
			label = "✅ " + m
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("%s%d", modelPrefix, i)),
		))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

func (b *Bot) renderPhase(phase int) string {
	if phase < 0 || phase >= len(session.Phases) {
		phase = 0
	}
	var sb strings.Builder
	for i, p := range session.Phases {
		switch {
		case i < phase:
			sb.WriteString("✅ ")
		case i == phase:
			sb.WriteString("🔄 ")
		default:
			sb.WriteString("⏳ ")
		}
		sb.WriteString(b.code(p.Tag) + " " + b.escapeIfNeeded(p.Label) + "\n")
	}
	return sb.String()
}

func (b *Bot) menuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📚 Sources", filesCmd),
			tgbotapi.NewInlineKeyboardButtonData("📎 Evidence", evidenceCmd),
			tgbotapi.NewInlineKeyboardButtonData("🧹 Clear chat", clearCmd),
		),
	)
}
