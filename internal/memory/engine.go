package memory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/exoclaw/gateway/internal/wire"
)

// Engine coordinates the episodic, semantic, and soul layers into one
// assembled context per turn.
type Engine struct {
	Episodic *Episodic
	Semantic *Semantic
	Souls    *SoulLoader
}

// NewEngine builds a memory Engine with the given episodic window and
// semantic-memory enablement.
func NewEngine(episodicWindowTurns int, semanticEnabled bool) *Engine {
	return &Engine{
		Episodic: NewEpisodic(episodicWindowTurns),
		Semantic: NewSemantic(semanticEnabled),
		Souls:    NewSoulLoader(),
	}
}

const maxRelevantFacts = 10

// AssembleContext builds the ordered message list to send a provider for
// the next turn: the agent's soul as a system message (if loaded), a
// system message summarizing facts relevant to query (if semantic memory is
// enabled and any match), then the session's full retained episodic
// history.
func (e *Engine) AssembleContext(sessionKey, agentID, query string) []wire.Message {
	var out []wire.Message

	if content, ok := e.Souls.GetContent(agentID); ok && content != "" {
		out = append(out, wire.Text(wire.RoleSystem, content))
	}

	if e.Semantic.Enabled {
		keywords := tokenizeQuery(query)
		if relevant := e.Semantic.QueryRelevant(keywords); len(relevant) > 0 {
			if len(relevant) > maxRelevantFacts {
				relevant = relevant[:maxRelevantFacts]
			}
			var lines []string
			for _, ent := range relevant {
				lines = append(lines, fmt.Sprintf("%s's %s: %s", ent.Subject, ent.Predicate, ent.Object))
			}
			out = append(out, wire.Text(wire.RoleSystem, "Known facts:\n"+strings.Join(lines, "\n")))
		}
	}

	out = append(out, e.Episodic.All(sessionKey)...)
	return out
}

// ProcessResponse records a completed turn: both messages are appended to
// the episodic log, and both are scanned for extractable facts which are
// stored in semantic memory (when enabled).
func (e *Engine) ProcessResponse(sessionKey string, userMsg, assistantMsg wire.Message) {
	e.Episodic.Append(sessionKey, userMsg)
	e.Episodic.Append(sessionKey, assistantMsg)

	if !e.Semantic.Enabled {
		return
	}
	for _, msg := range []wire.Message{userMsg, assistantMsg} {
		if msg.Content.Kind != wire.ContentText {
			continue
		}
		for _, f := range ExtractEntities(msg.Content.Text) {
			e.Semantic.Store(f.Subject, f.Predicate, f.Object, sessionKey, f.Confidence)
		}
	}
}

// AppendToEpisodic bypasses semantic extraction, for cases (like system
// bootstrap messages) that should be remembered but never mined for facts.
func (e *Engine) AppendToEpisodic(sessionKey string, msg wire.Message) {
	e.Episodic.Append(sessionKey, msg)
}

func tokenizeQuery(query string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 2 {
			words = append(words, strings.ToLower(cur.String()))
		}
		cur.Reset()
	}
	for _, r := range query {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	sort.Strings(words)
	return words
}
